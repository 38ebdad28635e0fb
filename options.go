package schematron

import (
	"maps"
	"reflect"

	"github.com/jacoelho/schematron/pkg/svrl"
	"github.com/jacoelho/schematron/pkg/transform"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// Mode selects a set of option defaults.
type Mode uint8

const (
	// ModeCurrent is the default behaviour.
	ModeCurrent Mode = iota
	// ModeLegacyCompat reproduces the defaults of earlier releases: XSLT 2.0
	// binding, indented output and prefixed locations.
	ModeLegacyCompat
)

func (m Mode) String() string {
	switch m {
	case ModeCurrent:
		return "current"
	case ModeLegacyCompat:
		return "legacy-compat"
	default:
		return "unknown"
	}
}

// CompileOptions configures schema compilation. Values are immutable: every
// With method returns a modified copy.
type CompileOptions struct {
	defaultQueryBinding string
	metadata            bool
	streamable          bool
	compact             bool
	params              transform.Params
}

// DefaultCompileOptions returns the compile defaults for mode.
func DefaultCompileOptions(mode Mode) CompileOptions {
	o := CompileOptions{defaultQueryBinding: "xslt"}
	if mode == ModeLegacyCompat {
		o.defaultQueryBinding = "xslt2"
	}
	return o
}

// DefaultQueryBinding is the binding assumed for schemas that declare none.
func (o CompileOptions) DefaultQueryBinding() string { return o.defaultQueryBinding }

// Metadata reports whether reports include an svrl:metadata block.
func (o CompileOptions) Metadata() bool { return o.metadata }

// Streamable reports whether the streamable hint is passed to the stages.
func (o CompileOptions) Streamable() bool { return o.streamable }

// Compact reports whether reports omit active-pattern and fired-rule.
func (o CompileOptions) Compact() bool { return o.compact }

// Parameters returns a copy of the extra stage parameters.
func (o CompileOptions) Parameters() transform.Params {
	return o.params.Clone()
}

// WithDefaultQueryBinding sets the binding assumed for schemas that declare none.
func (o CompileOptions) WithDefaultQueryBinding(binding string) CompileOptions {
	o.defaultQueryBinding = binding
	return o
}

// WithMetadata controls the svrl:metadata block.
func (o CompileOptions) WithMetadata(value bool) CompileOptions {
	o.metadata = value
	return o
}

// WithStreamable sets the streamable hint.
func (o CompileOptions) WithStreamable(value bool) CompileOptions {
	o.streamable = value
	return o
}

// WithCompact controls the compact report shape.
func (o CompileOptions) WithCompact(value bool) CompileOptions {
	o.compact = value
	return o
}

// WithParameter adds an extra parameter forwarded to every stage.
func (o CompileOptions) WithParameter(name string, value any) CompileOptions {
	o.params = o.params.Merge(transform.Params{name: value})
	return o
}

// Equal reports whether o and other hold the same settings.
func (o CompileOptions) Equal(other CompileOptions) bool {
	if o.defaultQueryBinding != other.defaultQueryBinding ||
		o.metadata != other.metadata ||
		o.streamable != other.streamable ||
		o.compact != other.compact {
		return false
	}
	return maps.EqualFunc(o.params, other.params, func(a, b any) bool { return reflect.DeepEqual(a, b) })
}

// stageParams merges the extra parameters with the well-known ones.
func (o CompileOptions) stageParams(phase string) transform.Params {
	p := o.params.Clone()
	if phase != "" {
		p[transform.ParamPhase] = phase
	}
	p[transform.ParamStreamable] = o.streamable
	p[transform.ParamMetadata] = o.metadata
	p[transform.ParamCompact] = o.compact
	return p
}

// OutputOptions configures how reports are written. Values are immutable
// and comparable.
type OutputOptions struct {
	encoding        string
	indent          bool
	omitDeclaration bool
	prefixLocations bool
}

// DefaultOutputOptions returns the output defaults for mode.
func DefaultOutputOptions(mode Mode) OutputOptions {
	o := OutputOptions{encoding: xmlwriter.DefaultEncoding, omitDeclaration: true}
	if mode == ModeLegacyCompat {
		o.indent = true
		o.prefixLocations = true
	}
	return o
}

// Encoding is the character encoding of written reports.
func (o OutputOptions) Encoding() string { return o.encoding }

// Indent reports whether reports are indented.
func (o OutputOptions) Indent() bool { return o.indent }

// OmitDeclaration reports whether the XML declaration is dropped.
func (o OutputOptions) OmitDeclaration() bool { return o.omitDeclaration }

// PrefixLocations reports whether location attributes use prefixes.
func (o OutputOptions) PrefixLocations() bool { return o.prefixLocations }

// WithEncoding sets the report encoding.
func (o OutputOptions) WithEncoding(name string) OutputOptions {
	o.encoding = name
	return o
}

// WithIndent controls indentation.
func (o OutputOptions) WithIndent(value bool) OutputOptions {
	o.indent = value
	return o
}

// WithOmitDeclaration controls the XML declaration.
func (o OutputOptions) WithOmitDeclaration(value bool) OutputOptions {
	o.omitDeclaration = value
	return o
}

// WithPrefixLocations controls prefix rewriting of location attributes.
func (o OutputOptions) WithPrefixLocations(value bool) OutputOptions {
	o.prefixLocations = value
	return o
}

func (o OutputOptions) streamOptions() svrl.StreamOptions {
	return svrl.StreamOptions{
		Indent:          o.indent,
		OmitDeclaration: o.omitDeclaration,
		PrefixLocations: o.prefixLocations,
	}
}
