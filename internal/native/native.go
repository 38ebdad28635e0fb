// Package native is the built-in transformation engine. It understands two
// kinds of program source: stage descriptors, which select one of the schema
// compilation stages, and compiled schemas, which become validators.
package native

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/pkg/svrl"
	"github.com/jacoelho/schematron/pkg/transform"
)

// Namespaces.
const (
	SchematronNS = svrl.SchematronURI
	ToolNS       = svrl.ToolingURI
	toolPrefix   = "schxslt"
)

// Stage names.
const (
	StageInclude = "include"
	StageExpand  = "expand"
	StageCompile = "compile-for-svrl"
)

// Attributes written on a compiled schema.
const (
	attrPhase      = "phase"
	attrCompact    = "compact"
	attrMetadata   = "metadata"
	attrStreamable = "streamable"
	attrVersion    = "version"
	attrSource     = "source"
)

// Engine compiles stage descriptors and compiled schemas.
// It is safe for concurrent use.
type Engine struct {
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

var _ transform.Engine = (*Engine)(nil)

// Compile implements transform.Engine.
func (e *Engine) Compile(ctx context.Context, src *transform.Document) (transform.Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := src.Element()
	if root == nil {
		return nil, fmt.Errorf("compile %s: empty document", src.SystemID)
	}
	switch {
	case dom.Is(root, ToolNS, "stage"):
		st, err := newStage(dom.Attr(root, "name"), dom.Attr(root, attrVersion))
		if err != nil {
			return nil, err
		}
		return st, nil
	case dom.Is(root, SchematronNS, "schema"):
		p, err := compileValidator(src)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("compiled validator",
			slog.String("source", src.SystemID),
			slog.Int("patterns", len(p.schema.patterns)),
			slog.String("version", p.schema.version))
		return p, nil
	default:
		return nil, fmt.Errorf("compile %s: unsupported program root %s", src.SystemID, root.Data)
	}
}
