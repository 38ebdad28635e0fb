// Package transform defines the document transformation capability used to
// compile schemas and run compiled validators.
//
// An Engine compiles a Program from a source document. Programs are
// immutable and safe for concurrent use; each Session created from a Program
// holds reusable run state and must not be used concurrently.
package transform

import (
	"context"
	"io"
	"maps"

	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// Document is a parsed XML document and the identifier it was loaded from.
type Document struct {
	Root     *xmlquery.Node
	SystemID string
}

// Element returns the document element.
func (d *Document) Element() *xmlquery.Node {
	if d == nil {
		return nil
	}
	return dom.DocumentElement(d.Root)
}

// Parse reads a document from r.
func Parse(r io.Reader, systemID string) (*Document, error) {
	root, err := dom.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{Root: root, SystemID: systemID}, nil
}

// WriteTo replays the document into w.
func (d *Document) WriteTo(w xmlwriter.Writer) error {
	return dom.Serialize(d.Root, w)
}

// Params are named values passed to a run. Values keep the type they were
// given with.
type Params map[string]any

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	return out
}

// Merge returns a copy of p overlaid with other.
func (p Params) Merge(other Params) Params {
	out := p.Clone()
	maps.Copy(out, other)
	return out
}

// Run is the input to one program application.
type Run struct {
	Document *Document
	Params   Params
	Resolver Resolver
	Listener Listener
}

// Engine compiles transformation programs.
type Engine interface {
	Compile(ctx context.Context, src *Document) (Program, error)
}

// Program is a compiled transformation.
type Program interface {
	NewSession() Session
}

// Session applies a Program. Sessions are not safe for concurrent use.
type Session interface {
	Apply(ctx context.Context, run Run, dst xmlwriter.Writer) error
}

// Parameter names passed to every compilation stage.
const (
	ParamPhase      = "phase"
	ParamStreamable = "compile.streamable"
	ParamMetadata   = "compile.metadata"
	ParamCompact    = "svrl.compact"
)
