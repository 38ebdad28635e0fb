package native

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/pkg/transform"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

type stageFunc func(ctx context.Context, doc *xmlquery.Node, run transform.Run, version string) error

// stage is one schema compilation step. It is immutable.
type stage struct {
	name    string
	version string
	fn      stageFunc
}

func newStage(name, version string) (*stage, error) {
	if version == "" {
		version = "1.0"
	}
	var fn stageFunc
	switch name {
	case StageInclude:
		fn = includeStage
	case StageExpand:
		fn = expandStage
	case StageCompile:
		fn = compileStage
	default:
		return nil, fmt.Errorf("compile stage %q: unknown stage", name)
	}
	return &stage{name: name, version: version, fn: fn}, nil
}

// NewSession implements transform.Program.
func (s *stage) NewSession() transform.Session {
	return stageSession{stage: s}
}

type stageSession struct {
	stage *stage
}

// Apply clones the input schema, rewrites the clone and replays it into w.
func (s stageSession) Apply(ctx context.Context, run transform.Run, w xmlwriter.Writer) error {
	if run.Document == nil || run.Document.Element() == nil {
		return fmt.Errorf("%s: empty schema document", s.stage.name)
	}
	run.Listener = transform.ListenerOrQuiet(run.Listener)
	doc := dom.Clone(run.Document.Root)
	if err := s.stage.fn(ctx, doc, run, s.stage.version); err != nil {
		return err
	}
	return dom.Serialize(doc, w)
}

func isSchematron(n *xmlquery.Node, local string) bool {
	return dom.Is(n, SchematronNS, local)
}

func schemaElement(doc *xmlquery.Node) (*xmlquery.Node, error) {
	root := dom.DocumentElement(doc)
	if !isSchematron(root, "schema") {
		name := ""
		if root != nil {
			name = root.Data
		}
		return nil, fmt.Errorf("expected sch:schema document element, found %q", name)
	}
	return root, nil
}

// descendants returns the elements under n in document order.
func descendants(n *xmlquery.Node, keep func(*xmlquery.Node) bool) []*xmlquery.Node {
	var out []*xmlquery.Node
	var walk func(*xmlquery.Node)
	walk = func(p *xmlquery.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			if keep(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func paramString(p transform.Params, key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func paramBool(p transform.Params, key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		v = strings.TrimSpace(v)
		return v == "true" || v == "1" || v == "yes"
	default:
		return false
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
