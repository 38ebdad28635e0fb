package native

import (
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/pkg/svrl"
	"github.com/jacoelho/schematron/pkg/transform"
)

type variable struct {
	name  string
	value string
	node  *xmlquery.Node
}

type check struct {
	report      bool
	id          string
	test        string
	role        string
	flag        string
	diagnostics []string
	properties  []string
	node        *xmlquery.Node
}

type rule struct {
	id       string
	context  string
	role     string
	flag     string
	branches []string
	lets     []variable
	checks   []*check
}

type pattern struct {
	id        string
	name      string
	role      string
	documents string
	lets      []variable
	rules     []*rule
}

// schema is the validator model built from a compiled schema.
type schema struct {
	systemID      string
	source        string
	version       string
	title         string
	schemaVersion string
	phase         string
	compact       bool
	metadata      bool
	namespaces    []svrl.Namespace
	ns            map[string]string
	texts         []*xmlquery.Node
	lets          []variable
	patterns      []*pattern
	diagnostics   map[string]*xmlquery.Node
	properties    map[string]*xmlquery.Node
}

// program is a compiled validator. It is immutable after construction.
type program struct {
	schema *schema
}

// NewSession implements transform.Program.
func (p *program) NewSession() transform.Session {
	return &session{prog: p, exprs: make(map[string]*xpath.Expr)}
}

func versionOf(root *xmlquery.Node) string {
	if v := dom.AttrNS(root, ToolNS, attrVersion); v != "" {
		return v
	}
	switch strings.ToLower(dom.Attr(root, "queryBinding")) {
	case "xslt2", "xslt3", "xpath2", "xpath3", "xpath31":
		return "2.0"
	default:
		return "1.0"
	}
}

func compileValidator(src *transform.Document) (*program, error) {
	root := src.Element()
	s := &schema{
		systemID:      src.SystemID,
		source:        dom.AttrNS(root, ToolNS, attrSource),
		version:       versionOf(root),
		schemaVersion: dom.Attr(root, "schemaVersion"),
		phase:         dom.AttrNS(root, ToolNS, attrPhase),
		compact:       dom.AttrNS(root, ToolNS, attrCompact) == "true",
		metadata:      dom.AttrNS(root, ToolNS, attrMetadata) == "true",
		ns:            make(map[string]string),
		diagnostics:   make(map[string]*xmlquery.Node),
		properties:    make(map[string]*xmlquery.Node),
	}
	if s.source == "" {
		s.source = src.SystemID
	}
	c := &schemaCompiler{schema: s}
	for _, el := range dom.Elements(root) {
		if el.NamespaceURI != SchematronNS {
			continue
		}
		switch el.Data {
		case "title":
			s.title = strings.TrimSpace(dom.StringValue(el))
		case "ns":
			prefix, uri := dom.Attr(el, "prefix"), dom.Attr(el, "uri")
			s.namespaces = append(s.namespaces, svrl.Namespace{Prefix: prefix, URI: uri})
			s.ns[prefix] = uri
		case "p":
			s.texts = append(s.texts, el)
		case "let", "param":
			s.lets = append(s.lets, c.variable(el))
		case "diagnostics":
			for _, d := range dom.Elements(el) {
				if isSchematron(d, "diagnostic") {
					s.diagnostics[dom.Attr(d, "id")] = d
				}
			}
		case "properties":
			for _, d := range dom.Elements(el) {
				if isSchematron(d, "property") {
					s.properties[dom.Attr(d, "id")] = d
				}
			}
		}
	}
	for _, el := range dom.Elements(root) {
		if isSchematron(el, "pattern") && dom.Attr(el, "abstract") != "true" {
			s.patterns = append(s.patterns, c.pattern(el))
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &program{schema: s}, nil
}

type schemaCompiler struct {
	schema *schema
	err    error
}

// expr checks the syntax of an expression and records the first failure.
func (c *schemaCompiler) expr(expr, matchPattern string) {
	if c.err != nil || expr == "" {
		return
	}
	if _, err := compileExpr(substitute(expr, placeholder), c.schema.ns); err != nil {
		e := errors.Compilation(errors.ErrStageCompile, err, "invalid expression")
		e.Expression = expr
		e.MatchPattern = matchPattern
		c.err = e
	}
}

func (c *schemaCompiler) variable(el *xmlquery.Node) variable {
	v := variable{name: dom.Attr(el, "name"), value: dom.Attr(el, "value")}
	if v.name == "" && c.err == nil {
		c.err = errors.Compilation(errors.ErrStageCompile, nil, "%s without name", el.Data)
	}
	if v.value == "" {
		v.node = el
	}
	c.expr(v.value, "")
	return v
}

func (c *schemaCompiler) pattern(el *xmlquery.Node) *pattern {
	p := &pattern{
		id:        dom.Attr(el, "id"),
		role:      dom.Attr(el, "role"),
		documents: dom.Attr(el, "documents"),
	}
	c.expr(p.documents, "")
	for _, ch := range dom.Elements(el) {
		switch {
		case isSchematron(ch, "title"):
			p.name = strings.TrimSpace(dom.StringValue(ch))
		case isSchematron(ch, "let"):
			p.lets = append(p.lets, c.variable(ch))
		case isSchematron(ch, "rule") && dom.Attr(ch, "abstract") != "true":
			p.rules = append(p.rules, c.rule(ch))
		}
	}
	if p.name == "" {
		p.name = dom.Attr(el, "name")
	}
	return p
}

func (c *schemaCompiler) rule(el *xmlquery.Node) *rule {
	r := &rule{
		id:      dom.Attr(el, "id"),
		context: strings.TrimSpace(dom.Attr(el, "context")),
		role:    dom.Attr(el, "role"),
		flag:    dom.Attr(el, "flag"),
	}
	if r.context == "" {
		if c.err == nil {
			c.err = errors.Compilation(errors.ErrStageCompile, nil, "rule %q has no context", r.id)
		}
		return r
	}
	for _, b := range splitUnion(r.context) {
		if b == "" {
			if c.err == nil {
				e := errors.Compilation(errors.ErrStageCompile, nil, "empty branch in rule context")
				e.MatchPattern = r.context
				c.err = e
			}
			continue
		}
		m := matchExpr(b)
		r.branches = append(r.branches, m)
		c.expr(m, r.context)
	}
	for _, ch := range dom.Elements(el) {
		switch {
		case isSchematron(ch, "let"):
			r.lets = append(r.lets, c.variable(ch))
		case isSchematron(ch, "assert"), isSchematron(ch, "report"):
			k := &check{
				report:      ch.Data == "report",
				id:          dom.Attr(ch, "id"),
				test:        dom.Attr(ch, "test"),
				role:        dom.Attr(ch, "role"),
				flag:        dom.Attr(ch, "flag"),
				diagnostics: strings.Fields(dom.Attr(ch, "diagnostics")),
				properties:  strings.Fields(dom.Attr(ch, "properties")),
				node:        ch,
			}
			if k.test == "" && c.err == nil {
				c.err = errors.Compilation(errors.ErrStageCompile, nil, "%s %q has no test", ch.Data, k.id)
			}
			c.expr(k.test, r.context)
			c.content(ch, r.context)
			for _, id := range k.diagnostics {
				if d := c.schema.diagnostics[id]; d != nil {
					c.content(d, r.context)
				}
			}
			r.checks = append(r.checks, k)
		}
	}
	return r
}

// content checks the expressions embedded in message content.
func (c *schemaCompiler) content(el *xmlquery.Node, matchPattern string) {
	for _, ch := range descendants(el, func(n *xmlquery.Node) bool {
		return isSchematron(n, "value-of") || isSchematron(n, "name")
	}) {
		if ch.Data == "value-of" {
			c.expr(dom.Attr(ch, "select"), matchPattern)
		} else {
			c.expr(dom.Attr(ch, "path"), matchPattern)
		}
	}
}
