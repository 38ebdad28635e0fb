package native

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/internal/xmlns"
	"github.com/jacoelho/schematron/pkg/svrl"
	"github.com/jacoelho/schematron/pkg/transform"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

const creator = "github.com/jacoelho/schematron"

// session holds the compiled expressions of one validator session.
// It is not safe for concurrent use.
type session struct {
	prog  *program
	exprs map[string]*xpath.Expr
}

func (s *session) compile(expr string) (*xpath.Expr, error) {
	if e, ok := s.exprs[expr]; ok {
		return e, nil
	}
	e, err := compileExpr(expr, s.prog.schema.ns)
	if err != nil {
		return nil, err
	}
	s.exprs[expr] = e
	return e, nil
}

// Apply validates run.Document and writes the report events to w.
func (s *session) Apply(ctx context.Context, run transform.Run, w xmlwriter.Writer) error {
	if run.Document == nil || run.Document.Element() == nil {
		return errors.Validation(errors.ErrDocumentParse, nil, "no document to validate")
	}
	v := &validation{
		ctx:      ctx,
		session:  s,
		schema:   s.prog.schema,
		w:        w,
		doc:      run.Document,
		resolver: run.Resolver,
		docs:     make(map[string]*transform.Document),
	}
	if err := v.bindGlobals(run.Params); err != nil {
		return err
	}
	return v.report()
}

// validation is the state of one Apply call.
type validation struct {
	ctx      context.Context
	session  *session
	schema   *schema
	w        xmlwriter.Writer
	doc      *transform.Document
	resolver transform.Resolver
	docs     map[string]*transform.Document
	globals  *scope
}

func dynamicError(cause error, expr, matchPattern string) error {
	e := errors.Validation(errors.ErrDynamic, cause, "evaluation failed")
	e.Expression = expr
	e.MatchPattern = matchPattern
	return e
}

// eval evaluates expr at nav. It returns the result and the expression text
// after variable substitution.
func (v *validation) eval(expr, matchPattern string, nav xpath.NodeNavigator, sc *scope) (res value, src string, err error) {
	src = substitute(expr, sc.lookup)
	e, err := v.session.compile(src)
	if err != nil {
		return nil, src, dynamicError(err, expr, matchPattern)
	}
	defer func() {
		if r := recover(); r != nil {
			err = dynamicError(fmt.Errorf("%v", r), expr, matchPattern)
		}
	}()
	return materialize(e.Evaluate(nav.Copy())), src, nil
}

func (v *validation) bind(sc *scope, l variable, nav xpath.NodeNavigator, matchPattern string) error {
	if l.node != nil {
		sc.bind(l.name, stringLiteral(dom.StringValue(l.node)))
		return nil
	}
	val, src, err := v.eval(l.value, matchPattern, nav, sc)
	if err != nil {
		return err
	}
	sc.bind(l.name, binding(src, val))
	return nil
}

// paramBinding returns the text bound to a run parameter. Nodes of the
// validated document are bound by path so that they keep their identity;
// nodes of other trees are bound to their string value.
func (v *validation) paramBinding(val any) string {
	var nodes []*xmlquery.Node
	switch x := val.(type) {
	case *xmlquery.Node:
		if x == nil {
			return literal(nil)
		}
		nodes = []*xmlquery.Node{x}
	case []*xmlquery.Node:
		nodes = x
	default:
		return literal(val)
	}
	if len(nodes) == 0 {
		return "/.."
	}
	paths := make([]string, 0, len(nodes))
	for _, n := range nodes {
		p, ok := v.documentPath(n)
		if !ok {
			return stringLiteral(dom.StringValue(nodes[0]))
		}
		paths = append(paths, p)
	}
	return "(" + strings.Join(paths, " | ") + ")"
}

func (v *validation) documentPath(n *xmlquery.Node) (string, bool) {
	if n == nil || n.Type == xmlquery.AttributeNode {
		return "", false
	}
	top := n
	for top.Parent != nil {
		top = top.Parent
	}
	if v.doc == nil || top != v.doc.Root {
		return "", false
	}
	return nodePath(xmlquery.CreateXPathNavigator(n))
}

// bindGlobals binds run parameters and schema variables. A parameter
// overrides the schema variable of the same name.
func (v *validation) bindGlobals(params transform.Params) error {
	g := newScope(nil)
	for name, val := range params {
		if name != "" && scanName(name, 0) == len(name) {
			g.bind(name, v.paramBinding(val))
		}
	}
	root := xmlquery.CreateXPathNavigator(v.doc.Root)
	for _, l := range v.schema.lets {
		if _, ok := params[l.name]; ok {
			continue
		}
		if err := v.bind(g, l, root, ""); err != nil {
			return err
		}
	}
	v.globals = g
	return nil
}

func svrlName(local string) xmlwriter.Name {
	return xmlwriter.Name{Space: svrl.NamespaceURI, Prefix: svrl.DefaultPrefix, Local: local}
}

func writeAttrs(w xmlwriter.Writer, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		if err := w.WriteAttribute(xmlwriter.Name{Local: pairs[i]}, pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func (v *validation) report() error {
	w := v.w
	if err := w.WriteStartDocument(); err != nil {
		return err
	}
	if err := w.WriteStartElement(svrlName(svrl.ElemSchematronOutput)); err != nil {
		return err
	}
	reserved := map[string]string{
		svrl.DefaultPrefix: svrl.NamespaceURI,
		"xs":               svrl.XSDURI,
		"sch":              SchematronNS,
		toolPrefix:         ToolNS,
	}
	for _, p := range []string{svrl.DefaultPrefix, "xs", "sch", toolPrefix} {
		if err := w.WriteNamespace(p, reserved[p]); err != nil {
			return err
		}
	}
	for _, ns := range v.schema.namespaces {
		if _, ok := reserved[ns.Prefix]; ok || ns.Prefix == "" {
			continue
		}
		if err := w.WriteNamespace(ns.Prefix, ns.URI); err != nil {
			return err
		}
	}
	phase := v.schema.phase
	if phase == PhaseAll {
		phase = ""
	}
	if err := writeAttrs(w, "title", v.schema.title, "phase", phase, "schemaVersion", v.schema.schemaVersion); err != nil {
		return err
	}
	if v.schema.metadata {
		if err := v.metadata(); err != nil {
			return err
		}
	}
	root := xmlquery.CreateXPathNavigator(v.doc.Root)
	for _, p := range v.schema.texts {
		if err := v.text(p, root, v.globals, ""); err != nil {
			return err
		}
	}
	for _, ns := range v.schema.namespaces {
		if err := w.WriteEmptyElement(svrlName(svrl.ElemNsPrefix)); err != nil {
			return err
		}
		if err := w.WriteAttribute(xmlwriter.Name{Local: "prefix"}, ns.Prefix); err != nil {
			return err
		}
		if err := w.WriteAttribute(xmlwriter.Name{Local: "uri"}, ns.URI); err != nil {
			return err
		}
	}
	for _, p := range v.schema.patterns {
		if err := v.pattern(p); err != nil {
			return err
		}
	}
	if err := w.WriteEndElement(); err != nil {
		return err
	}
	return w.WriteEndDocument()
}

func (v *validation) metadata() error {
	w := v.w
	if err := w.WriteStartElement(svrlName(svrl.ElemMetadata)); err != nil {
		return err
	}
	if err := w.WriteNamespace("dct", svrl.DublinCoreURI); err != nil {
		return err
	}
	fields := []struct{ local, value string }{
		{"creator", creator},
		{"created", time.Now().UTC().Format(time.RFC3339)},
		{"source", v.schema.source},
		{"subject", v.doc.SystemID},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := w.WriteStartElement(xmlwriter.Name{Space: svrl.DublinCoreURI, Prefix: "dct", Local: f.local}); err != nil {
			return err
		}
		if err := w.WriteCharacters(f.value); err != nil {
			return err
		}
		if err := w.WriteEndElement(); err != nil {
			return err
		}
	}
	return w.WriteEndElement()
}

// targets returns the documents a pattern applies to.
func (v *validation) targets(p *pattern) ([]*transform.Document, error) {
	if p.documents == "" {
		return []*transform.Document{v.doc}, nil
	}
	val, _, err := v.eval(p.documents, "", xmlquery.CreateXPathNavigator(v.doc.Root), v.globals)
	if err != nil {
		return nil, err
	}
	var hrefs []string
	if nodes, ok := val.([]xpath.NodeNavigator); ok {
		for _, n := range nodes {
			if h := strings.TrimSpace(n.Value()); h != "" {
				hrefs = append(hrefs, h)
			}
		}
	} else {
		hrefs = strings.Fields(toString(val, true))
	}
	out := make([]*transform.Document, 0, len(hrefs))
	for _, href := range hrefs {
		doc, ok := v.docs[href]
		if !ok {
			doc, err = transform.LoadDocument(v.resolver, href, v.doc.SystemID)
			if err != nil {
				e := errors.Validation(errors.ErrDocumentParse, err, "load pattern document %q", href)
				e.Expression = p.documents
				return nil, e
			}
			v.docs[href] = doc
		}
		out = append(out, doc)
	}
	return out, nil
}

func (v *validation) pattern(p *pattern) error {
	targets, err := v.targets(p)
	if err != nil {
		return err
	}
	if !v.schema.compact {
		var documents []string
		if p.documents != "" {
			for _, d := range targets {
				documents = append(documents, d.SystemID)
			}
		}
		if err := v.w.WriteEmptyElement(svrlName(svrl.ElemActivePattern)); err != nil {
			return err
		}
		if err := writeAttrs(v.w, "id", p.id, "name", p.name, "role", p.role, "documents", strings.Join(documents, " ")); err != nil {
			return err
		}
	}
	for _, doc := range targets {
		if err := v.ctx.Err(); err != nil {
			return err
		}
		root := xmlquery.CreateXPathNavigator(doc.Root)
		sc := newScope(v.globals)
		for _, l := range p.lets {
			if err := v.bind(sc, l, root, ""); err != nil {
				return err
			}
		}
		matches, err := v.matches(p, root, sc)
		if err != nil {
			return err
		}
		if matches == nil {
			continue
		}
		err = walk(root, func(nav *xmlquery.NodeNavigator) error {
			key, ok := keyOf(nav)
			if !ok {
				return nil
			}
			for i, r := range p.rules {
				if _, hit := matches[i][key]; hit {
					return v.fire(r, nav, sc)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// matches selects the context nodes of every rule. It returns nil when no
// rule matches anything.
func (v *validation) matches(p *pattern, root xpath.NodeNavigator, sc *scope) ([]map[nodeKey]struct{}, error) {
	sets := make([]map[nodeKey]struct{}, len(p.rules))
	total := 0
	for i, r := range p.rules {
		set := make(map[nodeKey]struct{})
		for _, b := range r.branches {
			val, _, err := v.eval(b, r.context, root, sc)
			if err != nil {
				return nil, err
			}
			nodes, ok := val.([]xpath.NodeNavigator)
			if !ok {
				return nil, dynamicError(fmt.Errorf("rule context does not select nodes"), b, r.context)
			}
			for _, n := range nodes {
				if k, ok := keyOf(n); ok {
					set[k] = struct{}{}
				}
			}
		}
		sets[i] = set
		total += len(set)
	}
	if total == 0 {
		return nil, nil
	}
	return sets, nil
}

// walk visits nav and every node below it in document order. Attributes
// follow their element; namespace declarations are skipped.
func walk(nav *xmlquery.NodeNavigator, visit func(*xmlquery.NodeNavigator) error) error {
	if err := visit(nav); err != nil {
		return err
	}
	if nav.NodeType() == xpath.ElementNode {
		attrs := nav.Copy().(*xmlquery.NodeNavigator)
		for attrs.MoveToNextAttribute() {
			if isNamespaceAttr(attrs) {
				continue
			}
			if err := visit(attrs.Copy().(*xmlquery.NodeNavigator)); err != nil {
				return err
			}
		}
	}
	child := nav.Copy().(*xmlquery.NodeNavigator)
	if !child.MoveToChild() {
		return nil
	}
	for {
		if err := walk(child.Copy().(*xmlquery.NodeNavigator), visit); err != nil {
			return err
		}
		if !child.MoveToNext() {
			return nil
		}
	}
}

func (v *validation) fire(r *rule, nav xpath.NodeNavigator, parent *scope) error {
	if err := v.ctx.Err(); err != nil {
		return err
	}
	sc := parent
	if len(r.lets) > 0 {
		sc = newScope(parent)
		for _, l := range r.lets {
			if err := v.bind(sc, l, nav, r.context); err != nil {
				return err
			}
		}
	}
	if !v.schema.compact {
		if err := v.w.WriteEmptyElement(svrlName(svrl.ElemFiredRule)); err != nil {
			return err
		}
		if err := writeAttrs(v.w, "id", r.id, "context", r.context, "role", r.role, "flag", r.flag); err != nil {
			return err
		}
	}
	for _, c := range r.checks {
		val, _, err := v.eval(c.test, r.context, nav, sc)
		if err != nil {
			return err
		}
		if toBool(val) != c.report {
			continue
		}
		if err := v.finding(c, r, nav, sc); err != nil {
			return err
		}
	}
	return nil
}

func (v *validation) finding(c *check, r *rule, nav xpath.NodeNavigator, sc *scope) error {
	w := v.w
	local := svrl.ElemFailedAssert
	if c.report {
		local = svrl.ElemSuccessfulReport
	}
	if err := w.WriteStartElement(svrlName(local)); err != nil {
		return err
	}
	if err := writeAttrs(w, "id", c.id, "location", location(nav), "test", c.test, "role", c.role, "flag", c.flag); err != nil {
		return err
	}
	for _, id := range c.diagnostics {
		d, ok := v.schema.diagnostics[id]
		if !ok {
			continue
		}
		if err := w.WriteStartElement(svrlName(svrl.ElemDiagnosticRef)); err != nil {
			return err
		}
		if err := writeAttrs(w, "diagnostic", id, "role", dom.Attr(d, "role")); err != nil {
			return err
		}
		if err := v.text(d, nav, sc, r.context); err != nil {
			return err
		}
		if err := w.WriteEndElement(); err != nil {
			return err
		}
	}
	for _, id := range c.properties {
		p, ok := v.schema.properties[id]
		if !ok {
			continue
		}
		if err := w.WriteStartElement(svrlName(svrl.ElemPropertyRef)); err != nil {
			return err
		}
		if err := writeAttrs(w, "property", id, "role", dom.Attr(p, "role"), "scheme", dom.Attr(p, "scheme")); err != nil {
			return err
		}
		if err := v.text(p, nav, sc, r.context); err != nil {
			return err
		}
		if err := w.WriteEndElement(); err != nil {
			return err
		}
	}
	if err := v.text(c.node, nav, sc, r.context); err != nil {
		return err
	}
	return w.WriteEndElement()
}

var textAttrs = []struct{ space, prefix, local string }{
	{xmlns.XML, "xml", "space"},
	{xmlns.XML, "xml", "lang"},
	{"", "", "see"},
	{"", "", "icon"},
	{"", "", "fpi"},
}

// text writes an svrl:text element holding the evaluated content of el.
func (v *validation) text(el *xmlquery.Node, nav xpath.NodeNavigator, sc *scope, matchPattern string) error {
	if err := v.w.WriteStartElement(svrlName(svrl.ElemText)); err != nil {
		return err
	}
	for _, a := range textAttrs {
		val := dom.AttrNS(el, a.space, a.local)
		if val == "" {
			continue
		}
		if err := v.w.WriteAttribute(xmlwriter.Name{Space: a.space, Prefix: a.prefix, Local: a.local}, val); err != nil {
			return err
		}
	}
	if err := v.content(el, nav, sc, matchPattern); err != nil {
		return err
	}
	return v.w.WriteEndElement()
}

// content writes the children of el, evaluating sch:value-of and sch:name.
func (v *validation) content(el *xmlquery.Node, nav xpath.NodeNavigator, sc *scope, matchPattern string) error {
	w := v.w
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case isText(c):
			if err := w.WriteCharacters(c.Data); err != nil {
				return err
			}
		case c.Type != xmlquery.ElementNode:
		case isSchematron(c, "value-of"):
			val, _, err := v.eval(dom.Attr(c, "select"), matchPattern, nav, sc)
			if err != nil {
				return err
			}
			if err := w.WriteCharacters(toString(val, v.schema.version != "1.0")); err != nil {
				return err
			}
		case isSchematron(c, "name"):
			name := qualifiedName(nav)
			if path := dom.Attr(c, "path"); path != "" {
				val, _, err := v.eval(path, matchPattern, nav, sc)
				if err != nil {
					return err
				}
				name = ""
				if nodes, ok := val.([]xpath.NodeNavigator); ok && len(nodes) > 0 {
					name = qualifiedName(nodes[0])
				} else if !ok {
					name = toString(val, false)
				}
			}
			if err := w.WriteCharacters(name); err != nil {
				return err
			}
		case isSchematron(c, "emph"), isSchematron(c, "dir"), isSchematron(c, "span"):
			if err := w.WriteStartElement(svrlName(c.Data)); err != nil {
				return err
			}
			for _, a := range c.Attr {
				if dom.IsNamespaceDecl(a) || a.NamespaceURI != "" {
					continue
				}
				if err := w.WriteAttribute(xmlwriter.Name{Local: a.Name.Local}, a.Value); err != nil {
					return err
				}
			}
			if err := v.content(c, nav, sc, matchPattern); err != nil {
				return err
			}
			if err := w.WriteEndElement(); err != nil {
				return err
			}
		case c.NamespaceURI == SchematronNS:
			if err := v.content(c, nav, sc, matchPattern); err != nil {
				return err
			}
		default:
			if err := v.foreign(c, nav, sc, matchPattern); err != nil {
				return err
			}
		}
	}
	return nil
}

// foreign copies a non-Schematron element into the report.
func (v *validation) foreign(el *xmlquery.Node, nav xpath.NodeNavigator, sc *scope, matchPattern string) error {
	w := v.w
	name := dom.ElementName(el)
	if err := w.WriteStartElement(name); err != nil {
		return err
	}
	own := make(map[string]string)
	for _, d := range dom.NamespaceDecls(el) {
		own[d[0]] = d[1]
		if err := w.WriteNamespace(d[0], d[1]); err != nil {
			return err
		}
	}
	ensure := func(prefix, uri string) error {
		if prefix == "xml" {
			return nil
		}
		if bound, ok := own[prefix]; ok && bound == uri {
			return nil
		}
		if bound, ok := w.NamespaceContext().Lookup(prefix); ok && bound == uri {
			return nil
		}
		own[prefix] = uri
		return w.WriteNamespace(prefix, uri)
	}
	if err := ensure(name.Prefix, name.Space); err != nil {
		return err
	}
	for _, a := range el.Attr {
		if dom.IsNamespaceDecl(a) {
			continue
		}
		an := dom.AttrName(a)
		if an.Prefix != "" {
			if err := ensure(an.Prefix, an.Space); err != nil {
				return err
			}
		}
	}
	for _, a := range el.Attr {
		if dom.IsNamespaceDecl(a) {
			continue
		}
		if err := w.WriteAttribute(dom.AttrName(a), a.Value); err != nil {
			return err
		}
	}
	if err := v.content(el, nav, sc, matchPattern); err != nil {
		return err
	}
	return w.WriteEndElement()
}

