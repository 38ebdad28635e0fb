package native

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/pkg/transform"
)

// expandStage instantiates abstract patterns and inlines abstract rules.
func expandStage(ctx context.Context, doc *xmlquery.Node, _ transform.Run, _ string) error {
	root, err := schemaElement(doc)
	if err != nil {
		return fmt.Errorf("expand: %w", err)
	}
	x := &expander{
		patterns: make(map[string]*xmlquery.Node),
		rules:    make(map[string]*xmlquery.Node),
	}
	for _, el := range descendants(root, isAbstract) {
		id := dom.Attr(el, "id")
		if id == "" {
			return fmt.Errorf("expand: abstract %s without id", el.Data)
		}
		switch el.Data {
		case "pattern":
			x.patterns[id] = el
		case "rule":
			x.rules[id] = el
		}
	}
	for _, p := range dom.Elements(root) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !isSchematron(p, "pattern") || dom.Attr(p, "is-a") == "" {
			continue
		}
		inst, err := x.instantiate(p)
		if err != nil {
			return err
		}
		dom.Replace(p, inst)
	}
	if err := x.extend(root, nil); err != nil {
		return err
	}
	for _, el := range descendants(root, isAbstract) {
		dom.Detach(el)
	}
	return nil
}

func isAbstract(n *xmlquery.Node) bool {
	return (isSchematron(n, "pattern") || isSchematron(n, "rule")) && dom.Attr(n, "abstract") == "true"
}

type expander struct {
	patterns map[string]*xmlquery.Node
	rules    map[string]*xmlquery.Node
}

// instantiate builds a concrete pattern from an is-a reference.
func (x *expander) instantiate(ref *xmlquery.Node) (*xmlquery.Node, error) {
	isA := dom.Attr(ref, "is-a")
	abs, ok := x.patterns[isA]
	if !ok {
		return nil, fmt.Errorf("expand: pattern %q refers to unknown abstract pattern %q", dom.Attr(ref, "id"), isA)
	}
	params := make(map[string]string)
	inst := &xmlquery.Node{
		Type:         xmlquery.ElementNode,
		Data:         "pattern",
		Prefix:       ref.Prefix,
		NamespaceURI: ref.NamespaceURI,
	}
	for _, a := range ref.Attr {
		if !dom.IsNamespaceDecl(a) && a.NamespaceURI == "" && (a.Name.Local == "is-a" || a.Name.Local == "abstract") {
			continue
		}
		inst.Attr = append(inst.Attr, a)
	}
	for _, a := range abs.Attr {
		if dom.IsNamespaceDecl(a) || a.Name.Local == "id" || a.Name.Local == "abstract" {
			continue
		}
		if dom.AttrNS(inst, a.NamespaceURI, a.Name.Local) == "" {
			inst.Attr = append(inst.Attr, a)
		}
	}
	copyNamespaces(inst, abs)
	for c := ref.FirstChild; c != nil; c = c.NextSibling {
		if isSchematron(c, "param") {
			name := dom.Attr(c, "name")
			if name == "" {
				return nil, fmt.Errorf("expand: pattern %q has a param without name", dom.Attr(ref, "id"))
			}
			params[name] = dom.Attr(c, "value")
			continue
		}
		xmlquery.AddChild(inst, dom.Clone(c))
	}
	for _, c := range dom.CloneChildren(abs) {
		if c.Type == xmlquery.ElementNode {
			substituteTree(c, params)
		}
		xmlquery.AddChild(inst, c)
	}
	if documents := dom.Attr(inst, "documents"); documents != "" {
		dom.SetAttr(inst, "", "", "documents", replaceParams(documents, params))
	}
	return inst, nil
}

// extend inlines the content of abstract rules in place of sch:extends[@rule].
func (x *expander) extend(n *xmlquery.Node, seen []string) error {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type != xmlquery.ElementNode {
			c = next
			continue
		}
		if !isSchematron(c, "extends") || dom.Attr(c, "rule") == "" {
			if err := x.extend(c, seen); err != nil {
				return err
			}
			c = next
			continue
		}
		id := dom.Attr(c, "rule")
		abs, ok := x.rules[id]
		if !ok {
			return fmt.Errorf("expand: extends refers to unknown abstract rule %q", id)
		}
		for _, s := range seen {
			if s == id {
				return fmt.Errorf("expand: abstract rule %q extends itself", id)
			}
		}
		holder := &xmlquery.Node{Type: xmlquery.ElementNode, Data: "holder"}
		for _, ch := range dom.CloneChildren(abs) {
			xmlquery.AddChild(holder, ch)
		}
		if err := x.extend(holder, append(seen, id)); err != nil {
			return err
		}
		var inlined []*xmlquery.Node
		for ch := holder.FirstChild; ch != nil; ch = ch.NextSibling {
			inlined = append(inlined, ch)
		}
		for _, ch := range inlined {
			dom.Detach(ch)
			if ch.Type == xmlquery.ElementNode {
				copyNamespaces(ch, abs)
			}
		}
		dom.Replace(c, inlined...)
		c = next
	}
	return nil
}

// substituteTree replaces parameter references in every attribute of the
// Schematron elements under n.
func substituteTree(n *xmlquery.Node, params map[string]string) {
	if len(params) == 0 {
		return
	}
	if n.NamespaceURI == SchematronNS {
		for i, a := range n.Attr {
			if dom.IsNamespaceDecl(a) {
				continue
			}
			n.Attr[i].Value = replaceParams(a.Value, params)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			substituteTree(c, params)
		}
	}
}

// replaceParams replaces $name with the value of the parameter name. A
// reference to an undeclared parameter is kept.
func replaceParams(s string, params map[string]string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '$' {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := scanName(s, i+1)
		if v, ok := params[s[i+1:j]]; ok && j > i+1 {
			b.WriteString(v)
		} else {
			b.WriteString(s[i:j])
		}
		i = j
	}
	return b.String()
}

// scanName returns the end of the QName starting at i.
func scanName(s string, i int) int {
	j := i
	for j < len(s) {
		c := s[j]
		switch {
		case c == '_' || c >= 0x80 || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case j > i && (c == '-' || c == '.' || c == ':' || c >= '0' && c <= '9'):
		default:
			return j
		}
		j++
	}
	return j
}
