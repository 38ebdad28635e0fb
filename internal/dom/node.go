package dom

import (
	"encoding/xml"

	"github.com/antchfx/xmlquery"
)

// DocumentElement returns the first element child of doc.
func DocumentElement(doc *xmlquery.Node) *xmlquery.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == xmlquery.ElementNode {
		return doc
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

// Elements returns the element children of n.
func Elements(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Is reports whether n is an element with the given namespace and local name.
func Is(n *xmlquery.Node, space, local string) bool {
	return n != nil && n.Type == xmlquery.ElementNode && n.NamespaceURI == space && n.Data == local
}

// Attr returns the value of the unqualified attribute local.
func Attr(n *xmlquery.Node, local string) string {
	return AttrNS(n, "", local)
}

// AttrNS returns the value of the attribute with the given namespace.
func AttrNS(n *xmlquery.Node, space, local string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if IsNamespaceDecl(a) {
			continue
		}
		if a.Name.Local == local && a.NamespaceURI == space {
			return a.Value
		}
	}
	return ""
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *xmlquery.Node, space, prefix, local, value string) {
	for i, a := range n.Attr {
		if IsNamespaceDecl(a) {
			continue
		}
		if a.Name.Local == local && a.NamespaceURI == space {
			n.Attr[i].Value = value
			return
		}
	}
	n.Attr = append(n.Attr, xmlquery.Attr{
		Name:         xml.Name{Space: prefix, Local: local},
		Value:        value,
		NamespaceURI: space,
	})
}

// RemoveAttr deletes an attribute.
func RemoveAttr(n *xmlquery.Node, space, local string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if !IsNamespaceDecl(a) && a.Name.Local == local && a.NamespaceURI == space {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

// DeclareNamespace adds an xmlns declaration to n unless the prefix is
// already declared there.
func DeclareNamespace(n *xmlquery.Node, prefix, uri string) {
	for _, a := range n.Attr {
		if p, ok := namespaceDecl(a.Name); ok && p == prefix {
			return
		}
	}
	name := xml.Name{Space: "xmlns", Local: prefix}
	if prefix == "" {
		name = xml.Name{Local: "xmlns"}
	}
	n.Attr = append(n.Attr, xmlquery.Attr{Name: name, Value: uri})
}

// NamespaceDecls returns the xmlns declarations made on n in order.
func NamespaceDecls(n *xmlquery.Node) [][2]string {
	var out [][2]string
	for _, a := range n.Attr {
		if p, ok := namespaceDecl(a.Name); ok {
			out = append(out, [2]string{p, a.Value})
		}
	}
	return out
}

// InScopeNamespaces returns the bindings visible on n, innermost wins.
func InScopeNamespaces(n *xmlquery.Node) map[string]string {
	var chain []*xmlquery.Node
	for p := n; p != nil; p = p.Parent {
		chain = append(chain, p)
	}
	out := make(map[string]string)
	for i := len(chain) - 1; i >= 0; i-- {
		for _, d := range NamespaceDecls(chain[i]) {
			out[d[0]] = d[1]
		}
	}
	return out
}

// Detach removes n from its parent.
func Detach(n *xmlquery.Node) {
	p := n.Parent
	if p == nil {
		return
	}
	if n.PrevSibling != nil {
		n.PrevSibling.NextSibling = n.NextSibling
	} else {
		p.FirstChild = n.NextSibling
	}
	if n.NextSibling != nil {
		n.NextSibling.PrevSibling = n.PrevSibling
	} else {
		p.LastChild = n.PrevSibling
	}
	n.Parent, n.PrevSibling, n.NextSibling = nil, nil, nil
}

// InsertBefore inserts n as a sibling immediately before ref.
func InsertBefore(ref, n *xmlquery.Node) {
	Detach(n)
	p := ref.Parent
	n.Parent = p
	n.NextSibling = ref
	n.PrevSibling = ref.PrevSibling
	if ref.PrevSibling != nil {
		ref.PrevSibling.NextSibling = n
	} else if p != nil {
		p.FirstChild = n
	}
	ref.PrevSibling = n
}

// Replace substitutes ref with the given nodes, in order.
func Replace(ref *xmlquery.Node, nodes ...*xmlquery.Node) {
	for _, n := range nodes {
		InsertBefore(ref, n)
	}
	Detach(ref)
}

// Clone returns a deep copy of n detached from any tree.
func Clone(n *xmlquery.Node) *xmlquery.Node {
	c := &xmlquery.Node{
		Type:         n.Type,
		Data:         n.Data,
		Prefix:       n.Prefix,
		NamespaceURI: n.NamespaceURI,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]xmlquery.Attr(nil), n.Attr...)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		xmlquery.AddChild(c, Clone(ch))
	}
	return c
}

// CloneChildren returns deep copies of n's children.
func CloneChildren(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		out = append(out, Clone(ch))
	}
	return out
}

// FindByID returns the first element under n whose id attribute equals id.
func FindByID(n *xmlquery.Node, id string) *xmlquery.Node {
	if n.Type == xmlquery.ElementNode && Attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		if found := FindByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// StringValue returns the concatenated text of n.
func StringValue(n *xmlquery.Node) string {
	return n.InnerText()
}
