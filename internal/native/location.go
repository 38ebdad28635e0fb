package native

import (
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// nodeKey identifies a node independently of the navigator that reached it.
type nodeKey struct {
	node *xmlquery.Node
	attr string
}

func namespaceOf(nav xpath.NodeNavigator) string {
	if n, ok := nav.(interface{ NamespaceURL() string }); ok {
		return n.NamespaceURL()
	}
	return ""
}

// owner returns the node under nav, or the owning element for attributes.
func owner(nav xpath.NodeNavigator) (*xmlquery.Node, bool) {
	n, ok := nav.(*xmlquery.NodeNavigator)
	if !ok {
		return nil, false
	}
	if nav.NodeType() == xpath.AttributeNode {
		c := n.Copy().(*xmlquery.NodeNavigator)
		if !c.MoveToParent() {
			return nil, false
		}
		return c.Current(), true
	}
	return n.Current(), true
}

func keyOf(nav xpath.NodeNavigator) (nodeKey, bool) {
	n, ok := owner(nav)
	if !ok {
		return nodeKey{}, false
	}
	if nav.NodeType() == xpath.AttributeNode {
		return nodeKey{node: n, attr: "{" + namespaceOf(nav) + "}" + nav.LocalName()}, true
	}
	return nodeKey{node: n}, true
}

func isNamespaceAttr(nav xpath.NodeNavigator) bool {
	return nav.NodeType() == xpath.AttributeNode &&
		(nav.Prefix() == "xmlns" || nav.Prefix() == "" && nav.LocalName() == "xmlns")
}

func isText(n *xmlquery.Node) bool {
	return n.Type == xmlquery.TextNode || n.Type == xmlquery.CharDataNode
}

// position returns the 1-based index of n among its siblings accepted by same.
func position(n *xmlquery.Node, same func(*xmlquery.Node) bool) int {
	pos := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if same(s) {
			pos++
		}
	}
	return pos
}

// location renders the path of the node under nav using Q{uri}local steps.
func location(nav xpath.NodeNavigator) string {
	n, ok := owner(nav)
	if !ok {
		return ""
	}
	var b strings.Builder
	writeLocation(&b, n)
	if nav.NodeType() == xpath.AttributeNode {
		b.WriteString("/@")
		if ns := namespaceOf(nav); ns != "" {
			b.WriteString("Q{" + ns + "}")
		}
		b.WriteString(nav.LocalName())
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

func writeLocation(b *strings.Builder, n *xmlquery.Node) {
	if n == nil || n.Type == xmlquery.DocumentNode {
		return
	}
	writeLocation(b, n.Parent)
	switch {
	case n.Type == xmlquery.ElementNode:
		b.WriteString("/Q{" + n.NamespaceURI + "}" + n.Data)
		b.WriteString("[" + strconv.Itoa(position(n, func(s *xmlquery.Node) bool {
			return s.Type == xmlquery.ElementNode && s.Data == n.Data && s.NamespaceURI == n.NamespaceURI
		})) + "]")
	case isText(n):
		b.WriteString("/text()[" + strconv.Itoa(position(n, isText)) + "]")
	case n.Type == xmlquery.CommentNode:
		b.WriteString("/comment()[" + strconv.Itoa(position(n, func(s *xmlquery.Node) bool {
			return s.Type == xmlquery.CommentNode
		})) + "]")
	}
}

// nodePath renders a positional XPath 1.0 path selecting exactly the node
// under nav.
func nodePath(nav xpath.NodeNavigator) (string, bool) {
	n, ok := owner(nav)
	if !ok {
		return "", false
	}
	var b strings.Builder
	if !writeNodePath(&b, n) {
		return "", false
	}
	if nav.NodeType() == xpath.AttributeNode {
		b.WriteString("/@*[local-name() = " + stringLiteral(nav.LocalName()) +
			" and namespace-uri() = " + stringLiteral(namespaceOf(nav)) + "]")
	}
	if b.Len() == 0 {
		return "/", true
	}
	return b.String(), true
}

func writeNodePath(b *strings.Builder, n *xmlquery.Node) bool {
	if n == nil || n.Type == xmlquery.DocumentNode {
		return true
	}
	if !writeNodePath(b, n.Parent) {
		return false
	}
	switch {
	case n.Type == xmlquery.ElementNode:
		b.WriteString("/*[" + strconv.Itoa(position(n, func(s *xmlquery.Node) bool {
			return s.Type == xmlquery.ElementNode
		})) + "]")
	case isText(n):
		b.WriteString("/text()[" + strconv.Itoa(position(n, isText)) + "]")
	case n.Type == xmlquery.CommentNode:
		b.WriteString("/comment()[" + strconv.Itoa(position(n, func(s *xmlquery.Node) bool {
			return s.Type == xmlquery.CommentNode
		})) + "]")
	default:
		return false
	}
	return true
}

// qualifiedName returns the name of the node under nav as written in the
// source document.
func qualifiedName(nav xpath.NodeNavigator) string {
	switch nav.NodeType() {
	case xpath.ElementNode, xpath.AttributeNode:
		if p := nav.Prefix(); p != "" {
			return p + ":" + nav.LocalName()
		}
		return nav.LocalName()
	default:
		return ""
	}
}
