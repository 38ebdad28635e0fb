package dom

import (
	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/internal/xmlns"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// Serialize replays n into w. A document node produces a full document;
// any other node produces a fragment.
func Serialize(n *xmlquery.Node, w xmlwriter.Writer) error {
	if n.Type == xmlquery.DocumentNode {
		if err := w.WriteStartDocument(); err != nil {
			return err
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := serializeNode(c, w); err != nil {
				return err
			}
		}
		return w.WriteEndDocument()
	}
	return serializeNode(n, w)
}

func serializeNode(n *xmlquery.Node, w xmlwriter.Writer) error {
	switch n.Type {
	case xmlquery.ElementNode:
		return serializeElement(n, w)
	case xmlquery.TextNode, xmlquery.CharDataNode:
		return w.WriteCharacters(n.Data)
	case xmlquery.CommentNode:
		return w.WriteComment(n.Data)
	}
	return nil
}

func serializeElement(n *xmlquery.Node, w xmlwriter.Writer) error {
	name := ElementName(n)
	if err := w.WriteStartElement(name); err != nil {
		return err
	}
	for _, d := range NamespaceDecls(n) {
		if err := w.WriteNamespace(d[0], d[1]); err != nil {
			return err
		}
	}
	for _, a := range n.Attr {
		if IsNamespaceDecl(a) {
			continue
		}
		if err := w.WriteAttribute(AttrName(a), a.Value); err != nil {
			return err
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := serializeNode(c, w); err != nil {
			return err
		}
	}
	return w.WriteEndElement()
}

// ElementName returns the writer name of an element node.
func ElementName(n *xmlquery.Node) xmlwriter.Name {
	return xmlwriter.Name{Space: n.NamespaceURI, Prefix: n.Prefix, Local: n.Data}
}

// AttrName returns the writer name of an attribute.
func AttrName(a xmlquery.Attr) xmlwriter.Name {
	prefix := a.Name.Space
	if a.NamespaceURI == xmlns.XML {
		prefix = "xml"
	}
	return xmlwriter.Name{Space: a.NamespaceURI, Prefix: prefix, Local: a.Name.Local}
}
