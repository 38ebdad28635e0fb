// Package dom builds and replays github.com/antchfx/xmlquery trees.
package dom

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html/charset"

	"github.com/jacoelho/schematron/internal/xmlns"
)

// Parse reads an XML document into a tree rooted at a document node.
// Element and attribute names keep the prefixes used in the source.
// Processing instructions and doctype declarations are dropped.
func Parse(r io.Reader) (*xmlquery.Node, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	doc := &xmlquery.Node{Type: xmlquery.DocumentNode}
	var (
		ns    xmlns.Stack
		stack = []*xmlquery.Node{doc}
		names []xml.Name
	)
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		parent := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			if parent == doc && DocumentElement(doc) != nil {
				return nil, syntaxError(dec, "multiple root elements")
			}
			ns.Push()
			for _, a := range t.Attr {
				if prefix, ok := namespaceDecl(a.Name); ok {
					ns.Declare(prefix, a.Value)
				}
			}
			uri, ok := ns.Lookup(t.Name.Space)
			if !ok {
				return nil, syntaxError(dec, fmt.Sprintf("unbound namespace prefix %q", t.Name.Space))
			}
			n := &xmlquery.Node{
				Type:         xmlquery.ElementNode,
				Data:         t.Name.Local,
				Prefix:       t.Name.Space,
				NamespaceURI: uri,
			}
			for _, a := range t.Attr {
				attr := xmlquery.Attr{Name: a.Name, Value: a.Value}
				if _, ok := namespaceDecl(a.Name); !ok && a.Name.Space != "" {
					attrURI, ok := ns.Lookup(a.Name.Space)
					if !ok {
						return nil, syntaxError(dec, fmt.Sprintf("unbound namespace prefix %q", a.Name.Space))
					}
					attr.NamespaceURI = attrURI
				}
				n.Attr = append(n.Attr, attr)
			}
			xmlquery.AddChild(parent, n)
			stack = append(stack, n)
			names = append(names, t.Name)
		case xml.EndElement:
			if len(names) == 0 || names[len(names)-1] != t.Name {
				return nil, syntaxError(dec, fmt.Sprintf("unexpected end element %s", t.Name.Local))
			}
			names = names[:len(names)-1]
			stack = stack[:len(stack)-1]
			ns.Pop()
		case xml.CharData:
			if parent == doc {
				continue
			}
			appendText(parent, string(t))
		case xml.Comment:
			xmlquery.AddChild(parent, &xmlquery.Node{Type: xmlquery.CommentNode, Data: string(t)})
		}
	}
	if len(names) > 0 {
		return nil, syntaxError(dec, "unexpected end of document")
	}
	if DocumentElement(doc) == nil {
		return nil, syntaxError(dec, "no root element")
	}
	return doc, nil
}

func syntaxError(dec *xml.Decoder, msg string) error {
	line, col := dec.InputPos()
	return fmt.Errorf("line %d, column %d: %s", line, col, msg)
}

func namespaceDecl(name xml.Name) (string, bool) {
	if name.Space == "xmlns" {
		return name.Local, true
	}
	if name.Space == "" && name.Local == "xmlns" {
		return "", true
	}
	return "", false
}

// IsNamespaceDecl reports whether a is an xmlns declaration.
func IsNamespaceDecl(a xmlquery.Attr) bool {
	_, ok := namespaceDecl(a.Name)
	return ok
}

func appendText(parent *xmlquery.Node, s string) {
	if s == "" {
		return
	}
	if last := parent.LastChild; last != nil && last.Type == xmlquery.TextNode {
		last.Data += s
		return
	}
	xmlquery.AddChild(parent, &xmlquery.Node{Type: xmlquery.TextNode, Data: s})
}
