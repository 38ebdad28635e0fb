package dom

import (
	"encoding/xml"
	"fmt"

	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/internal/xmlns"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// Builder is a xmlwriter.Writer that assembles a tree.
type Builder struct {
	doc   *xmlquery.Node
	stack []*xmlquery.Node
	// element receiving attributes and namespaces
	target *xmlquery.Node
	empty  bool
	ns     xmlns.Stack
}

var _ xmlwriter.Writer = (*Builder)(nil)

// NewBuilder returns a Builder with an empty document node.
func NewBuilder() *Builder {
	doc := &xmlquery.Node{Type: xmlquery.DocumentNode}
	return &Builder{doc: doc, stack: []*xmlquery.Node{doc}}
}

// Document returns the document node built so far.
func (b *Builder) Document() *xmlquery.Node {
	return b.doc
}

func (b *Builder) current() *xmlquery.Node {
	return b.stack[len(b.stack)-1]
}

func (b *Builder) closeEmpty() {
	if b.empty {
		b.empty = false
		b.ns.Pop()
	}
	b.target = nil
}

func (b *Builder) WriteStartDocument() error { return nil }

func (b *Builder) WriteEndDocument() error {
	b.closeEmpty()
	if len(b.stack) != 1 {
		return fmt.Errorf("build document: %d elements left open", len(b.stack)-1)
	}
	return nil
}

func (b *Builder) element(name xmlwriter.Name) *xmlquery.Node {
	b.closeEmpty()
	n := &xmlquery.Node{
		Type:         xmlquery.ElementNode,
		Data:         name.Local,
		Prefix:       name.Prefix,
		NamespaceURI: name.Space,
	}
	xmlquery.AddChild(b.current(), n)
	b.ns.Push()
	b.target = n
	return n
}

func (b *Builder) WriteStartElement(name xmlwriter.Name) error {
	n := b.element(name)
	b.stack = append(b.stack, n)
	return nil
}

func (b *Builder) WriteEmptyElement(name xmlwriter.Name) error {
	b.element(name)
	b.empty = true
	return nil
}

func (b *Builder) WriteEndElement() error {
	b.closeEmpty()
	if len(b.stack) == 1 {
		return fmt.Errorf("build document: end element without start")
	}
	b.stack = b.stack[:len(b.stack)-1]
	b.ns.Pop()
	return nil
}

func (b *Builder) WriteNamespace(prefix, uri string) error {
	if b.target == nil {
		return fmt.Errorf("build document: namespace declaration outside a start tag")
	}
	if bound, ok := b.ns.DeclaredHere(prefix); ok && bound == uri {
		return nil
	}
	b.ns.Declare(prefix, uri)
	DeclareNamespace(b.target, prefix, uri)
	return nil
}

func (b *Builder) WriteAttribute(name xmlwriter.Name, value string) error {
	if b.target == nil {
		return fmt.Errorf("build document: attribute outside a start tag")
	}
	b.target.Attr = append(b.target.Attr, xmlquery.Attr{
		Name:         xml.Name{Space: name.Prefix, Local: name.Local},
		Value:        value,
		NamespaceURI: name.Space,
	})
	return nil
}

func (b *Builder) WriteCharacters(text string) error {
	b.closeEmpty()
	if b.current() == b.doc {
		return nil
	}
	appendText(b.current(), text)
	return nil
}

func (b *Builder) WriteComment(text string) error {
	b.closeEmpty()
	xmlquery.AddChild(b.current(), &xmlquery.Node{Type: xmlquery.CommentNode, Data: text})
	return nil
}

// WriteProcessingInstruction drops the instruction; trees carry none.
func (b *Builder) WriteProcessingInstruction(string, string) error {
	b.closeEmpty()
	return nil
}

func (b *Builder) NamespaceContext() xmlwriter.NamespaceContext {
	return &b.ns
}

func (b *Builder) Flush() error { return nil }
