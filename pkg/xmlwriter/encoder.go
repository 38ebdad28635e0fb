package xmlwriter

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/xmlns"
)

// DefaultEncoding is used when no encoding name is given.
const DefaultEncoding = "utf-8"

type pendingKind uint8

const (
	pendingNone pendingKind = iota
	pendingStart
	pendingEmpty
)

// Encoder serializes Writer events to an io.Writer.
// It is not safe for concurrent use.
type Encoder struct {
	out      *bufio.Writer
	closer   io.Closer
	err      error
	encoding string
	open     []Name
	ns       xmlns.Stack
	pending  pendingKind
	started  bool
	ended    bool
}

var _ Writer = (*Encoder)(nil)

// NewEncoder returns an Encoder writing to w in the named encoding.
// Characters the encoding cannot represent are written as character references.
func NewEncoder(w io.Writer, encodingName string) (*Encoder, error) {
	if w == nil {
		return nil, errors.Encoding(errors.ErrWrite, nil, "nil writer")
	}
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	e := &Encoder{encoding: encodingName}
	if isUTF8(encodingName) {
		e.out = bufio.NewWriter(w)
		return e, nil
	}
	enc, err := ianaindex.IANA.Encoding(encodingName)
	if err != nil || enc == nil {
		return nil, errors.Encoding(errors.ErrUnsupportedEncoding, err, "unsupported encoding %q", encodingName)
	}
	tw := transform.NewWriter(w, encoding.HTMLEscapeUnsupported(enc.NewEncoder()))
	e.out = bufio.NewWriter(tw)
	e.closer = tw
	return e, nil
}

func isUTF8(name string) bool {
	return strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8")
}

// Encoding returns the encoding name written in the XML declaration.
func (e *Encoder) Encoding() string {
	return e.encoding
}

// NamespaceContext returns the bindings declared on open elements.
func (e *Encoder) NamespaceContext() NamespaceContext {
	return &e.ns
}

// WriteStartDocument writes the XML declaration.
func (e *Encoder) WriteStartDocument() error {
	if e.started {
		return e.fail(errors.Encoding(errors.ErrMalformedEvents, nil, "XML declaration after content"))
	}
	e.started = true
	return e.write(`<?xml version="1.0" encoding="` + e.encoding + `"?>`)
}

// WriteEndDocument closes any open elements and flushes all output.
func (e *Encoder) WriteEndDocument() error {
	if err := e.closePending(); err != nil {
		return err
	}
	for len(e.open) > 0 {
		if err := e.WriteEndElement(); err != nil {
			return err
		}
	}
	e.ended = true
	if err := e.Flush(); err != nil {
		return err
	}
	if e.closer != nil {
		closer := e.closer
		e.closer = nil
		if err := closer.Close(); err != nil {
			return e.fail(errors.Encoding(errors.ErrWrite, err, "flush encoded output"))
		}
	}
	return nil
}

// WriteStartElement opens an element.
func (e *Encoder) WriteStartElement(name Name) error {
	return e.startElement(name, pendingStart)
}

// WriteEmptyElement writes an element that takes no content.
func (e *Encoder) WriteEmptyElement(name Name) error {
	return e.startElement(name, pendingEmpty)
}

func (e *Encoder) startElement(name Name, kind pendingKind) error {
	if name.Local == "" {
		return e.fail(errors.Encoding(errors.ErrMalformedEvents, nil, "element without local name"))
	}
	if err := e.closePending(); err != nil {
		return err
	}
	e.started = true
	e.ns.Push()
	if kind == pendingStart {
		e.open = append(e.open, name)
	}
	e.pending = kind
	return e.write("<" + name.String())
}

// WriteEndElement closes the innermost open element.
func (e *Encoder) WriteEndElement() error {
	if err := e.closePending(); err != nil {
		return err
	}
	if len(e.open) == 0 {
		return e.fail(errors.Encoding(errors.ErrMalformedEvents, nil, "end element without matching start"))
	}
	name := e.open[len(e.open)-1]
	e.open = e.open[:len(e.open)-1]
	e.ns.Pop()
	return e.write("</" + name.String() + ">")
}

// WriteNamespace declares a binding on the current element. Repeating a
// binding already declared on the element is a no-op.
func (e *Encoder) WriteNamespace(prefix, uri string) error {
	if e.pending == pendingNone {
		return e.fail(errors.Encoding(errors.ErrMalformedEvents, nil, "namespace declaration outside a start tag"))
	}
	if prefix == "xml" || prefix == "xmlns" {
		return nil
	}
	if bound, ok := e.ns.DeclaredHere(prefix); ok {
		if bound == uri {
			return nil
		}
		return e.fail(errors.Encoding(errors.ErrMalformedEvents, nil,
			"prefix %q already bound to %q on this element", prefix, bound))
	}
	e.ns.Declare(prefix, uri)
	var b strings.Builder
	if prefix == "" {
		b.WriteString(` xmlns="`)
	} else {
		b.WriteString(" xmlns:")
		b.WriteString(prefix)
		b.WriteString(`="`)
	}
	escapeAttr(&b, uri)
	b.WriteByte('"')
	return e.write(b.String())
}

// WriteAttribute writes an attribute on the current element.
func (e *Encoder) WriteAttribute(name Name, value string) error {
	if e.pending == pendingNone {
		return e.fail(errors.Encoding(errors.ErrMalformedEvents, nil, "attribute outside a start tag"))
	}
	var b strings.Builder
	b.WriteByte(' ')
	b.WriteString(name.String())
	b.WriteString(`="`)
	escapeAttr(&b, value)
	b.WriteByte('"')
	return e.write(b.String())
}

// WriteCharacters writes escaped character data.
func (e *Encoder) WriteCharacters(text string) error {
	if err := e.closePending(); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	var b strings.Builder
	escapeText(&b, text)
	return e.write(b.String())
}

// WriteComment writes a comment.
func (e *Encoder) WriteComment(text string) error {
	if err := e.closePending(); err != nil {
		return err
	}
	if strings.Contains(text, "--") {
		text = strings.ReplaceAll(text, "--", "- -")
	}
	return e.write("<!--" + text + "-->")
}

// WriteProcessingInstruction writes a processing instruction.
func (e *Encoder) WriteProcessingInstruction(target, data string) error {
	if err := e.closePending(); err != nil {
		return err
	}
	if data == "" {
		return e.write("<?" + target + "?>")
	}
	return e.write("<?" + target + " " + data + "?>")
}

// Flush writes buffered output to the underlying writer.
func (e *Encoder) Flush() error {
	if e.err != nil {
		return e.err
	}
	if err := e.out.Flush(); err != nil {
		return e.fail(errors.Encoding(errors.ErrWrite, err, "flush output"))
	}
	return nil
}

func (e *Encoder) closePending() error {
	switch e.pending {
	case pendingStart:
		e.pending = pendingNone
		return e.write(">")
	case pendingEmpty:
		e.pending = pendingNone
		e.ns.Pop()
		return e.write("/>")
	default:
		return e.err
	}
}

func (e *Encoder) write(s string) error {
	if e.err != nil {
		return e.err
	}
	if _, err := e.out.WriteString(s); err != nil {
		return e.fail(errors.Encoding(errors.ErrWrite, err, "write output"))
	}
	return nil
}

func (e *Encoder) fail(err error) error {
	if e.err == nil {
		e.err = err
	}
	return e.err
}
