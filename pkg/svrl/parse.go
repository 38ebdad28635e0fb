package svrl

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/jacoelho/schematron/internal/xmlns"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// ErrNotReport is returned when the document root is not schematron-output.
var ErrNotReport = errors.New("not a schematron-output document")

type frameKind uint8

const (
	frameIgnored frameKind = iota
	frameOutput
	frameSection
	frameMetadata
	frameAssert
	frameDiagnostic
	frameProperty
	frameText
)

type frame struct {
	assert *AssertOrReport
	diag   DiagnosticReference
	prop   PropertyReference
	text   HumanText
	// markup depth inside captured rich content
	rich int
	// an assert frame received its text
	hasText bool
	kind    frameKind
}

func (f *frame) capturing() bool {
	return f.kind == frameText || f.kind == frameMetadata
}

// structural reports whether report-level elements may appear in f.
func (f *frame) structural() bool {
	return f.kind == frameOutput || f.kind == frameSection
}

type parser struct {
	out     *SchematronOutput
	pattern *ActivePattern
	rule    *FiredRule
	// synthetic is set once a finding arrived outside any wrapper;
	// wrapped once an active-pattern or fired-rule was read.
	synthetic bool
	wrapped   bool
	names     []xml.Name
	stack     []frame
	ns        xmlns.Stack
}

// Parse reads a report from r. The input encoding is taken from the XML
// declaration. Elements outside the report namespace are ignored except
// inside human text and metadata, where they are kept as markup.
func Parse(r io.Reader) (*SchematronOutput, error) {
	return parse(r, charset.NewReaderLabel)
}

// ParseWithEncoding reads a report written in the named encoding. It is
// meant for reports stored without an XML declaration; a declaration, if
// present, is not used to decode the input again.
func ParseWithEncoding(r io.Reader, encodingName string) (*SchematronOutput, error) {
	if encodingName == "" || strings.EqualFold(encodingName, "utf-8") || strings.EqualFold(encodingName, "utf8") {
		return Parse(r)
	}
	enc, err := ianaindex.IANA.Encoding(encodingName)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("parse report: unsupported encoding %q", encodingName)
	}
	decoded := func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
	return parse(enc.NewDecoder().Reader(r), decoded)
}

func parse(r io.Reader, charsetReader func(string, io.Reader) (io.Reader, error)) (*SchematronOutput, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader
	p := &parser{}
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse report: %w", err)
		}
		if err := p.token(tok); err != nil {
			line, col := dec.InputPos()
			return nil, fmt.Errorf("parse report at line %d, column %d: %w", line, col, err)
		}
	}
	if p.out == nil {
		return nil, fmt.Errorf("parse report: %w", ErrNotReport)
	}
	if len(p.stack) > 0 {
		return nil, fmt.Errorf("parse report: unexpected end of document")
	}
	// a report is compact only when no finding had an explicit wrapper
	p.out.Compact = p.synthetic && !p.wrapped
	return p.out, nil
}

// ParseBytes reads a report from data.
func ParseBytes(data []byte) (*SchematronOutput, error) {
	return Parse(bytes.NewReader(data))
}

// ParseString reads a report from s.
func ParseString(s string) (*SchematronOutput, error) {
	return Parse(strings.NewReader(s))
}

func (p *parser) token(tok xml.Token) error {
	switch t := tok.(type) {
	case xml.StartElement:
		return p.start(t)
	case xml.EndElement:
		return p.end(t)
	case xml.CharData:
		if len(p.stack) > 0 {
			if top := &p.stack[len(p.stack)-1]; top.capturing() {
				top.text.Content = top.text.Content.appendText(string(t))
			}
		}
	}
	return nil
}

func (p *parser) resolve(name xml.Name, attr bool) (xmlwriter.Name, error) {
	if attr && name.Space == "" {
		return xmlwriter.Name{Local: name.Local}, nil
	}
	uri, ok := p.ns.Lookup(name.Space)
	if !ok {
		return xmlwriter.Name{}, fmt.Errorf("unbound namespace prefix %q", name.Space)
	}
	return xmlwriter.Name{Space: uri, Prefix: name.Space, Local: name.Local}, nil
}

func isNamespaceDecl(a xml.Attr) (string, bool) {
	if a.Name.Space == "xmlns" {
		return a.Name.Local, true
	}
	if a.Name.Space == "" && a.Name.Local == defaultXMLNSLocal {
		return "", true
	}
	return "", false
}

func (p *parser) start(t xml.StartElement) error {
	p.names = append(p.names, t.Name)
	p.ns.Push()
	var decls []Namespace
	var attrs []Attr
	for _, a := range t.Attr {
		if prefix, ok := isNamespaceDecl(a); ok {
			p.ns.Declare(prefix, a.Value)
			decls = append(decls, Namespace{Prefix: prefix, URI: a.Value})
		}
	}
	for _, a := range t.Attr {
		if _, ok := isNamespaceDecl(a); ok {
			continue
		}
		name, err := p.resolve(a.Name, true)
		if err != nil {
			return err
		}
		attrs = append(attrs, Attr{Name: name, Value: a.Value})
	}
	name, err := p.resolve(t.Name, false)
	if err != nil {
		return err
	}

	if len(p.stack) == 0 {
		if p.out != nil {
			return fmt.Errorf("content after report root")
		}
		if !name.Is(NamespaceURI, ElemSchematronOutput) {
			return ErrNotReport
		}
		p.out = &SchematronOutput{
			Title:         attrValue(attrs, "title"),
			Phase:         attrValue(attrs, "phase"),
			SchemaVersion: attrValue(attrs, "schemaVersion"),
			Namespaces:    decls,
		}
		p.stack = append(p.stack, frame{kind: frameOutput})
		return nil
	}

	top := &p.stack[len(p.stack)-1]
	if top.capturing() {
		top.rich++
		top.text.Content = append(top.text.Content, Event{
			Kind:       EventStartElement,
			Name:       name,
			Attrs:      attrs,
			Namespaces: decls,
		})
		return nil
	}
	if top.kind == frameIgnored || name.Space != NamespaceURI {
		p.push(frameIgnored)
		return nil
	}
	return p.startReportElement(top, name.Local, attrs)
}

func (p *parser) push(kind frameKind) {
	p.stack = append(p.stack, frame{kind: kind})
}

func (p *parser) startReportElement(top *frame, local string, attrs []Attr) error {
	switch {
	case local == ElemText && (top.kind == frameOutput || top.kind == frameAssert || top.kind == frameDiagnostic || top.kind == frameProperty):
		p.stack = append(p.stack, frame{kind: frameText, text: HumanText{
			Space: attrValueNS(attrs, xmlNamespace, "space"),
			Lang:  attrValueNS(attrs, xmlNamespace, "lang"),
			See:   attrValue(attrs, "see"),
			Icon:  attrValue(attrs, "icon"),
			FPI:   attrValue(attrs, "fpi"),
		}})
	case local == ElemMetadata && top.kind == frameOutput:
		p.push(frameMetadata)
	case local == ElemNsPrefix && top.structural():
		p.out.NsPrefixes = append(p.out.NsPrefixes, Namespace{
			Prefix: attrValue(attrs, "prefix"),
			URI:    attrValue(attrs, "uri"),
		})
		p.push(frameIgnored)
	case local == ElemActivePattern && top.structural():
		p.wrapped = true
		p.pattern = &ActivePattern{
			ID:        attrValue(attrs, "id"),
			Name:      attrValue(attrs, "name"),
			Documents: attrValue(attrs, "documents"),
			Role:      attrValue(attrs, "role"),
		}
		p.out.ActivePatterns = append(p.out.ActivePatterns, p.pattern)
		p.rule = nil
		p.push(frameSection)
	case local == ElemFiredRule && top.structural():
		p.wrapped = true
		if p.pattern == nil {
			p.pattern = &ActivePattern{}
			p.out.ActivePatterns = append(p.out.ActivePatterns, p.pattern)
		}
		p.rule = &FiredRule{
			ID:      attrValue(attrs, "id"),
			Name:    attrValue(attrs, "name"),
			Context: attrValue(attrs, "context"),
			Role:    attrValue(attrs, "role"),
			Flag:    attrValue(attrs, "flag"),
		}
		p.pattern.FiredRules = append(p.pattern.FiredRules, p.rule)
		p.push(frameSection)
	case (local == ElemFailedAssert || local == ElemSuccessfulReport) && top.structural():
		if p.rule == nil {
			if p.pattern == nil {
				// compact report: one synthetic pattern and rule hold every finding
				p.pattern = &ActivePattern{}
				p.out.ActivePatterns = append(p.out.ActivePatterns, p.pattern)
				p.synthetic = true
			}
			p.rule = &FiredRule{}
			p.pattern.FiredRules = append(p.pattern.FiredRules, p.rule)
		}
		ar := &AssertOrReport{
			FailedAssert: local == ElemFailedAssert,
			ID:           attrValue(attrs, "id"),
			Location:     attrValue(attrs, "location"),
			Test:         attrValue(attrs, "test"),
			Role:         attrValue(attrs, "role"),
			Flag:         attrValue(attrs, "flag"),
		}
		p.rule.AssertsAndReports = append(p.rule.AssertsAndReports, ar)
		p.stack = append(p.stack, frame{kind: frameAssert, assert: ar})
	case local == ElemDiagnosticRef && top.kind == frameAssert:
		p.stack = append(p.stack, frame{kind: frameDiagnostic, diag: DiagnosticReference{
			Diagnostic: attrValue(attrs, "diagnostic"),
			Role:       attrValue(attrs, "role"),
			Scheme:     attrValue(attrs, "scheme"),
		}})
	case local == ElemPropertyRef && top.kind == frameAssert:
		p.stack = append(p.stack, frame{kind: frameProperty, prop: PropertyReference{
			Property: attrValue(attrs, "property"),
			Role:     attrValue(attrs, "role"),
			Scheme:   attrValue(attrs, "scheme"),
		}})
	default:
		p.push(frameIgnored)
	}
	return nil
}

func (p *parser) end(t xml.EndElement) error {
	if len(p.names) == 0 {
		return fmt.Errorf("unexpected end element %s", qualified(t.Name))
	}
	open := p.names[len(p.names)-1]
	if open != t.Name {
		return fmt.Errorf("element %s closed by %s", qualified(open), qualified(t.Name))
	}
	p.names = p.names[:len(p.names)-1]
	p.ns.Pop()

	top := &p.stack[len(p.stack)-1]
	if top.capturing() && top.rich > 0 {
		top.rich--
		top.text.Content = append(top.text.Content, Event{Kind: EventEndElement})
		return nil
	}
	done := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	if len(p.stack) == 0 {
		return nil
	}
	parent := &p.stack[len(p.stack)-1]
	switch done.kind {
	case frameText:
		switch parent.kind {
		case frameOutput:
			p.out.Texts = append(p.out.Texts, done.text)
		case frameAssert:
			parent.assert.Text = done.text
			parent.hasText = true
		case frameDiagnostic:
			parent.diag.Text = done.text
		case frameProperty:
			parent.prop.Text = done.text
		}
	case frameAssert:
		if !done.hasText {
			return fmt.Errorf("%s at %q has no text", done.assert.Kind(), done.assert.Location)
		}
	case frameMetadata:
		p.out.Metadata = done.text.Content
	case frameDiagnostic:
		parent.assert.DiagnosticReferences = append(parent.assert.DiagnosticReferences, done.diag)
	case frameProperty:
		parent.assert.PropertyReferences = append(parent.assert.PropertyReferences, done.prop)
	}
	return nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func attrValue(attrs []Attr, local string) string {
	return attrValueNS(attrs, "", local)
}

func attrValueNS(attrs []Attr, space, local string) string {
	for _, a := range attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
