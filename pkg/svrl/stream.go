package svrl

import (
	"strings"

	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// StreamOptions configures a StreamWriter.
type StreamOptions struct {
	// Indent writes a newline and two spaces per level before elements
	// outside human text.
	Indent bool
	// OmitDeclaration drops the XML declaration.
	OmitDeclaration bool
	// PrefixLocations rewrites Q{uri} tokens in location attributes to the
	// prefix bound to uri.
	PrefixLocations bool
	// KeepDeclarations disables namespace declaration filtering.
	KeepDeclarations bool
}

type streamFrame struct {
	name      xmlwriter.Name
	declared  map[string]string
	collapsed bool
	children  bool
	metadata  bool
}

// StreamWriter is a xmlwriter.Writer decorator that applies report
// formatting policy while events flow through it:
//
//   - location attributes are rewritten to prefix form when requested;
//   - ns-prefix-in-attribute-values, active-pattern and fired-rule are
//     always written as empty elements;
//   - indentation is added outside human text;
//   - internal namespace declarations are dropped and redundant ones are
//     suppressed;
//   - failed assertions and successful reports are counted.
//
// A StreamWriter is not safe for concurrent use.
type StreamWriter struct {
	w          xmlwriter.Writer
	opts       StreamOptions
	stack      []streamFrame
	cur        *streamFrame
	global     map[string]string
	suppressed map[string]string
	inText     int
	asserts    int
	reports    int
	rootSeen   bool
}

var _ xmlwriter.Writer = (*StreamWriter)(nil)

// NewStreamWriter wraps w.
func NewStreamWriter(w xmlwriter.Writer, opts StreamOptions) *StreamWriter {
	return &StreamWriter{
		w:          w,
		opts:       opts,
		global:     make(map[string]string),
		suppressed: make(map[string]string),
	}
}

// AssertsCount returns the number of failed-assert elements written.
func (s *StreamWriter) AssertsCount() int { return s.asserts }

// ReportsCount returns the number of successful-report elements written.
func (s *StreamWriter) ReportsCount() int { return s.reports }

// NamespaceContext returns the bindings in scope on the underlying writer.
func (s *StreamWriter) NamespaceContext() xmlwriter.NamespaceContext {
	return s.w.NamespaceContext()
}

// WriteStartDocument writes the XML declaration unless it is omitted.
func (s *StreamWriter) WriteStartDocument() error {
	if s.opts.OmitDeclaration {
		return nil
	}
	return s.w.WriteStartDocument()
}

// WriteEndDocument flushes the document.
func (s *StreamWriter) WriteEndDocument() error {
	return s.w.WriteEndDocument()
}

func isCollapsed(name xmlwriter.Name) bool {
	if name.Space != NamespaceURI {
		return false
	}
	switch name.Local {
	case ElemNsPrefix, ElemActivePattern, ElemFiredRule:
		return true
	}
	return false
}

// indentDepth counts open elements that were not collapsed.
func (s *StreamWriter) indentDepth() int {
	n := 0
	for i := range s.stack {
		if !s.stack[i].collapsed {
			n++
		}
	}
	return n
}

func (s *StreamWriter) parent() *streamFrame {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if !s.stack[i].collapsed {
			return &s.stack[i]
		}
	}
	return nil
}

func (s *StreamWriter) inMetadata() bool {
	return len(s.stack) > 0 && s.stack[len(s.stack)-1].metadata
}

func (s *StreamWriter) indent(depth int) error {
	if !s.opts.Indent || s.inText > 0 {
		return nil
	}
	return s.w.WriteCharacters("\n" + strings.Repeat("  ", depth))
}

// WriteStartElement opens an element. Elements that must be empty in a
// report are written as empty elements and their end event is dropped.
func (s *StreamWriter) WriteStartElement(name xmlwriter.Name) error {
	if isCollapsed(name) {
		if err := s.startElement(name, true); err != nil {
			return err
		}
		s.stack = append(s.stack, streamFrame{name: name, collapsed: true, metadata: s.inMetadata()})
		s.cur = &s.stack[len(s.stack)-1]
		return nil
	}
	if err := s.startElement(name, false); err != nil {
		return err
	}
	frame := streamFrame{
		name:     name,
		metadata: s.inMetadata() || name.Is(NamespaceURI, ElemMetadata),
	}
	s.stack = append(s.stack, frame)
	s.cur = &s.stack[len(s.stack)-1]
	if name.Is(NamespaceURI, ElemText) || s.inText > 0 {
		s.inText++
	}
	return s.declareUsed(name)
}

// WriteEmptyElement writes an element with no content.
func (s *StreamWriter) WriteEmptyElement(name xmlwriter.Name) error {
	if err := s.startElement(name, true); err != nil {
		return err
	}
	s.cur = &streamFrame{name: name, metadata: s.inMetadata()}
	return s.declareUsed(name)
}

func (s *StreamWriter) startElement(name xmlwriter.Name, empty bool) error {
	if p := s.parent(); p != nil {
		p.children = true
	}
	if depth := s.indentDepth(); depth > 0 {
		if err := s.indent(depth); err != nil {
			return err
		}
	}
	if name.Space == NamespaceURI {
		switch name.Local {
		case ElemFailedAssert:
			s.asserts++
		case ElemSuccessfulReport:
			s.reports++
		}
	}
	if empty {
		return s.w.WriteEmptyElement(name)
	}
	return s.w.WriteStartElement(name)
}

// WriteEndElement closes the innermost element.
func (s *StreamWriter) WriteEndElement() error {
	if len(s.stack) == 0 {
		return s.w.WriteEndElement()
	}
	frame := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	s.cur = nil
	if frame.collapsed {
		return nil
	}
	if frame.children {
		if err := s.indent(s.indentDepth()); err != nil {
			return err
		}
	}
	if s.inText > 0 {
		s.inText--
	}
	return s.w.WriteEndElement()
}

// WriteNamespace applies the declaration policy:
// internal tooling declarations are dropped; on the root element the XML
// Schema and Schematron declarations are withheld and every other one is
// remembered as global; inside metadata a declaration is withheld when a
// global or enclosing metadata binding already satisfies it; elsewhere only
// globally satisfied declarations are withheld.
func (s *StreamWriter) WriteNamespace(prefix, uri string) error {
	if s.opts.KeepDeclarations {
		return s.w.WriteNamespace(prefix, uri)
	}
	if uri == ToolingURI {
		return nil
	}
	if s.isRoot() {
		if uri == XSDURI || uri == SchematronURI {
			s.suppressed[prefix] = uri
			return nil
		}
		s.global[prefix] = uri
		return s.w.WriteNamespace(prefix, uri)
	}
	if bound, ok := s.global[prefix]; ok && bound == uri {
		return nil
	}
	if s.cur != nil && s.cur.metadata {
		for i := len(s.stack) - 1; i >= 0; i-- {
			f := &s.stack[i]
			if !f.metadata {
				break
			}
			if f == s.cur {
				continue
			}
			if bound, ok := f.declared[prefix]; ok {
				if bound == uri {
					return nil
				}
				break
			}
		}
		if s.cur.declared == nil {
			s.cur.declared = make(map[string]string, 1)
		}
		s.cur.declared[prefix] = uri
	}
	return s.w.WriteNamespace(prefix, uri)
}

func (s *StreamWriter) isRoot() bool {
	return len(s.stack) == 1 && s.cur != nil && s.cur == &s.stack[0]
}

// declareUsed marks the root as seen and re-declares a withheld root binding
// when a name uses it and nothing else binds its prefix.
func (s *StreamWriter) declareUsed(name xmlwriter.Name) error {
	if !s.rootSeen {
		s.rootSeen = true
		return nil
	}
	return s.declareIfWithheld(name)
}

func (s *StreamWriter) declareIfWithheld(name xmlwriter.Name) error {
	if s.opts.KeepDeclarations || name.Space == "" {
		return nil
	}
	uri, ok := s.suppressed[name.Prefix]
	if !ok || uri != name.Space {
		return nil
	}
	if bound, ok := s.w.NamespaceContext().Lookup(name.Prefix); ok && bound == uri {
		return nil
	}
	return s.w.WriteNamespace(name.Prefix, uri)
}

// WriteAttribute writes an attribute, rewriting location values to prefix
// form when requested.
func (s *StreamWriter) WriteAttribute(name xmlwriter.Name, value string) error {
	if err := s.declareIfWithheld(name); err != nil {
		return err
	}
	if s.opts.PrefixLocations && name.Space == "" && name.Local == "location" {
		value = ToLocationPrefix(value, s.w.NamespaceContext())
	}
	return s.w.WriteAttribute(name, value)
}

// WriteCharacters writes character data.
func (s *StreamWriter) WriteCharacters(text string) error {
	return s.w.WriteCharacters(text)
}

// WriteComment writes a comment.
func (s *StreamWriter) WriteComment(text string) error {
	return s.w.WriteComment(text)
}

// WriteProcessingInstruction writes a processing instruction.
func (s *StreamWriter) WriteProcessingInstruction(target, data string) error {
	return s.w.WriteProcessingInstruction(target, data)
}

// Flush flushes the underlying writer.
func (s *StreamWriter) Flush() error {
	return s.w.Flush()
}
