package svrl

import (
	"strings"

	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// EventKind identifies a recorded markup event.
type EventKind uint8

const (
	EventCharacters EventKind = iota
	EventStartElement
	EventEndElement
)

// Attr is an attribute on a recorded start element.
type Attr struct {
	Name  xmlwriter.Name
	Value string
}

// Event is one markup event captured inside rich content.
type Event struct {
	Name       xmlwriter.Name
	Text       string
	Attrs      []Attr
	Namespaces []Namespace
	Kind       EventKind
}

// Content is an ordered sequence of text runs and nested markup.
type Content []Event

// PlainText concatenates the text runs, discarding markup.
func (c Content) PlainText() string {
	var b strings.Builder
	for _, ev := range c {
		if ev.Kind == EventCharacters {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

// WriteTo replays the content into w.
func (c Content) WriteTo(w xmlwriter.Writer) error {
	for _, ev := range c {
		switch ev.Kind {
		case EventCharacters:
			if err := w.WriteCharacters(ev.Text); err != nil {
				return err
			}
		case EventStartElement:
			if err := w.WriteStartElement(ev.Name); err != nil {
				return err
			}
			for _, ns := range ev.Namespaces {
				if err := w.WriteNamespace(ns.Prefix, ns.URI); err != nil {
					return err
				}
			}
			for _, a := range ev.Attrs {
				if err := w.WriteAttribute(a.Name, a.Value); err != nil {
					return err
				}
			}
		case EventEndElement:
			if err := w.WriteEndElement(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c Content) appendText(s string) Content {
	if s == "" {
		return c
	}
	if n := len(c); n > 0 && c[n-1].Kind == EventCharacters {
		c[n-1].Text += s
		return c
	}
	return append(c, Event{Kind: EventCharacters, Text: s})
}

// HumanText is a human-readable message with optional rich markup.
type HumanText struct {
	Space   string
	Lang    string
	See     string
	Icon    string
	FPI     string
	Content Content
}

// Text returns a HumanText holding a single text run.
func Text(s string) HumanText {
	return HumanText{Content: Content{}.appendText(s)}
}

// PlainText returns the message without markup.
func (t HumanText) PlainText() string {
	return t.Content.PlainText()
}

// IsZero reports whether t has no content and no attributes.
func (t HumanText) IsZero() bool {
	return len(t.Content) == 0 && t.Space == "" && t.Lang == "" && t.See == "" && t.Icon == "" && t.FPI == ""
}

func (t HumanText) writeTo(w xmlwriter.Writer, prefix string) error {
	if err := w.WriteStartElement(svrlName(prefix, ElemText)); err != nil {
		return err
	}
	attrs := []struct{ name xmlwriter.Name; value string }{
		{xmlwriter.Name{Space: xmlNamespace, Prefix: "xml", Local: "space"}, t.Space},
		{xmlwriter.Name{Space: xmlNamespace, Prefix: "xml", Local: "lang"}, t.Lang},
		{xmlwriter.Name{Local: "see"}, t.See},
		{xmlwriter.Name{Local: "icon"}, t.Icon},
		{xmlwriter.Name{Local: "fpi"}, t.FPI},
	}
	for _, a := range attrs {
		if err := writeOptionalAttr(w, a.name, a.value); err != nil {
			return err
		}
	}
	if err := t.Content.WriteTo(w); err != nil {
		return err
	}
	return w.WriteEndElement()
}
