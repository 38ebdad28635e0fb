package svrl

import (
	"bytes"

	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

func svrlName(prefix, local string) xmlwriter.Name {
	return xmlwriter.Name{Space: NamespaceURI, Prefix: prefix, Local: local}
}

func writeOptionalAttr(w xmlwriter.Writer, name xmlwriter.Name, value string) error {
	if value == "" {
		return nil
	}
	return w.WriteAttribute(name, value)
}

func writeAttrs(w xmlwriter.Writer, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := writeOptionalAttr(w, xmlwriter.Name{Local: pairs[i]}, pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo streams the report as events into w. Active patterns and fired
// rules are written as empty elements followed by their findings; compact
// reports list findings directly under the root.
func (o *SchematronOutput) WriteTo(w xmlwriter.Writer) error {
	p := DefaultPrefix
	for _, ns := range o.Namespaces {
		if ns.URI == NamespaceURI {
			p = ns.Prefix
		}
	}
	if err := w.WriteStartDocument(); err != nil {
		return err
	}
	if err := w.WriteStartElement(svrlName(p, ElemSchematronOutput)); err != nil {
		return err
	}
	if err := w.WriteNamespace(p, NamespaceURI); err != nil {
		return err
	}
	for _, ns := range o.Namespaces {
		if ns.URI == NamespaceURI && ns.Prefix == p {
			continue
		}
		if err := w.WriteNamespace(ns.Prefix, ns.URI); err != nil {
			return err
		}
	}
	if err := writeAttrs(w, "title", o.Title, "phase", o.Phase, "schemaVersion", o.SchemaVersion); err != nil {
		return err
	}
	if len(o.Metadata) > 0 {
		if err := w.WriteStartElement(svrlName(p, ElemMetadata)); err != nil {
			return err
		}
		if err := o.Metadata.WriteTo(w); err != nil {
			return err
		}
		if err := w.WriteEndElement(); err != nil {
			return err
		}
	}
	for _, t := range o.Texts {
		if err := t.writeTo(w, p); err != nil {
			return err
		}
	}
	for _, ns := range o.NsPrefixes {
		if err := w.WriteEmptyElement(svrlName(p, ElemNsPrefix)); err != nil {
			return err
		}
		if err := writeAttrs(w, "prefix", ns.Prefix, "uri", ns.URI); err != nil {
			return err
		}
	}
	for _, ap := range o.ActivePatterns {
		if !o.Compact {
			if err := w.WriteEmptyElement(svrlName(p, ElemActivePattern)); err != nil {
				return err
			}
			if err := writeAttrs(w, "id", ap.ID, "name", ap.Name, "documents", ap.Documents, "role", ap.Role); err != nil {
				return err
			}
		}
		for _, fr := range ap.FiredRules {
			if !o.Compact {
				if err := w.WriteEmptyElement(svrlName(p, ElemFiredRule)); err != nil {
					return err
				}
				if err := writeAttrs(w, "id", fr.ID, "name", fr.Name, "context", fr.Context, "role", fr.Role, "flag", fr.Flag); err != nil {
					return err
				}
			}
			for _, ar := range fr.AssertsAndReports {
				if err := ar.writeTo(w, p); err != nil {
					return err
				}
			}
		}
	}
	if err := w.WriteEndElement(); err != nil {
		return err
	}
	return w.WriteEndDocument()
}

func (a *AssertOrReport) writeTo(w xmlwriter.Writer, p string) error {
	if err := w.WriteStartElement(svrlName(p, a.Kind())); err != nil {
		return err
	}
	if err := writeAttrs(w, "id", a.ID, "location", a.Location, "test", a.Test, "role", a.Role, "flag", a.Flag); err != nil {
		return err
	}
	for _, d := range a.DiagnosticReferences {
		if err := w.WriteStartElement(svrlName(p, ElemDiagnosticRef)); err != nil {
			return err
		}
		if err := writeAttrs(w, "diagnostic", d.Diagnostic, "role", d.Role, "scheme", d.Scheme); err != nil {
			return err
		}
		if err := d.Text.writeTo(w, p); err != nil {
			return err
		}
		if err := w.WriteEndElement(); err != nil {
			return err
		}
	}
	for _, pr := range a.PropertyReferences {
		if err := w.WriteStartElement(svrlName(p, ElemPropertyRef)); err != nil {
			return err
		}
		if err := writeAttrs(w, "property", pr.Property, "role", pr.Role, "scheme", pr.Scheme); err != nil {
			return err
		}
		if err := pr.Text.writeTo(w, p); err != nil {
			return err
		}
		if err := w.WriteEndElement(); err != nil {
			return err
		}
	}
	if err := a.Text.writeTo(w, p); err != nil {
		return err
	}
	return w.WriteEndElement()
}

// ToXML serializes the report without an XML declaration. When indent is
// set the output follows the StreamWriter indentation rules.
func (o *SchematronOutput) ToXML(indent bool) (string, error) {
	var buf bytes.Buffer
	enc, err := xmlwriter.NewEncoder(&buf, xmlwriter.DefaultEncoding)
	if err != nil {
		return "", err
	}
	w := NewStreamWriter(enc, StreamOptions{
		Indent:           indent,
		OmitDeclaration:  true,
		KeepDeclarations: true,
	})
	if err := o.WriteTo(w); err != nil {
		return "", err
	}
	return buf.String(), nil
}
