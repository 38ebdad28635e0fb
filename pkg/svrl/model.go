package svrl

import (
	"strings"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// Namespace is a prefix to URI binding.
type Namespace struct {
	Prefix string
	URI    string
}

// SchematronOutput is the root of a validation report.
type SchematronOutput struct {
	Title         string
	Phase         string
	SchemaVersion string
	// Namespaces holds the declarations made on the root element other than
	// the report namespace itself.
	Namespaces []Namespace
	// NsPrefixes holds the ns-prefix-in-attribute-values entries.
	NsPrefixes     []Namespace
	Metadata       Content
	Texts          []HumanText
	ActivePatterns []*ActivePattern
	// Compact is set when the report listed findings without
	// active-pattern and fired-rule wrappers.
	Compact bool
}

// ActivePattern is a pattern that was active during validation.
type ActivePattern struct {
	ID         string
	Name       string
	Documents  string
	Role       string
	FiredRules []*FiredRule
}

// FiredRule is a rule whose context matched a node.
type FiredRule struct {
	ID                string
	Name              string
	Context           string
	Role              string
	Flag              string
	AssertsAndReports []*AssertOrReport
}

// AssertOrReport is a failed assertion or a successful report.
type AssertOrReport struct {
	FailedAssert         bool
	ID                   string
	Location             string
	Test                 string
	Role                 string
	Flag                 string
	DiagnosticReferences []DiagnosticReference
	PropertyReferences   []PropertyReference
	Text                 HumanText
}

// DiagnosticReference links a finding to a diagnostic message.
type DiagnosticReference struct {
	Diagnostic string
	Role       string
	Scheme     string
	Text       HumanText
}

// PropertyReference links a finding to a property value.
type PropertyReference struct {
	Property string
	Role     string
	Scheme   string
	Text     HumanText
}

// AssertsAndReports returns every finding in document order.
func (o *SchematronOutput) AssertsAndReports() []*AssertOrReport {
	if o == nil {
		return nil
	}
	var out []*AssertOrReport
	for _, p := range o.ActivePatterns {
		for _, r := range p.FiredRules {
			out = append(out, r.AssertsAndReports...)
		}
	}
	return out
}

// FailedAsserts returns the failed assertions in document order.
func (o *SchematronOutput) FailedAsserts() []*AssertOrReport {
	return o.filter(true)
}

// SuccessfulReports returns the successful reports in document order.
func (o *SchematronOutput) SuccessfulReports() []*AssertOrReport {
	return o.filter(false)
}

func (o *SchematronOutput) filter(failed bool) []*AssertOrReport {
	var out []*AssertOrReport
	for _, ar := range o.AssertsAndReports() {
		if ar.FailedAssert == failed {
			out = append(out, ar)
		}
	}
	return out
}

// IsValid reports whether the report has no failed assertions.
func (o *SchematronOutput) IsValid() bool {
	return len(o.FailedAsserts()) == 0
}

// Messages returns one plain-text line per finding.
func (o *SchematronOutput) Messages(detail bool) []string {
	findings := o.AssertsAndReports()
	out := make([]string, 0, len(findings))
	for _, ar := range findings {
		out = append(out, ar.MessageString(detail))
	}
	return out
}

// MessageString formats the finding as a single line:
//
//	[assert] location - text (diagnostic:text)
//
// Diagnostic details are included only when detail is set.
func (a *AssertOrReport) MessageString(detail bool) string {
	var b strings.Builder
	if a.FailedAssert {
		b.WriteString("[assert] ")
	} else {
		b.WriteString("[report] ")
	}
	b.WriteString(a.Location)
	b.WriteString(" - ")
	b.WriteString(strings.TrimSpace(a.Text.PlainText()))
	if detail {
		for _, d := range a.DiagnosticReferences {
			b.WriteString(" (")
			b.WriteString(d.Diagnostic)
			b.WriteString(":")
			b.WriteString(strings.TrimSpace(d.Text.PlainText()))
			b.WriteString(")")
		}
	}
	return b.String()
}

// Kind returns the element local name for the finding.
func (a *AssertOrReport) Kind() string {
	if a.FailedAssert {
		return ElemFailedAssert
	}
	return ElemSuccessfulReport
}
