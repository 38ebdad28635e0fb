package schematron

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/jacoelho/schematron/pkg/svrl"
)

// Result is the outcome of one validation.
type Result struct {
	systemID string
	// encoding the report was written in
	encoding string
	asserts  int
	reports  int
	data     []byte
	path     string
}

// SystemID returns the identifier of the validated document.
func (r *Result) SystemID() string { return r.systemID }

// AssertsCount returns the number of failed assertions.
func (r *Result) AssertsCount() int { return r.asserts }

// ReportsCount returns the number of successful reports.
func (r *Result) ReportsCount() int { return r.reports }

// IsValid reports whether no assertion failed.
func (r *Result) IsValid() bool { return r.asserts == 0 }

// Bytes returns the report. Reports written to a file are read back; reports
// written to a caller's io.Writer are not retained and Bytes returns nil.
func (r *Result) Bytes() ([]byte, error) {
	if r.path != "" {
		data, err := os.ReadFile(r.path)
		if err != nil {
			return nil, fmt.Errorf("read report %s: %w", r.path, err)
		}
		return data, nil
	}
	return r.data, nil
}

// String returns the report decoded to UTF-8, without its XML declaration.
func (r *Result) String() string {
	data, err := r.Bytes()
	if err != nil {
		return ""
	}
	return stripDeclaration(r.decode(data))
}

func (r *Result) decode(data []byte) string {
	if r.encoding == "" || strings.EqualFold(r.encoding, "utf-8") || strings.EqualFold(r.encoding, "utf8") {
		return string(data)
	}
	enc, err := ianaindex.IANA.Encoding(r.encoding)
	if err != nil || enc == nil {
		return string(data)
	}
	text, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(text)
}

// Output parses the report. Parse failures are returned.
func (r *Result) Output() (*svrl.SchematronOutput, error) {
	data, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("report of %s was not retained", r.systemID)
	}
	out, err := svrl.ParseWithEncoding(bytes.NewReader(data), r.encoding)
	if err != nil {
		return nil, fmt.Errorf("report of %s: %w", r.systemID, err)
	}
	return out, nil
}

// Messages returns one line per finding. When the report cannot be parsed
// the raw report text is returned as the only message.
func (r *Result) Messages(detail bool) []string {
	out, err := r.Output()
	if err != nil {
		s := strings.TrimSpace(r.String())
		if s == "" {
			return nil
		}
		return []string{s}
	}
	return out.Messages(detail)
}

// FailedAsserts returns the failed assertions of the parsed report.
func (r *Result) FailedAsserts() ([]*svrl.AssertOrReport, error) {
	out, err := r.Output()
	if err != nil {
		return nil, err
	}
	return out.FailedAsserts(), nil
}

// SuccessfulReports returns the successful reports of the parsed report.
func (r *Result) SuccessfulReports() ([]*svrl.AssertOrReport, error) {
	out, err := r.Output()
	if err != nil {
		return nil, err
	}
	return out.SuccessfulReports(), nil
}

func stripDeclaration(s string) string {
	if !strings.HasPrefix(s, "<?xml") {
		return s
	}
	end := strings.Index(s, "?>")
	if end < 0 {
		return s
	}
	return strings.TrimLeft(s[end+2:], "\r\n")
}

