package schematron

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// Report collects the results of a batch and writes them as a single
// document:
//
//	<fileset date="...">
//	  <file name="doc.xml"><svrl:schematron-output .../></file>
//	</fileset>
type Report struct {
	date    time.Time
	results []*Result
}

// NewReport returns an empty report dated now.
func NewReport() *Report {
	return &Report{date: time.Now()}
}

// Add appends results in order.
func (r *Report) Add(results ...*Result) {
	for _, res := range results {
		if res != nil {
			r.results = append(r.results, res)
		}
	}
}

// Results returns the collected results.
func (r *Report) Results() []*Result {
	return r.results
}

// WriteTo writes the fileset document to w.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	enc, err := xmlwriter.NewEncoder(cw, xmlwriter.DefaultEncoding)
	if err != nil {
		return cw.n, err
	}
	if err := r.write(enc); err != nil {
		return cw.n, errors.Encoding(errors.ErrWrite, err, "write report").In("write report", "")
	}
	return cw.n, nil
}

func (r *Report) write(w xmlwriter.Writer) error {
	if err := w.WriteStartDocument(); err != nil {
		return err
	}
	if err := w.WriteStartElement(xmlwriter.Name{Local: "fileset"}); err != nil {
		return err
	}
	if err := w.WriteAttribute(xmlwriter.Name{Local: "date"}, r.date.Format(time.RFC3339)); err != nil {
		return err
	}
	for _, res := range r.results {
		if err := w.WriteStartElement(xmlwriter.Name{Local: "file"}); err != nil {
			return err
		}
		if err := w.WriteAttribute(xmlwriter.Name{Local: "name"}, res.SystemID()); err != nil {
			return err
		}
		out, err := res.Output()
		if err != nil {
			// keep reports that do not parse as text
			if err := w.WriteCharacters(res.String()); err != nil {
				return err
			}
		} else if err := out.WriteTo(fragment{w}); err != nil {
			return fmt.Errorf("file %s: %w", res.SystemID(), err)
		}
		if err := w.WriteEndElement(); err != nil {
			return err
		}
	}
	if err := w.WriteEndElement(); err != nil {
		return err
	}
	return w.WriteEndDocument()
}

// SaveAs writes the fileset document to the file at path.
func (r *Report) SaveAs(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Encoding(errors.ErrWrite, err, "create report").In("save report", path)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errors.Encoding(errors.ErrWrite, closeErr, "close report").In("save report", path)
		}
	}()
	_, err = r.WriteTo(f)
	return err
}

// fragment drops document events so a whole report can be nested.
type fragment struct {
	xmlwriter.Writer
}

func (fragment) WriteStartDocument() error { return nil }
func (fragment) WriteEndDocument() error   { return nil }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
