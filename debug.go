package schematron

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jacoelho/schematron/pkg/transform"
	"github.com/jacoelho/schematron/pkg/xmlwriter"
)

// DebugOutput receives the compiled schema produced by the pipeline, before
// it is turned into a validator.
type DebugOutput interface {
	WriteCompiled(systemID string, compiled *transform.Document) error
}

// DebugFunc adapts a function to DebugOutput.
type DebugFunc func(systemID string, compiled *transform.Document) error

// WriteCompiled implements DebugOutput.
func (f DebugFunc) WriteCompiled(systemID string, compiled *transform.Document) error {
	return f(systemID, compiled)
}

// DebugDir writes each compiled schema to dir as <name>.compiled.xml.
func DebugDir(dir string) DebugOutput {
	return DebugFunc(func(systemID string, compiled *transform.Document) (err error) {
		name := strings.TrimSuffix(path.Base(filepath.ToSlash(systemID)), path.Ext(systemID))
		if name == "" || name == "." || name == "/" {
			name = "schema"
		}
		target := filepath.Join(dir, name+".compiled.xml")
		f, err := os.Create(target)
		if err != nil {
			return fmt.Errorf("create debug output %s: %w", target, err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close debug output %s: %w", target, closeErr)
			}
		}()
		enc, err := xmlwriter.NewEncoder(f, xmlwriter.DefaultEncoding)
		if err != nil {
			return err
		}
		if err := compiled.WriteTo(enc); err != nil {
			return fmt.Errorf("write debug output %s: %w", target, err)
		}
		return enc.Flush()
	})
}
