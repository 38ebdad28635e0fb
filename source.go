package schematron

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jacoelho/schematron/pkg/transform"
)

// Source is an XML document to compile or validate, with the identifier used
// in reports and errors and an optional resolver for relative references.
type Source struct {
	systemID string
	open     func() (io.ReadCloser, error)
	resolver transform.Resolver
}

// FileSource reads the file at path. Relative references resolve against the
// file's directory.
func FileSource(path string) Source {
	return Source{
		systemID: filepath.Base(path),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
		resolver: transform.NewFSResolver(os.DirFS(filepath.Dir(path))),
	}
}

// FSSource reads name from fsys. Relative references resolve within fsys.
func FSSource(fsys fs.FS, name string) Source {
	return Source{
		systemID: name,
		open: func() (io.ReadCloser, error) {
			return fsys.Open(name)
		},
		resolver: transform.NewFSResolver(fsys),
	}
}

// ReaderSource reads the document from r. It can be opened once.
func ReaderSource(r io.Reader, systemID string) Source {
	return Source{
		systemID: systemID,
		open: func() (io.ReadCloser, error) {
			if r == nil {
				return nil, fmt.Errorf("nil reader")
			}
			return io.NopCloser(r), nil
		},
	}
}

// BytesSource reads the document from data.
func BytesSource(data []byte, systemID string) Source {
	return Source{
		systemID: systemID,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// StringSource reads the document from s.
func StringSource(s, systemID string) Source {
	return Source{
		systemID: systemID,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(s)), nil
		},
	}
}

// SystemID returns the identifier of the source.
func (s Source) SystemID() string { return s.systemID }

// WithResolver returns a copy of s resolving relative references with r.
func (s Source) WithResolver(r transform.Resolver) Source {
	s.resolver = r
	return s
}

func (s Source) parse() (doc *transform.Document, err error) {
	if s.open == nil {
		return nil, fmt.Errorf("empty source")
	}
	rc, err := s.open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", s.systemID, closeErr)
		}
	}()
	return transform.Parse(rc, s.systemID)
}
