package transform

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
)

// Resolver opens documents referenced from other documents. base is the
// system ID of the referencing document.
type Resolver interface {
	Resolve(href, base string) (doc io.ReadCloser, systemID string, err error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(href, base string) (io.ReadCloser, string, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(href, base string) (io.ReadCloser, string, error) {
	return f(href, base)
}

// FSResolver resolves relative references against an fs.FS with strict
// path validation: no backslashes, no absolute paths, no escaping the root.
type FSResolver struct {
	fsys fs.FS
}

// NewFSResolver creates a resolver backed by fsys.
func NewFSResolver(fsys fs.FS) *FSResolver {
	return &FSResolver{fsys: fsys}
}

// Resolve implements Resolver.
func (r *FSResolver) Resolve(href, base string) (io.ReadCloser, string, error) {
	if r == nil || r.fsys == nil {
		return nil, "", fmt.Errorf("no filesystem configured")
	}
	if href == "" {
		return nil, "", fs.ErrNotExist
	}
	systemID, err := ResolveSystemID(base, href)
	if err != nil {
		return nil, "", err
	}
	f, err := r.fsys.Open(systemID)
	if err != nil {
		return nil, "", err
	}
	return f, systemID, nil
}

// ResolveSystemID joins a relative href onto the directory of base.
func ResolveSystemID(base, href string) (string, error) {
	if strings.Contains(href, "\\") {
		return "", fmt.Errorf("location contains backslash: %q", href)
	}
	if strings.HasPrefix(href, "/") {
		return "", fmt.Errorf("location must be relative: %q", href)
	}
	if href == "" {
		return "", fmt.Errorf("location is empty")
	}
	if base != "" && strings.Contains(base, "\\") {
		return "", fmt.Errorf("base system ID contains backslash: %q", base)
	}
	if slices.Contains(strings.Split(href, "/"), "") {
		return "", fmt.Errorf("invalid location segment: %q", href)
	}
	joined := path.Clean(href)
	if dir := baseDir(base); dir != "" {
		joined = path.Clean(dir + "/" + href)
	}
	if joined == "." {
		return "", fmt.Errorf("location is empty")
	}
	if strings.HasPrefix(joined, "../") || joined == ".." {
		return "", fmt.Errorf("location escapes root: %q", href)
	}
	return joined, nil
}

func baseDir(systemID string) string {
	if systemID == "" || strings.Contains(systemID, "\\") {
		return ""
	}
	idx := strings.LastIndex(systemID, "/")
	if idx == -1 {
		return ""
	}
	return systemID[:idx]
}

// SplitFragment splits "doc.xml#id" into its document and fragment parts.
func SplitFragment(href string) (string, string) {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i], href[i+1:]
	}
	return href, ""
}

// LoadDocument resolves href against base and parses the result.
func LoadDocument(r Resolver, href, base string) (*Document, error) {
	if r == nil {
		return nil, fmt.Errorf("resolve %s: no resolver configured", href)
	}
	rc, systemID, err := r.Resolve(href, base)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", href, err)
	}
	defer rc.Close()
	doc, err := Parse(rc, systemID)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", systemID, err)
	}
	return doc, nil
}
