// Package stages holds the built-in schema compilation stage programs, one
// set per query language version.
package stages

import (
	"embed"
	"io/fs"
	"path"
)

// Stage names in application order.
var Names = []string{"include", "expand", "compile-for-svrl"}

//go:embed 1.0/*.xml 2.0/*.xml
var files embed.FS

// FS returns the stage programs laid out as <version>/<stage>.xml.
func FS() fs.FS {
	return files
}

// Path returns the location of a stage program inside FS.
func Path(version, stage string) string {
	return path.Join(version, stage+".xml")
}
