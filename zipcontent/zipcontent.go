// Package zipcontent indexes the central directory of zip files, including
// zips stored inside other zips and directories of a zip viewed as a zip.
//
// A Cache parses each location once and hands out reference counted Content
// handles that share the parsed snapshot. Entry lookups use a sorted table of
// name hashes and re-validate matches against the name bytes in the archive,
// so lookups never materialize the full list of names.
package zipcontent

import (
	"github.com/meigma/nestedjar/internal/ziperr"
)

// Re-exported sentinel errors.
var (
	ErrFormat          = ziperr.ErrFormat
	ErrNotFound        = ziperr.ErrNotFound
	ErrClosed          = ziperr.ErrClosed
	ErrUnsupported     = ziperr.ErrUnsupported
	ErrInvalidArgument = ziperr.ErrInvalidArgument
)

// Kind identifies how a Content was loaded.
type Kind int

const (
	// KindZip is a zip file on disk.
	KindZip Kind = iota
	// KindNestedZip is a stored zip entry of another zip.
	KindNestedZip
	// KindNestedDirectory is a directory entry of another zip viewed as a zip.
	KindNestedDirectory
)

func (k Kind) String() string {
	switch k {
	case KindZip:
		return "zip"
	case KindNestedZip:
		return "nested zip"
	case KindNestedDirectory:
		return "nested directory"
	default:
		return "unknown"
	}
}

// Source identifies a Content: a container path and an optional entry inside it.
type Source struct {
	Path            string
	NestedEntryName string
}

// IsNested reports whether the source names an entry inside the container.
func (s Source) IsNested() bool {
	return s.NestedEntryName != ""
}

func (s Source) String() string {
	if !s.IsNested() {
		return s.Path
	}
	return s.Path + "[" + s.NestedEntryName + "]"
}

func (s Source) key() string {
	return s.Path + "\x00" + s.NestedEntryName
}
