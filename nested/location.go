// Package nested implements the "nested:" addressing scheme: a container
// path optionally followed by "/!" and the name of an entry inside it.
//
// A nested location names either a jar on disk, a stored jar entry inside
// it, or a directory entry whose descendants form a jar of their own.
// Connection streams the raw zip bytes a location refers to.
package nested

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meigma/nestedjar/internal/ziperr"
)

// Scheme is the URL scheme of nested locations.
const Scheme = "nested"

const (
	schemePrefix   = Scheme + ":"
	entrySeparator = "/!"
)

// Sentinel errors re-exported from internal/ziperr.
var (
	ErrInvalidArgument = ziperr.ErrInvalidArgument
	ErrNotFound        = ziperr.ErrNotFound
	ErrClosed          = ziperr.ErrClosed
)

// Location is a parsed nested location.
type Location struct {
	// Path is the container file.
	Path string
	// EntryName is the nested entry, or "" for the container itself. A name
	// ending in '/' refers to a directory entry.
	EntryName string
}

// IsNested reports whether the location names an entry inside the container.
func (l Location) IsNested() bool {
	return l.EntryName != ""
}

// String returns the location in the form accepted by Parse.
func (l Location) String() string {
	if l.EntryName == "" {
		return l.Path
	}
	return l.Path + entrySeparator + l.EntryName
}

// URL returns the location as a "nested:" URL.
func (l Location) URL() string {
	return schemePrefix + l.String()
}

// Parse parses "path" or "path/!entryName". The path is split from the
// entry at the last "/!". An empty entry name addresses the container.
func Parse(location string) (Location, error) {
	return parse(location, localPath)
}

func parse(location string, asPath func(string) string) (Location, error) {
	if location == "" {
		return Location{}, fmt.Errorf("%w: location must not be empty", ErrInvalidArgument)
	}
	path, entry := location, ""
	if i := strings.LastIndex(location, entrySeparator); i >= 0 {
		path, entry = location[:i], location[i+len(entrySeparator):]
	}
	if path == "" {
		return Location{}, fmt.Errorf("%w: location %q has no path", ErrInvalidArgument, location)
	}
	return Location{Path: asPath(path), EntryName: entry}, nil
}

// FromURL parses a "nested:" URL. The scheme is matched case-insensitively
// and the rest is percent-decoded before parsing.
func FromURL(rawURL string) (Location, error) {
	rest, err := trimScheme(rawURL)
	if err != nil {
		return Location{}, err
	}
	decoded, err := DecodeURL(rest)
	if err != nil {
		return Location{}, err
	}
	return Parse(decoded)
}

func trimScheme(rawURL string) (string, error) {
	if len(rawURL) < len(schemePrefix) || !strings.EqualFold(rawURL[:len(schemePrefix)], schemePrefix) {
		return "", fmt.Errorf("%w: url %q must use the %s scheme", ErrInvalidArgument, rawURL, Scheme)
	}
	return rawURL[len(schemePrefix):], nil
}

// localPath converts a location path to a path of the running platform.
func localPath(path string) string {
	if filepath.Separator != '\\' {
		return path
	}
	return filepath.FromSlash(fixWindowsPath(path))
}

// fixWindowsPath strips the slashes in front of a drive letter, turning
// "/C:/x" and "///C:/x" into "C:/x".
func fixWindowsPath(path string) string {
	if len(path) > 2 && path[2] == ':' {
		return path[1:]
	}
	if len(path) > 4 && strings.HasPrefix(path, "///") && path[4] == ':' {
		return path[3:]
	}
	return path
}
