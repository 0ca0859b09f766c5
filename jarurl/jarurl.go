// Package jarurl parses, resolves and opens "jar:" URLs.
//
// A jar URL wraps an inner URL naming an archive, either a "nested:"
// location or a "file:" URL, followed by "!/" and an optional entry path:
//
//	jar:nested:/srv/app.jar/!BOOT-INF/lib/dep.jar!/com/example/Dep.class
//	jar:file:/srv/app.jar!/META-INF/MANIFEST.MF
//
// The separator is always the last "!/" in the URL.
package jarurl

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/meigma/nestedjar/internal/ziperr"
	"github.com/meigma/nestedjar/nested"
)

// Scheme is the URL scheme of jar URLs.
const Scheme = "jar"

// Separator divides the inner URL from the entry path.
const Separator = "!/"

const (
	schemePrefix = Scheme + ":"
	fileScheme   = "file"
	// runtimeFragment asks for the runtime view of a multi-release jar.
	runtimeFragment = "runtime"
)

// Sentinel errors re-exported from internal/ziperr.
var (
	ErrInvalidArgument = ziperr.ErrInvalidArgument
	ErrNotFound        = ziperr.ErrNotFound
	ErrClosed          = ziperr.ErrClosed
	ErrUnsupported     = ziperr.ErrUnsupported
)

// IndexOfSeparator returns the index of the last "!/" in s, or -1.
func IndexOfSeparator(s string) int {
	return strings.LastIndex(s, Separator)
}

// URL is a parsed jar URL.
type URL struct {
	// Inner is the URL of the archive, without the separator.
	Inner string
	// EntryName is the decoded entry path, or "" for the archive itself.
	EntryName string
	// Fragment is the text after '#', if any.
	Fragment string
}

// Parse parses a jar URL. The scheme is matched case-insensitively and
// the entry path is percent-decoded.
func Parse(rawURL string) (URL, error) {
	rest, ok := cutScheme(rawURL)
	if !ok {
		return URL{}, fmt.Errorf("%w: url %q must use the %s scheme", ErrInvalidArgument, rawURL, Scheme)
	}
	rest, fragment, _ := strings.Cut(rest, "#")
	i := IndexOfSeparator(rest)
	if i < 0 {
		return URL{}, fmt.Errorf("%w: no %s in url %q", ErrInvalidArgument, Separator, rawURL)
	}
	if rest[:i] == "" {
		return URL{}, fmt.Errorf("%w: url %q has no inner url", ErrInvalidArgument, rawURL)
	}
	entry, err := nested.DecodeURL(rest[i+len(Separator):])
	if err != nil {
		return URL{}, err
	}
	return URL{Inner: rest[:i], EntryName: entry, Fragment: fragment}, nil
}

func cutScheme(s string) (string, bool) {
	if len(s) < len(schemePrefix) || !strings.EqualFold(s[:len(schemePrefix)], schemePrefix) {
		return s, false
	}
	return s[len(schemePrefix):], true
}

// IsNested reports whether the inner URL is a "nested:" location.
func (u URL) IsNested() bool {
	_, err := trimNestedScheme(u.Inner)
	return err == nil
}

// HasEntry reports whether the URL names an entry inside the archive.
func (u URL) HasEntry() bool {
	return u.EntryName != ""
}

// String returns the URL with the entry path escaped.
func (u URL) String() string {
	s := schemePrefix + u.Inner + Separator + escapePath(u.EntryName)
	if u.Fragment != "" {
		s += "#" + u.Fragment
	}
	return s
}

// Location returns the archive the inner URL refers to. A nil resolver
// parses without caching.
func (u URL) Location(r *nested.Resolver) (nested.Location, error) {
	if u.IsNested() {
		if r != nil {
			return r.FromURL(u.Inner)
		}
		return nested.FromURL(u.Inner)
	}
	inner, err := url.Parse(u.Inner)
	if err != nil {
		return nested.Location{}, fmt.Errorf("%w: inner url %q: %w", ErrInvalidArgument, u.Inner, err)
	}
	if !strings.EqualFold(inner.Scheme, fileScheme) {
		return nested.Location{}, fmt.Errorf("%w: inner url %q: scheme %q", ErrUnsupported, u.Inner, inner.Scheme)
	}
	if inner.Host != "" && !strings.EqualFold(inner.Host, "localhost") {
		return nested.Location{}, fmt.Errorf("%w: inner url %q: remote host %q", ErrUnsupported, u.Inner, inner.Host)
	}
	path := inner.Path
	if path == "" {
		path = inner.Opaque
	}
	if path == "" {
		return nested.Location{}, fmt.Errorf("%w: inner url %q has no path", ErrInvalidArgument, u.Inner)
	}
	return nested.Location{Path: filepath.FromSlash(path)}, nil
}

func trimNestedScheme(s string) (string, error) {
	prefix := nested.Scheme + ":"
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", fmt.Errorf("%w: %q is not a %s url", ErrInvalidArgument, s, nested.Scheme)
	}
	return s[len(prefix):], nil
}

// Create returns the jar URL of entryPath inside the archive at path. A
// non-empty nestedEntry addresses a jar or directory entry inside that
// archive and produces a "nested:" inner URL; otherwise the inner URL is
// a "file:" URL.
func Create(path, nestedEntry, entryPath string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	ref := fileReference(abs)
	if nestedEntry != "" {
		ref = nested.Scheme + ":" + ref + "/!" + nestedEntry
	} else {
		ref = fileScheme + ":" + ref
	}
	return schemePrefix + ref + Separator + entryPath, nil
}

// fileReference returns the escaped path of a file URL, with '!' escaped
// so it cannot be mistaken for a separator.
func fileReference(abs string) string {
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.ReplaceAll(escapePath(p), "!", "%21")
}

func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

// SameFile reports whether a and b are jar URLs naming the same entry of
// the same archive. Fragments are ignored.
func SameFile(a, b string) bool {
	ua, err := Parse(a)
	if err != nil {
		return false
	}
	ub, err := Parse(b)
	if err != nil {
		return false
	}
	if ua.EntryName != ub.EntryName {
		return false
	}
	ia, errA := url.Parse(ua.Inner)
	ib, errB := url.Parse(ub.Inner)
	if errA != nil || errB != nil {
		return ua.Inner == ub.Inner
	}
	return strings.EqualFold(ia.Scheme, ib.Scheme) &&
		strings.EqualFold(ia.Host, ib.Host) &&
		ia.Opaque == ib.Opaque &&
		ia.Path == ib.Path
}
