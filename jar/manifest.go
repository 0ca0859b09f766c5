package jar

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/meigma/nestedjar/internal/sizing"
	"github.com/meigma/nestedjar/internal/ziperr"
	"github.com/meigma/nestedjar/zipcontent"
)

// maxManifestSize bounds the bytes read from a manifest or signature file.
const maxManifestSize = 8 << 20

const multiReleaseAttribute = "Multi-Release"

// Attribute is one "Name: value" header of a manifest section.
type Attribute struct {
	Name  string
	Value string
}

// Attributes holds the headers of a manifest section in file order.
// Names compare case-insensitively.
type Attributes []Attribute

// Lookup returns the value of the named attribute.
func (a Attributes) Lookup(name string) (string, bool) {
	for _, attr := range a {
		if strings.EqualFold(attr.Name, name) {
			return attr.Value, true
		}
	}
	return "", false
}

// Get returns the value of the named attribute, or "" if it is absent.
func (a Attributes) Get(name string) string {
	v, _ := a.Lookup(name)
	return v
}

func (a Attributes) set(name, value string) Attributes {
	for i := range a {
		if strings.EqualFold(a[i].Name, name) {
			a[i].Value = value
			return a
		}
	}
	return append(a, Attribute{Name: name, Value: value})
}

// Manifest is a parsed jar manifest: a main section followed by named
// per-entry sections.
type Manifest struct {
	main     Attributes
	names    []string
	sections map[string]Attributes
}

// MainAttributes returns the main section.
func (m *Manifest) MainAttributes() Attributes {
	return m.main
}

// Attributes returns the section for the named entry, or nil if there is
// none.
func (m *Manifest) Attributes(name string) Attributes {
	return m.sections[name]
}

// Sections returns the names of the per-entry sections in file order.
func (m *Manifest) Sections() []string {
	return m.names
}

// IsMultiRelease reports whether the main section declares Multi-Release.
// Only the presence of the attribute matters, not its value.
func (m *Manifest) IsMultiRelease() bool {
	_, ok := m.main.Lookup(multiReleaseAttribute)
	return ok
}

// ParseManifest parses manifest bytes. Lines end with CRLF, LF or CR; a line
// starting with a single space continues the previous value. Sections are
// separated by blank lines and every section after the main one starts with
// a Name attribute.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{sections: make(map[string]Attributes)}
	lines := splitManifestLines(data)

	var (
		section Attributes
		name    string
		started bool
		isMain  = true
		last    = -1
	)
	flush := func() {
		if isMain {
			m.main = section
			isMain = false
		} else if started {
			if _, dup := m.sections[name]; !dup {
				m.names = append(m.names, name)
			}
			m.sections[name] = mergeAttributes(m.sections[name], section)
		}
		section, name, started, last = nil, "", false, -1
	}

	for i, line := range lines {
		if line == "" {
			if isMain || started {
				flush()
			}
			continue
		}
		if line[0] == ' ' {
			if last < 0 {
				return nil, fmt.Errorf("%w: manifest line %d: continuation without header", ErrFormat, i+1)
			}
			section[last].Value += line[1:]
			if !isMain && strings.EqualFold(section[last].Name, "Name") {
				name = section[last].Value
			}
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: manifest line %d: invalid header field", ErrFormat, i+1)
		}
		if !isMain && !started {
			if !strings.EqualFold(key, "Name") {
				return nil, fmt.Errorf("%w: manifest line %d: section must start with Name", ErrFormat, i+1)
			}
			started = true
			name = value
		}
		section = section.set(key, value)
		last = indexOf(section, key)
	}
	if isMain || started {
		flush()
	}
	for _, n := range m.names {
		m.sections[n] = withoutName(m.sections[n])
	}
	return m, nil
}

// splitManifestLines splits data at CRLF, LF and CR. A trailing newline does
// not produce an extra line.
func splitManifestLines(data []byte) []string {
	var lines []string
	for len(data) > 0 {
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			lines = append(lines, string(data))
			break
		}
		lines = append(lines, string(data[:i]))
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			i++
		}
		data = data[i+1:]
	}
	return lines
}

func indexOf(a Attributes, name string) int {
	for i := range a {
		if strings.EqualFold(a[i].Name, name) {
			return i
		}
	}
	return -1
}

func mergeAttributes(dst, src Attributes) Attributes {
	for _, attr := range src {
		dst = dst.set(attr.Name, attr.Value)
	}
	return dst
}

func withoutName(a Attributes) Attributes {
	out := a[:0:0]
	for _, attr := range a {
		if !strings.EqualFold(attr.Name, "Name") {
			out = append(out, attr)
		}
	}
	return out
}

// manifestInfo is the manifest of a zip content, or none.
type manifestInfo struct {
	manifest *Manifest
}

func (mi *manifestInfo) isMultiRelease() bool {
	return mi.manifest != nil && mi.manifest.IsMultiRelease()
}

// Manifest returns the jar manifest, or nil if the jar has none. For a
// nested directory the manifest of the containing jar is returned.
func (f *File) Manifest() (*Manifest, error) {
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}
	mi, err := zipcontent.GetInfo(f.res.forManifest(), f.loadManifestInfo)
	if err != nil {
		return nil, err
	}
	return mi.manifest, nil
}

// manifestInfo returns the manifest of the content itself, which drives
// multi-release resolution.
func (f *File) manifestInfo() (*manifestInfo, error) {
	c, err := f.content()
	if err != nil {
		return nil, err
	}
	return zipcontent.GetInfo(c, f.loadManifestInfo)
}

func (f *File) loadManifestInfo(c *zipcontent.Content) (*manifestInfo, error) {
	ce, err := c.Entry(manifestName)
	if errors.Is(err, zipcontent.ErrNotFound) {
		return &manifestInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := f.readContentEntry(ce, manifestName)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	return &manifestInfo{manifest: m}, nil
}

// readContentEntry reads a small metadata entry in full.
func (f *File) readContentEntry(ce *zipcontent.Entry, name string) ([]byte, error) {
	r, err := f.openEntry(ce, name)
	if err != nil {
		return nil, err
	}
	data, err := sizing.ReadAllWithLimit(r, maxManifestSize, ziperr.ErrSizeOverflow)
	if closeErr := r.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("%s: reading %s: %w", f.name, name, err)
	}
	return data, nil
}
