package zipcontent

import (
	"fmt"
	"iter"
	"sync"

	"github.com/meigma/nestedjar/datablock"
)

// Content is one holder's reference to a parsed zip.
//
// Handles opened on the same Source share the parsed snapshot and the
// underlying file. Close releases only this handle's reference; calling it
// again is a no-op. Lookups, reads and raw data access after Close fail
// with ErrClosed. The load-time metadata (Source, Kind, Len, Size,
// HasJarSignatureFile and Same) is immutable and stays readable after
// Close without touching the underlying file.
type Content struct {
	s *snapshot

	mu     sync.RWMutex
	closed bool
}

func newContent(s *snapshot) *Content {
	return &Content{s: s}
}

func (c *Content) ensureOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("%s: zip content %w", c.s.source, ErrClosed)
	}
	return nil
}

// Source returns the location the content was loaded from.
func (c *Content) Source() Source {
	return c.s.source
}

// Kind returns how the content was loaded.
func (c *Content) Kind() Kind {
	return c.s.kind
}

// Len returns the number of entries. It is valid after Close.
func (c *Content) Len() int {
	return c.s.size()
}

// Size returns the size in bytes of the zip data backing the content.
// For a nested directory this is the size of the parent zip data. It is
// valid after Close.
func (c *Content) Size() int64 {
	return c.s.data.Size()
}

// HasJarSignatureFile reports whether the zip contains a META-INF/*.DSA entry.
func (c *Content) HasJarSignatureFile() bool {
	return c.s.hasJarSignatureFile
}

// Same reports whether c and other share the same parsed snapshot.
func (c *Content) Same(other *Content) bool {
	return other != nil && c.s == other.s
}

// Comment returns the zip file comment.
func (c *Content) Comment() (string, error) {
	if err := c.ensureOpen(); err != nil {
		return "", err
	}
	return c.s.comment()
}

// Entry returns the entry with the given name. A name without a trailing
// slash also matches a directory entry of that name. A missing entry is
// reported as ErrNotFound.
func (c *Content) Entry(name string) (*Entry, error) {
	return c.EntryWithPrefix("", name)
}

// EntryWithPrefix returns the entry named prefix+name.
func (c *Content) EntryWithPrefix(prefix, name string) (*Entry, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	e, err := c.s.find(prefix, name)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%s: entry %q: %w", c.s.source, prefix+name, ErrNotFound)
	}
	return e, nil
}

// HasEntry reports whether an entry named prefix+name exists.
func (c *Content) HasEntry(prefix, name string) (bool, error) {
	if err := c.ensureOpen(); err != nil {
		return false, err
	}
	e, err := c.s.find(prefix, name)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// EntryAt returns the entry at index i in central directory order.
func (c *Content) EntryAt(i int) (*Entry, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	return c.s.entryAt(i)
}

// Entries iterates over all entries in central directory order.
// Iteration stops after the first error.
func (c *Content) Entries() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for i := range c.s.size() {
			e, err := c.EntryAt(i)
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// OpenRawZipData returns the bytes of the zip described by the content.
//
// For a nested directory the bytes are a synthetic zip assembled from
// ranges of the parent. The returned block holds its own reference to the
// underlying file and must be closed.
func (c *Content) OpenRawZipData() (*datablock.Handle, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	s := c.s
	if err := s.data.Open(); err != nil {
		return nil, err
	}
	var block datablock.DataBlock = s.data
	if s.nameOffset > 0 {
		v, err := s.virtualData()
		if err != nil {
			_ = s.data.Close() //nolint:errcheck // already failing
			return nil, err
		}
		block = v
	}
	return datablock.Hold(block, s.data.Close), nil
}

// Close releases this handle's reference.
func (c *Content) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.s.release()
}

func (c *Content) String() string {
	return c.s.source.String()
}
