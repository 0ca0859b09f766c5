package zipcontent

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/nestedjar/datablock"
)

// Cache parses zip locations on first open and shares the result between
// holders until the last holder closes.
//
// Concurrent opens of the same location are collapsed into a single parse.
// A Cache is safe for concurrent use.
type Cache struct {
	logger        *slog.Logger
	tracker       datablock.Tracker
	infoCacheSize int

	mu      sync.Mutex
	entries map[Source]*snapshot
	closed  bool
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithTracker registers a tracker for the OS handles opened by the cache.
func WithTracker(t datablock.Tracker) Option {
	return func(c *Cache) {
		c.tracker = t
	}
}

// WithInfoCacheSize bounds the number of derived values kept per snapshot.
func WithInfoCacheSize(n int) Option {
	return func(c *Cache) {
		c.infoCacheSize = n
	}
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		infoCacheSize: DefaultInfoCacheSize,
		entries:       make(map[Source]*snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *Cache) loadOptions() loadOptions {
	return loadOptions{logger: c.logger, infoCacheSize: c.infoCacheSize}
}

// Open returns a handle on the zip file at path.
func (c *Cache) Open(path string) (*Content, error) {
	return c.OpenNested(path, "")
}

// OpenNested returns a handle on the entry named entryName inside the zip
// at path. A stored zip entry is opened as a zip; a directory entry (name
// ending in '/') is opened as a zip of the entries below it. An empty
// entryName opens the container itself.
func (c *Cache) OpenNested(path, entryName string) (*Content, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return c.open(Source{Path: abs, NestedEntryName: entryName})
}

func (c *Cache) open(src Source) (*Content, error) {
	for {
		s, err := c.cached(src)
		if err != nil {
			return nil, err
		}
		if s != nil {
			c.log().Debug("opening existing cached zip content", "source", src.String())
			return newContent(s), nil
		}

		loaded := false
		v, err, _ := c.group.Do(src.key(), func() (any, error) {
			loaded = true
			return c.loadAndPublish(src)
		})
		if err != nil {
			return nil, err
		}
		s = v.(*snapshot) //nolint:forcetypeassert // group only returns snapshots
		if loaded {
			return newContent(s), nil
		}
		ok, err := s.acquire()
		if err != nil {
			return nil, err
		}
		if ok {
			return newContent(s), nil
		}
		// every holder closed before this caller could take a reference
	}
}

// cached returns a referenced snapshot for src if one is published. A
// snapshot that cannot be reopened is dropped so that the caller parses
// afresh.
func (c *Cache) cached(src Source) (*snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("zip content cache %w", ErrClosed)
	}
	s := c.entries[src]
	if s == nil {
		return nil, nil //nolint:nilnil // a miss is not an error
	}
	ok, err := s.acquire()
	if ok {
		return s, nil
	}
	c.log().Debug("dropping stale cached zip content", "source", src.String(), "error", err)
	delete(c.entries, src)
	return nil, nil //nolint:nilnil // a miss is not an error
}

// loadAndPublish parses src and publishes the result. If another snapshot
// was published meanwhile, the fresh one is discarded in its favor.
func (c *Cache) loadAndPublish(src Source) (*snapshot, error) {
	c.log().Debug("loading zip content", "source", src.String())
	s, err := c.load(src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev := c.entries[src]; prev != nil {
		if ok, _ := prev.acquire(); ok {
			c.log().Debug("closing zip content since cache was populated concurrently", "source", src.String())
			if err := s.release(); err != nil {
				c.log().Warn("closing duplicate zip content", "source", src.String(), "error", err)
			}
			return prev, nil
		}
	}
	if !c.closed {
		s.cache = c
		c.entries[src] = s
	}
	return s, nil
}

func (c *Cache) load(src Source) (*snapshot, error) {
	opts := c.loadOptions()
	if !src.IsNested() {
		data, err := datablock.NewFile(src.Path, datablock.WithTracker(c.tracker), datablock.WithLogger(c.logger))
		if err != nil {
			return nil, err
		}
		return openAndLoad(src, KindZip, data, opts)
	}

	parent, err := c.open(Source{Path: src.Path})
	if err != nil {
		return nil, err
	}
	s, err := loadNested(src, parent, opts)
	return s, errors.Join(err, parent.Close())
}

func loadNested(src Source, parent *Content, opts loadOptions) (*snapshot, error) {
	entry, err := parent.s.find("", src.NestedEntryName)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: nested entry '%s' not found in container zip '%s'",
			ErrNotFound, src.NestedEntryName, src.Path)
	}
	if entry.IsDirectory() {
		return loadNestedDirectory(src, parent.s, entry, opts)
	}
	return loadNestedZip(src, entry, opts)
}

func (c *Cache) evict(s *snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[s.source] == s {
		delete(c.entries, s.source)
	}
}

// Len returns the number of published snapshots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close forgets every published snapshot and rejects further opens.
// Handles already returned keep working until they are closed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for src, s := range c.entries {
		s.mu.Lock()
		s.cache = nil
		s.mu.Unlock()
		delete(c.entries, src)
	}
	return nil
}

// Load parses a zip from an arbitrary access without caching it. The
// returned Content owns one reference on access.
func Load(name string, access datablock.Access, size int64, opts ...Option) (*Content, error) {
	c := NewCache(opts...)
	s, err := openAndLoad(Source{Path: name}, KindZip, datablock.NewShared(access, size), c.loadOptions())
	if err != nil {
		return nil, err
	}
	return newContent(s), nil
}
