// Package jar opens jar files, including jars nested inside other jars and
// directories of a jar, on top of the shared zip content index.
//
// A File resolves multi-release entries, exposes the manifest and the
// signers of each entry, and hands out entry readers that inflate deflated
// content with pooled decompressors. Every reader and raw data stream opened
// through a File is closed when the File is closed. A File that becomes
// unreachable without being closed releases its resources on its own.
package jar

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/meigma/nestedjar/internal/cleaner"
	"github.com/meigma/nestedjar/internal/file"
	"github.com/meigma/nestedjar/internal/ziperr"
	"github.com/meigma/nestedjar/zipcontent"
)

// BaseVersion is the release whose entries are stored outside
// META-INF/versions. Versioned lookups only happen for higher versions.
const BaseVersion = 8

const (
	metaInf         = "META-INF/"
	metaInfVersions = "META-INF/versions/"
	manifestName    = "META-INF/MANIFEST.MF"
)

// Sentinel errors re-exported from internal/ziperr.
var (
	ErrFormat          = ziperr.ErrFormat
	ErrNotFound        = ziperr.ErrNotFound
	ErrClosed          = ziperr.ErrClosed
	ErrUnsupported     = ziperr.ErrUnsupported
	ErrInvalidArgument = ziperr.ErrInvalidArgument
	ErrChecksum        = ziperr.ErrChecksum
)

// Option configures a File.
type Option func(*config)

type config struct {
	version       int
	cleaner       *cleaner.Cleaner
	logger        *slog.Logger
	inflaterLimit int
}

// WithVersion sets the release used to resolve multi-release entries.
func WithVersion(v int) Option {
	return func(c *config) {
		c.version = v
	}
}

// WithCleaner sets the cleaner that releases resources of files and readers
// that are never closed.
func WithCleaner(cl *cleaner.Cleaner) Option {
	return func(c *config) {
		c.cleaner = cl
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithInflaterLimit bounds the number of idle decompressors kept for reuse.
func WithInflaterLimit(n int) Option {
	return func(c *config) {
		c.inflaterLimit = n
	}
}

// File is an open jar.
//
// All methods are safe for concurrent use. After Close every method that
// touches the archive fails with ErrClosed.
type File struct {
	name    string
	version int
	logger  *slog.Logger
	cleaner *cleaner.Cleaner
	res     *resources
	cleanup *cleaner.Cleanable

	// mu serializes archive access with Close.
	mu        sync.Mutex
	closed    atomic.Bool
	lastEntry atomic.Pointer[Entry]
}

// Open opens the jar at path. A non-empty entryName opens the stored jar
// entry or the directory entry of that name instead of the jar itself.
func Open(cache *zipcontent.Cache, path, entryName string, opts ...Option) (*File, error) {
	cfg := config{version: BaseVersion, inflaterLimit: file.DefaultInflaterLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cache == nil {
		return nil, fmt.Errorf("%w: nil zip content cache", ErrInvalidArgument)
	}
	res, err := openResources(cache, path, entryName, cfg.inflaterLimit)
	if err != nil {
		return nil, err
	}
	name := path
	if entryName != "" {
		name += "!/" + entryName
	}
	f := &File{
		name:    name,
		version: cfg.version,
		logger:  cfg.logger,
		cleaner: cfg.cleaner,
		res:     res,
	}
	f.cleanup = cleaner.Register(cfg.cleaner, f, res.release)
	f.log().Debug("opened jar file", "name", name, "version", cfg.version)
	return f, nil
}

func (f *File) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

func (f *File) ensureOpen() error {
	if f.closed.Load() {
		return fmt.Errorf("%s: zip file %w", f.name, ErrClosed)
	}
	return nil
}

// content returns the zip content under the file lock.
func (f *File) content() (*zipcontent.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}
	return f.res.content, nil
}

// Name returns the path of the jar, followed by "!/" and the entry name for
// nested jars.
func (f *File) Name() string {
	return f.name
}

// Version returns the release used to resolve multi-release entries.
func (f *File) Version() int {
	return f.version
}

// Size returns the number of entries.
func (f *File) Size() (int, error) {
	c, err := f.content()
	if err != nil {
		return 0, err
	}
	return c.Len(), nil
}

// Comment returns the zip comment.
func (f *File) Comment() (string, error) {
	c, err := f.content()
	if err != nil {
		return "", err
	}
	return c.Comment()
}

// Entries iterates over all entries in central directory order.
func (f *File) Entries() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		c, err := f.content()
		if err != nil {
			yield(nil, err)
			return
		}
		for i := range c.Len() {
			ce, err := f.entryAt(c, i)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(newEntry(f, ce, ce.Name()), nil) {
				return
			}
		}
	}
}

func (f *File) entryAt(c *zipcontent.Content, i int) (*zipcontent.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}
	return c.EntryAt(i)
}

// VersionedEntries iterates over the entries visible at the file's version:
// each name once, resolved to the highest applicable versioned entry.
// Entries of versions above the file's version are skipped.
func (f *File) VersionedEntries() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		seen := make(map[string]struct{})
		for e, err := range f.Entries() {
			if err != nil {
				yield(nil, err)
				return
			}
			name, ok := f.baseName(e.RealName())
			if !ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			ve, err := f.Entry(name)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if !yield(ve, err) || err != nil {
				return
			}
		}
	}
}

// baseName maps a real entry name to the name it is visible under. It
// reports false for entries of versions above the file's version and for
// malformed version directories.
func (f *File) baseName(name string) (string, bool) {
	if !strings.HasPrefix(name, metaInfVersions) {
		return name, true
	}
	rest := name[len(metaInfVersions):]
	slash := strings.IndexByte(rest, '/')
	if slash == -1 || slash == len(rest)-1 {
		return "", false
	}
	v, err := strconv.Atoi(rest[:slash])
	if err != nil || v > f.version {
		return "", false
	}
	return rest[slash+1:], true
}

// Entry returns the entry visible under name, resolving multi-release
// entries when the manifest declares them. A missing entry is reported as
// ErrNotFound.
func (f *File) Entry(name string) (*Entry, error) {
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}
	if last := f.lastEntry.Load(); last != nil && last.name == name {
		return last, nil
	}
	ce, err := f.versionedContentEntry(name)
	if err != nil {
		return nil, err
	}
	if ce == nil {
		ce, err = f.contentEntry("", name)
		if err != nil {
			return nil, err
		}
	}
	if ce == nil {
		return nil, fmt.Errorf("%s: entry %q: %w", f.name, name, ErrNotFound)
	}
	e := newEntry(f, ce, name)
	f.lastEntry.Store(e)
	return e, nil
}

// HasEntry reports whether an entry is visible under name.
func (f *File) HasEntry(name string) (bool, error) {
	if err := f.ensureOpen(); err != nil {
		return false, err
	}
	if last := f.lastEntry.Load(); last != nil && last.name == name {
		return true, nil
	}
	ce, err := f.versionedContentEntry(name)
	if err != nil {
		return false, err
	}
	if ce != nil {
		return true, nil
	}
	c, err := f.content()
	if err != nil {
		return false, err
	}
	return c.HasEntry("", name)
}

func (f *File) versionedContentEntry(name string) (*zipcontent.Entry, error) {
	if f.version <= BaseVersion || strings.HasPrefix(name, metaInf) {
		return nil, nil //nolint:nilnil // no versioned entry applies
	}
	mi, err := f.manifestInfo()
	if err != nil {
		return nil, err
	}
	if !mi.isMultiRelease() {
		return nil, nil //nolint:nilnil // no versioned entry applies
	}
	vi, err := f.versionsInfo()
	if err != nil {
		return nil, err
	}
	for i := len(vi.versions) - 1; i >= 0; i-- {
		if vi.versions[i] > f.version {
			continue
		}
		ce, err := f.contentEntry(vi.directories[i], name)
		if err != nil || ce != nil {
			return ce, err
		}
	}
	return nil, nil //nolint:nilnil // no versioned entry applies
}

// contentEntry looks up prefix+name, returning nil when it does not exist.
func (f *File) contentEntry(prefix, name string) (*zipcontent.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}
	ce, err := f.res.content.EntryWithPrefix(prefix, name)
	if errors.Is(err, zipcontent.ErrNotFound) {
		return nil, nil //nolint:nilnil // absence is reported by the caller
	}
	return ce, err
}

// Open returns a reader for the content of e. An entry obtained from
// another File is looked up by name in f.
func (f *File) Open(e *Entry) (*EntryReader, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrInvalidArgument)
	}
	if e.file != f {
		var err error
		if e, err = f.Entry(e.Name()); err != nil {
			return nil, err
		}
	}
	return f.openEntry(e.content, e.name)
}

// OpenName returns a reader for the entry visible under name.
func (f *File) OpenName(name string) (*EntryReader, error) {
	e, err := f.Entry(name)
	if err != nil {
		return nil, err
	}
	return f.openEntry(e.content, e.name)
}

// OpenRawZipData returns the bytes of the zip the file reads, which for a
// nested directory is a synthetic zip of the directory's entries.
func (f *File) OpenRawZipData() (*RawZipData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}
	handle, err := f.res.content.OpenRawZipData()
	if err != nil {
		return nil, err
	}
	raw := newRawZipData(handle)
	if !f.res.track(raw.stream) {
		_ = raw.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%s: zip file %w", f.name, ErrClosed)
	}
	return raw, nil
}

// ClearCache forgets the last looked up entry.
func (f *File) ClearCache() {
	f.lastEntry.Store(nil)
}

// Close closes every reader opened through f and releases the zip content.
// Calling Close again is a no-op.
func (f *File) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log().Debug("closing jar file", "name", f.name)
	f.lastEntry.Store(nil)
	f.cleanup.Clean()
	return f.res.releaseErr()
}

func (f *File) String() string {
	return f.name
}
