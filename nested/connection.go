package nested

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/cleaner"
	"github.com/meigma/nestedjar/zipcontent"
)

// ContentType is the content type reported for nested locations.
const ContentType = "x-java/jar"

// Option configures a Connection.
type Option func(*Connection)

// WithCleaner sets the cleaner that releases connections that are never
// closed.
func WithCleaner(cl *cleaner.Cleaner) Option {
	return func(c *Connection) {
		c.cleaner = cl
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// Connection streams the raw zip bytes of a nested location.
//
// Connect opens the zip content lazily; the first call to Reader connects
// as well. Closing the connection, or the reader it returned, releases the
// content. A Connection that becomes unreachable without being closed
// releases it on its own.
type Connection struct {
	location Location
	cleaner  *cleaner.Cleaner
	logger   *slog.Logger
	res      *connectionResources
	cleanup  *cleaner.Cleanable

	mu           sync.Mutex
	lastModified *time.Time
	header       http.Header
}

// Open creates a Connection for a "nested:" URL without connecting.
func Open(cache *zipcontent.Cache, rawURL string, opts ...Option) (*Connection, error) {
	loc, err := FromURL(rawURL)
	if err != nil {
		return nil, err
	}
	return OpenLocation(cache, loc, opts...)
}

// OpenLocation creates a Connection for loc without connecting.
func OpenLocation(cache *zipcontent.Cache, loc Location, opts ...Option) (*Connection, error) {
	if cache == nil {
		return nil, fmt.Errorf("%w: nil zip content cache", ErrInvalidArgument)
	}
	c := &Connection{location: loc}
	for _, opt := range opts {
		opt(c)
	}
	c.res = &connectionResources{cache: cache, location: loc, size: -1}
	c.cleanup = cleaner.Register(c.cleaner, c, c.res.release)
	return c, nil
}

func (c *Connection) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Location returns the location the connection reads.
func (c *Connection) Location() Location {
	return c.location
}

// Connect opens the zip content of the location. Calling it again is a
// no-op.
func (c *Connection) Connect() error {
	opened, err := c.res.connect()
	if err != nil {
		return err
	}
	if opened {
		c.log().Debug("connected nested location", "location", c.location.String(), "size", c.res.contentLength())
	}
	return nil
}

// ContentLength returns the size of the raw zip data, or -1 if the
// connection cannot be established.
func (c *Connection) ContentLength() int64 {
	if err := c.Connect(); err != nil {
		return -1
	}
	return c.res.contentLength()
}

// ContentType returns ContentType.
func (c *Connection) ContentType() string {
	return ContentType
}

// LastModified returns the modification time of the container file, or the
// zero time if it cannot be read.
func (c *Connection) LastModified() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastModified == nil {
		var t time.Time
		if info, err := os.Stat(c.location.Path); err == nil {
			t = info.ModTime()
		}
		c.lastModified = &t
	}
	return *c.lastModified
}

// Header returns the content-length and last-modified headers. It is empty
// if the connection cannot be established.
func (c *Connection) Header() http.Header {
	if err := c.Connect(); err != nil {
		return http.Header{}
	}
	c.mu.Lock()
	h := c.header
	c.mu.Unlock()
	if h != nil {
		return h.Clone()
	}

	h = http.Header{}
	if n := c.ContentLength(); n > 0 {
		h.Set("Content-Length", strconv.FormatInt(n, 10))
	}
	if t := c.LastModified(); !t.IsZero() {
		h.Set("Last-Modified", t.UTC().Format(http.TimeFormat))
	}
	c.mu.Lock()
	c.header = h
	c.mu.Unlock()
	return h.Clone()
}

// Reader connects and returns the raw zip data. Closing the reader closes
// the connection.
func (c *Connection) Reader() (io.ReadCloser, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}
	r, err := c.res.reader()
	if err != nil {
		return nil, err
	}
	return &connectionReader{Reader: r, conn: c}, nil
}

// Close releases the zip content. Calling Close again is a no-op.
func (c *Connection) Close() error {
	c.cleanup.Clean()
	return c.res.releaseErr()
}

// connectionReader closes its connection on Close.
type connectionReader struct {
	*datablock.Reader
	conn *Connection
	once sync.Once
}

func (r *connectionReader) Close() error {
	var err error
	r.once.Do(func() {
		err = r.conn.Close()
	})
	return err
}

// connectionResources is everything a Connection releases. It must not
// reference the Connection.
type connectionResources struct {
	cache    *zipcontent.Cache
	location Location

	mu       sync.Mutex
	content  *zipcontent.Content
	raw      *datablock.Reader
	size     int64
	released bool
	err      error
}

// connect opens the content on first use and reports whether it did.
func (r *connectionResources) connect() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return false, fmt.Errorf("nested location %s: connection %w", r.location, ErrClosed)
	}
	if r.content != nil {
		return false, nil
	}
	content, err := r.cache.OpenNested(r.location.Path, r.location.EntryName)
	if err != nil {
		return false, err
	}
	handle, err := content.OpenRawZipData()
	if err != nil {
		return false, errors.Join(err, content.Close())
	}
	r.content = content
	r.raw = datablock.NewReader(handle)
	r.size = handle.Size()
	return true, nil
}

func (r *connectionResources) contentLength() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *connectionResources) reader() (*datablock.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, fmt.Errorf("nested location %s: connection %w", r.location, ErrClosed)
	}
	if r.raw == nil {
		return nil, fmt.Errorf("nested location %s: %w", r.location, ErrNotFound)
	}
	return r.raw, nil
}

// release closes the raw data and then the content. It runs at most once.
func (r *connectionResources) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	if r.content == nil {
		return
	}
	r.err = errors.Join(r.raw.Close(), r.content.Close())
	r.size = -1
}

func (r *connectionResources) releaseErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
