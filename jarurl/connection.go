package jarurl

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"sync"
	"time"

	"github.com/meigma/nestedjar/jar"
	"github.com/meigma/nestedjar/nested"
	"github.com/meigma/nestedjar/zipcontent"
)

// ContentType is reported for a URL that names a whole archive.
const ContentType = "x-java/jar"

// unknownContentType is reported when an entry's type cannot be guessed.
const unknownContentType = "content/unknown"

// Option configures a Connection.
type Option func(*Connection)

// WithResolver sets the resolver used to parse nested inner URLs.
func WithResolver(r *nested.Resolver) Option {
	return func(c *Connection) {
		c.resolver = r
	}
}

// WithJarOptions sets options passed to jar.Open.
func WithJarOptions(opts ...jar.Option) Option {
	return func(c *Connection) {
		c.jarOpts = append(c.jarOpts, opts...)
	}
}

// WithRuntimeVersion sets the release used for URLs with a "#runtime"
// fragment. Other URLs see the base entries of multi-release jars.
func WithRuntimeVersion(v int) Option {
	return func(c *Connection) {
		c.runtimeVersion = v
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// Connection opens the archive and entry a jar URL names.
//
// The archive is opened on Connect, or on first use of any accessor that
// needs it, and closed by Close or by closing the reader Reader returned.
type Connection struct {
	url            URL
	cache          *zipcontent.Cache
	resolver       *nested.Resolver
	jarOpts        []jar.Option
	runtimeVersion int
	logger         *slog.Logger

	mu          sync.Mutex
	location    nested.Location
	file        *jar.File
	entry       *jar.Entry
	contentType string
	closed      bool
}

// Open creates a Connection for rawURL without connecting. The inner URL
// is parsed eagerly so malformed URLs fail here.
func Open(cache *zipcontent.Cache, rawURL string, opts ...Option) (*Connection, error) {
	if cache == nil {
		return nil, fmt.Errorf("%w: nil zip content cache", ErrInvalidArgument)
	}
	u, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	c := &Connection{url: u, cache: cache, runtimeVersion: jar.BaseVersion}
	for _, opt := range opts {
		opt(c)
	}
	if c.location, err = u.Location(c.resolver); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// URL returns the parsed URL.
func (c *Connection) URL() URL {
	return c.url
}

// Location returns the archive the inner URL refers to.
func (c *Connection) Location() nested.Location {
	return c.location
}

// Connect opens the archive and looks up the entry. A missing entry is
// reported as ErrNotFound and leaves the connection unconnected. Calling
// Connect again once connected is a no-op.
func (c *Connection) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Connection) connectLocked() error {
	if c.closed {
		return fmt.Errorf("%s: connection %w", c.url, ErrClosed)
	}
	if c.file != nil {
		return nil
	}
	opts := c.jarOpts
	if c.url.Fragment == runtimeFragment {
		opts = append(opts[:len(opts):len(opts)], jar.WithVersion(c.runtimeVersion))
	}
	f, err := jar.Open(c.cache, c.location.Path, c.location.EntryName, opts...)
	if err != nil {
		return err
	}
	if c.url.HasEntry() {
		e, err := f.Entry(c.url.EntryName)
		if err != nil {
			err = c.entryError(f, err)
			return errors.Join(err, f.Close())
		}
		c.entry = e
	}
	c.file = f
	c.log().Debug("connected jar url", "url", c.url.String(), "file", f.Name())
	return nil
}

func (c *Connection) entryError(f *jar.File, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: JAR entry %s not found in %s", ErrNotFound, c.url.EntryName, f.Name())
	}
	return err
}

// File connects and returns the open jar file. It stays owned by the
// connection.
func (c *Connection) File() (*jar.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c.file, nil
}

// Entry connects and returns the named entry, or nil if the URL names the
// whole archive.
func (c *Connection) Entry() (*jar.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c.entry, nil
}

// ContentLength returns the uncompressed size of the entry, or the size of
// the archive when no entry is named. It is -1 if the connection cannot be
// established.
func (c *Connection) ContentLength() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return -1
	}
	if c.entry != nil {
		return c.entry.Size()
	}
	raw, err := c.file.OpenRawZipData()
	if err != nil {
		return -1
	}
	defer raw.Close()
	return raw.Size()
}

// ContentType returns ContentType for a whole archive. For an entry the
// type is guessed from the name and then from the leading bytes, falling
// back to "content/unknown".
func (c *Connection) ContentType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contentType == "" {
		c.contentType = c.deduceContentType()
	}
	return c.contentType
}

func (c *Connection) deduceContentType() string {
	if !c.url.HasEntry() {
		return ContentType
	}
	if t := mime.TypeByExtension(path.Ext(c.url.EntryName)); t != "" {
		return t
	}
	if t := c.sniffContentType(); t != "" {
		return t
	}
	return unknownContentType
}

func (c *Connection) sniffContentType() string {
	if err := c.connectLocked(); err != nil {
		return ""
	}
	r, err := c.file.Open(c.entry)
	if err != nil {
		return ""
	}
	defer r.Close()
	buf := make([]byte, 512)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return ""
	}
	if t := http.DetectContentType(buf[:n]); t != "application/octet-stream" {
		return t
	}
	return ""
}

// LastModified returns the modification time of the container file, or
// the zero time if it cannot be read.
func (c *Connection) LastModified() time.Time {
	info, err := os.Stat(c.location.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Reader connects and returns the content of the entry. Without an entry
// name, a nested inner URL streams the raw zip data and a file URL is an
// error. Closing the reader closes the connection.
func (c *Connection) Reader() (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.url.HasEntry() && !c.url.IsNested() {
		return nil, fmt.Errorf("%w: %s: no entry name specified", ErrInvalidArgument, c.url)
	}
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	var (
		r   io.ReadCloser
		err error
	)
	if c.entry != nil {
		r, err = c.file.Open(c.entry)
	} else {
		r, err = c.file.OpenRawZipData()
	}
	if err != nil {
		return nil, err
	}
	return &connectionReader{ReadCloser: r, conn: c}, nil
}

// Close closes the jar file and every reader opened from it. Calling
// Close again is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.file == nil {
		return nil
	}
	return c.file.Close()
}

// connectionReader closes its connection on Close.
type connectionReader struct {
	io.ReadCloser
	conn *Connection
	once sync.Once
	err  error
}

func (r *connectionReader) Close() error {
	r.once.Do(func() {
		r.err = errors.Join(r.ReadCloser.Close(), r.conn.Close())
	})
	return r.err
}
