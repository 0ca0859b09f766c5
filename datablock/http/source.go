// Package http reads zip content from a remote server with HTTP range
// requests.
//
// A Source fetches the remote object in fixed-size blocks and keeps the
// most recently used ones, so that parsing the central directory and
// reading neighbouring entries does not issue one request per record.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/ziperr"
)

const (
	// DefaultBlockSize is the size of one cached range.
	DefaultBlockSize = 64 << 10
	// DefaultCacheBlocks is the number of ranges a Source keeps.
	DefaultCacheBlocks = 64
)

// ErrRangeNotSupported is returned when the server ignores range requests.
var ErrRangeNotSupported = errors.New("nestedjar: range requests not supported")

// ErrModified is returned by conditional reads when the remote object no
// longer matches the version that was opened.
var ErrModified = errors.New("nestedjar: remote content modified")

// validators identify the version of the remote object seen when a Source
// was opened.
type validators struct {
	etag         string
	lastModified string
}

func (v validators) apply(h nethttp.Header) {
	if v.etag != "" && h.Get("If-Match") == "" {
		h.Set("If-Match", v.etag)
	}
	if v.lastModified != "" && h.Get("If-Unmodified-Since") == "" {
		h.Set("If-Unmodified-Since", v.lastModified)
	}
}

// Source is an io.ReaderAt over a remote object.
type Source struct {
	url         string
	client      *nethttp.Client
	header      nethttp.Header
	logger      *slog.Logger
	conditional bool
	blockSize   int64
	cacheBlocks int

	size    int64
	version validators
	blocks  *lru.Cache[int64, []byte]
	group   singleflight.Group
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the client requests go through.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) { s.client = client }
}

// WithHeaders adds headers to every request.
func WithHeaders(header nethttp.Header) Option {
	return func(s *Source) {
		for key, values := range header {
			for _, v := range values {
				s.header.Add(key, v)
			}
		}
	}
}

// WithHeader sets one header on every request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		s.header.Set(key, value)
	}
}

// WithConditionalHeaders makes block reads conditional on the ETag and
// Last-Modified seen when the Source was opened. A read of a changed object
// fails with ErrModified.
func WithConditionalHeaders() Option {
	return func(s *Source) { s.conditional = true }
}

// WithBlockSize sets the size of the ranges fetched and cached.
func WithBlockSize(n int64) Option {
	return func(s *Source) { s.blockSize = n }
}

// WithCacheBlocks sets how many ranges are kept.
func WithCacheBlocks(n int) Option {
	return func(s *Source) { s.cacheBlocks = n }
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

// NewSource opens url. A one-byte range request learns the size and checks
// that the server honours ranges.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{url: url, header: make(nethttp.Header)}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if s.blockSize <= 0 {
		s.blockSize = DefaultBlockSize
	}
	if s.cacheBlocks <= 0 {
		s.cacheBlocks = DefaultCacheBlocks
	}
	blocks, err := lru.New[int64, []byte](s.cacheBlocks)
	if err != nil {
		return nil, err
	}
	s.blocks = blocks

	if err := s.stat(ctx); err != nil {
		return nil, err
	}
	s.log().Debug("opened remote source", "url", url, "size", s.size, "etag", s.version.etag)
	return s, nil
}

func (s *Source) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// URL returns the remote URL.
func (s *Source) URL() string { return s.url }

// Size returns the length of the remote object.
func (s *Source) Size() int64 { return s.size }

func (s *Source) String() string { return s.url }

// Access returns the source as a shared datablock access.
func (s *Source) Access() datablock.Access {
	return datablock.NewReaderAtAccess(s, s.url)
}

// ReadAt implements io.ReaderAt. Reads are served from cached blocks.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	switch {
	case off < 0:
		return 0, fmt.Errorf("%w: negative offset %d", ziperr.ErrInvalidArgument, off)
	case len(p) == 0:
		return 0, nil
	case off >= s.size:
		return 0, io.EOF
	}

	var n int
	for n < len(p) && off < s.size {
		index := off / s.blockSize
		b, err := s.block(index)
		if err != nil {
			return n, err
		}
		c := copy(p[n:], b[off-index*s.blockSize:])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// block returns the cached block at index, fetching it once for concurrent
// callers.
func (s *Source) block(index int64) ([]byte, error) {
	if b, ok := s.blocks.Get(index); ok {
		return b, nil
	}
	v, err, _ := s.group.Do(strconv.FormatInt(index, 10), func() (any, error) {
		if b, ok := s.blocks.Get(index); ok {
			return b, nil
		}
		b, err := s.fetch(index)
		if err != nil {
			return nil, err
		}
		s.blocks.Add(index, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil //nolint:forcetypeassert // group only returns blocks
}

func (s *Source) fetch(index int64) ([]byte, error) {
	first := index * s.blockSize
	last := min(first+s.blockSize, s.size) - 1
	s.log().Debug("fetching remote range", "url", s.url, "start", first, "end", last)

	// ReadAt carries no context
	resp, err := s.get(context.Background(), first, last, s.conditional)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return nil, ErrRangeNotSupported
	case nethttp.StatusPreconditionFailed:
		return nil, fmt.Errorf("%w: %s changed since it was opened", ErrModified, s.url)
	default:
		return nil, fmt.Errorf("range %d-%d of %s: %s", first, last, s.url, resp.Status)
	}
	b := make([]byte, last-first+1)
	if _, err := io.ReadFull(resp.Body, b); err != nil {
		return nil, fmt.Errorf("range %d-%d of %s: %w", first, last, s.url, err)
	}
	return b, nil
}

// stat requests the first byte, recording the total size from
// Content-Range and the version validators.
func (s *Source) stat(ctx context.Context) error {
	resp, err := s.get(ctx, 0, 0, false)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return ErrRangeNotSupported
	case nethttp.StatusNotFound, nethttp.StatusGone:
		return fmt.Errorf("%w: %s", ziperr.ErrNotFound, s.url)
	default:
		return fmt.Errorf("stat %s: %s", s.url, resp.Status)
	}
	if s.size, err = parseContentRange(resp.Header.Get("Content-Range")); err != nil {
		return fmt.Errorf("stat %s: %w", s.url, err)
	}
	s.version = validators{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
	return nil
}

// get requests bytes first through last inclusive.
func (s *Source) get(ctx context.Context, first, last int64, conditional bool) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, s.url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.header {
		req.Header[key] = append([]string(nil), values...)
	}
	// ranges address the stored bytes, so transfer encodings must stay off
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if conditional {
		s.version.apply(req.Header)
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(first, 10)+"-"+strconv.FormatInt(last, 10))
	return s.client.Do(req)
}

// drain reads the rest of the body so the connection can be reused.
func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // connection reuse only
	_ = resp.Body.Close()
}

// parseContentRange returns the complete length from a
// "bytes first-last/length" value.
func parseContentRange(value string) (int64, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	_, length, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	n, err := strconv.ParseInt(length, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return n, nil
}

var _ io.ReaderAt = (*Source)(nil)
