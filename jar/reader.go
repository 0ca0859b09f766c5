package jar

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/cleaner"
	"github.com/meigma/nestedjar/zipcontent"
)

// EntryReader streams the uncompressed content of an entry.
//
// The reader releases its resources as soon as the last byte has been
// read; further reads report io.EOF. Reads after Close, or after the File
// is closed, fail with ErrClosed.
type EntryReader struct {
	f      *File
	name   string
	stream *stream
	// src yields uncompressed bytes: the raw content for stored entries or
	// a decompressor over it for deflated ones.
	src     io.Reader
	cleanup *cleaner.Cleanable

	mu        sync.Mutex
	size      int64
	remaining int64
	done      bool
	closed    bool
}

func (f *File) openEntry(ce *zipcontent.Entry, name string) (*EntryReader, error) {
	method := ce.CompressionMethod()
	if method != zipcontent.Stored && method != zipcontent.Deflated {
		return nil, fmt.Errorf("%w: %s: entry %q: invalid compression method %d", ErrUnsupported, f.name, name, method)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}
	content, err := ce.OpenContent()
	if err != nil {
		return nil, err
	}
	raw := &rawReader{f: f, content: content, remaining: content.Size()}
	src := io.Reader(raw)
	release := content.Close
	if method == zipcontent.Deflated {
		dec, put, err := f.res.inflaters.Get(raw)
		if err != nil {
			return nil, errors.Join(err, content.Close())
		}
		src = dec
		release = func() error {
			put()
			return content.Close()
		}
	}

	r := &EntryReader{
		f:         f,
		name:      name,
		stream:    newStream(release),
		src:       src,
		size:      ce.UncompressedSize(),
		remaining: ce.UncompressedSize(),
	}
	if !f.res.track(r.stream) {
		_ = r.stream.close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%s: zip file %w", f.name, ErrClosed)
	}
	s := r.stream
	r.cleanup = cleaner.Register(f.cleaner, r, func() { _ = s.close() }) //nolint:errcheck // nobody to report to
	return r, nil
}

// Read implements io.Reader.
func (r *EntryReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, fmt.Errorf("%s: entry %q: stream %w", r.f.name, r.name, ErrClosed)
	}
	if r.done {
		return 0, io.EOF
	}
	if err := r.f.ensureOpen(); err != nil {
		return 0, err
	}
	if r.remaining == 0 {
		return 0, r.finish()
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.src.Read(p)
	r.remaining -= int64(n)
	if err == io.EOF && r.remaining > 0 {
		err = fmt.Errorf("%w: %s: entry %q ended %d bytes early: %w",
			ErrFormat, r.f.name, r.name, r.remaining, io.ErrUnexpectedEOF)
	}
	if err != nil && err != io.EOF {
		return n, err
	}
	if r.remaining == 0 {
		return n, r.finish()
	}
	return n, nil
}

// finish releases the stream once all content has been read.
func (r *EntryReader) finish() error {
	r.done = true
	r.cleanup.Clean()
	if err := r.stream.close(); err != nil {
		return err
	}
	return io.EOF
}

// Available returns the number of uncompressed bytes not read yet.
func (r *EntryReader) Available() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.done {
		return 0
	}
	return r.remaining
}

// Size returns the uncompressed size of the entry.
func (r *EntryReader) Size() int64 {
	return r.size
}

// Close releases the reader. Calling Close again is a no-op.
func (r *EntryReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.cleanup.Clean()
	return r.stream.close()
}

// rawReader reads the stored bytes of an entry.
type rawReader struct {
	f         *File
	content   *datablock.File
	pos       int64
	remaining int64
}

func (r *rawReader) Read(p []byte) (int, error) {
	if err := r.f.ensureOpen(); err != nil {
		return 0, err
	}
	if r.remaining == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.content.Read(p, r.pos)
	r.pos += int64(n)
	r.remaining -= int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// RawZipData streams the bytes of the zip behind a File. It supports
// random access through ReadAt and Seek.
type RawZipData struct {
	*datablock.Reader
	stream *stream
}

func newRawZipData(handle *datablock.Handle) *RawZipData {
	return &RawZipData{
		Reader: datablock.NewReader(handle),
		stream: newStream(handle.Close),
	}
}

// Close releases the data. Calling Close again is a no-op.
func (d *RawZipData) Close() error {
	return errors.Join(d.Reader.Close(), d.stream.close())
}
