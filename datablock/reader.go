package datablock

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/meigma/nestedjar/internal/ziperr"
)

// Reader presents a DataBlock as a seekable stream.
//
// Closing the Reader closes the block if it implements io.Closer.
type Reader struct {
	block DataBlock

	mu     sync.Mutex
	pos    int64
	closed bool
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b DataBlock) *Reader {
	return &Reader{block: b}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, fmt.Errorf("read: %w", ziperr.ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.pos >= r.block.Size() {
		return 0, io.EOF
	}
	n, err := r.block.Read(p, r.pos)
	r.pos += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// ReadAt implements io.ReaderAt. It does not move the stream position.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return 0, fmt.Errorf("read: %w", ziperr.ErrClosed)
	}
	if off >= r.block.Size() {
		return 0, io.EOF
	}
	want := p
	if avail := r.block.Size() - off; int64(len(want)) > avail {
		want = want[:avail]
	}
	if err := ReadFully(r.block, want, off); err != nil {
		return 0, err
	}
	if len(want) < len(p) {
		return len(want), io.EOF
	}
	return len(want), nil
}

// Seek implements io.Seeker. Seeking past the end is allowed; reads there return io.EOF.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.block.Size() + offset
	default:
		return 0, fmt.Errorf("%w: invalid whence %d", ziperr.ErrInvalidArgument, whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("%w: negative position", ziperr.ErrInvalidArgument)
	}
	r.pos = abs
	return abs, nil
}

// Size returns the size of the underlying block.
func (r *Reader) Size() int64 {
	return r.block.Size()
}

// Remaining returns the number of bytes left before the end of the block.
func (r *Reader) Remaining() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return max(r.block.Size()-r.pos, 0)
}

// Close marks the reader closed and closes the block when it is closable.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	if c, ok := r.block.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var (
	_ io.ReadSeekCloser = (*Reader)(nil)
	_ io.ReaderAt       = (*Reader)(nil)
)
