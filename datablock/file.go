package datablock

import (
	"fmt"
	"io"
	"sync"

	"github.com/meigma/nestedjar/internal/sizing"
	"github.com/meigma/nestedjar/internal/ziperr"
)

// File is a window onto a shared Access.
//
// All slices of a File share the same Access, so opening or closing any of
// them adjusts the same reference count.
type File struct {
	access Access
	offset int64
	size   int64
}

// NewFile creates a File covering the whole regular file at path.
// The returned block is not open; call Open before reading.
func NewFile(path string, opts ...AccessOption) (*File, error) {
	a, err := NewFileAccess(path, opts...)
	if err != nil {
		return nil, err
	}
	return &File{access: a, size: a.Size()}, nil
}

// NewShared creates a File of the given size over an existing Access.
func NewShared(access Access, size int64) *File {
	return &File{access: access, size: size}
}

// Size returns the number of bytes in the block.
func (f *File) Size() int64 {
	return f.size
}

// Access returns the shared backing access.
func (f *File) Access() Access {
	return f.access
}

// Read copies up to len(p) bytes starting at pos within the block.
func (f *File) Read(p []byte, pos int64) (int, error) {
	if pos < 0 {
		return 0, fmt.Errorf("%w: position must not be negative", ziperr.ErrInvalidArgument)
	}
	remaining := f.size - pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	return f.access.Read(p, f.offset+pos)
}

// Open acquires a reference on the shared access.
func (f *File) Open() error {
	return f.access.Open()
}

// Close releases a reference on the shared access.
func (f *File) Close() error {
	return f.access.Close()
}

// SliceFrom returns the block from offset to the end.
func (f *File) SliceFrom(offset int64) (*File, error) {
	return f.Slice(offset, f.size-offset)
}

// Slice returns a window of size bytes starting at offset.
// Slicing the full range returns f itself.
func (f *File) Slice(offset, size int64) (*File, error) {
	if offset == 0 && size == f.size {
		return f, nil
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ziperr.ErrInvalidArgument)
	}
	if !sizing.InRange(offset, size, f.size) {
		return nil, fmt.Errorf("%w: size %d out of bounds for offset %d in block of %d bytes",
			ziperr.ErrInvalidArgument, size, offset, f.size)
	}
	return &File{access: f.access, offset: f.offset + offset, size: size}, nil
}

func (f *File) String() string {
	return fmt.Sprintf("%s[%d:%d]", f.access, f.offset, f.offset+f.size)
}

// readerAtAccess adapts an io.ReaderAt to Access.
type readerAtAccess struct {
	r    io.ReaderAt
	name string

	mu   sync.Mutex
	refs int
}

// NewReaderAtAccess returns an Access over r. Reference counting is tracked
// but r itself is never closed.
func NewReaderAtAccess(r io.ReaderAt, name string) Access {
	return &readerAtAccess{r: r, name: name}
}

func (a *readerAtAccess) Read(p []byte, pos int64) (int, error) {
	a.mu.Lock()
	refs := a.refs
	a.mu.Unlock()
	if refs == 0 {
		return 0, fmt.Errorf("%s: %w", a.name, ziperr.ErrClosed)
	}
	n, err := a.r.ReadAt(p, pos)
	if n > 0 && err == io.EOF {
		err = nil
	}
	return n, err
}

func (a *readerAtAccess) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refs++
	return nil
}

func (a *readerAtAccess) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refs > 0 {
		a.refs--
	}
	return nil
}

func (a *readerAtAccess) String() string {
	return a.name
}

var (
	_ Closeable = (*File)(nil)
	_ Access    = (*readerAtAccess)(nil)
)
