// Package datablock provides random access byte ranges used to read zip
// structures without copying them.
//
// A DataBlock is either held in memory (Bytes), backed by a shared reference
// counted file handle (File), or assembled from other blocks (Virtual).
package datablock

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/nestedjar/internal/ziperr"
)

// DataBlock provides random access to a fixed-size range of bytes.
//
// Read transfers up to len(p) bytes starting at pos and returns the number of
// bytes read. Unlike io.ReaderAt, a short read is not an error: callers that
// need the whole buffer filled use ReadFully. Read returns 0, io.EOF when pos
// is at or beyond Size.
type DataBlock interface {
	Size() int64
	Read(p []byte, pos int64) (int, error)
}

// Closeable is a DataBlock that owns a reference to an underlying resource.
//
// Every successful Open must be balanced by a Close.
type Closeable interface {
	DataBlock
	Open() error
	Close() error
}

// ReadFully reads exactly len(p) bytes starting at pos.
//
// It returns io.ErrUnexpectedEOF if the block ends before p is filled.
func ReadFully(b DataBlock, p []byte, pos int64) error {
	for len(p) > 0 {
		n, err := b.Read(p, pos)
		p = p[n:]
		pos += int64(n)
		if len(p) == 0 {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
	}
	return nil
}

// Bytes is a DataBlock held in memory.
type Bytes []byte

// Size returns the length of the slice.
func (b Bytes) Size() int64 {
	return int64(len(b))
}

// Read copies bytes starting at pos into p.
func (b Bytes) Read(p []byte, pos int64) (int, error) {
	if pos < 0 {
		return 0, fmt.Errorf("%w: negative position %d", ziperr.ErrInvalidArgument, pos)
	}
	if pos >= int64(len(b)) {
		return 0, io.EOF
	}
	return copy(p, b[pos:]), nil
}

var _ DataBlock = Bytes(nil)
