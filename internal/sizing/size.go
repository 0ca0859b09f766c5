// Package sizing provides safe size arithmetic and conversions to prevent overflow.
package sizing

import (
	"io"
	"math"
)

// ToInt32 converts a uint64 to int32, returning overflowErr if it doesn't fit.
// Entry counts and relative central directory offsets are bounded by this.
func ToInt32(size uint64, overflowErr error) (int32, error) {
	if size > math.MaxInt32 {
		return 0, overflowErr
	}
	return int32(size), nil //nolint:gosec // checked above
}

// ToInt64 converts a uint64 to int64, returning overflowErr if it doesn't fit.
func ToInt64(size uint64, overflowErr error) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, overflowErr
	}
	return int64(size), nil
}

// InRange reports whether [offset, offset+size) lies within [0, limit).
func InRange(offset, size, limit int64) bool {
	if offset < 0 || size < 0 || limit < 0 {
		return false
	}
	if offset > limit {
		return false
	}
	return size <= limit-offset
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
func ReadAllWithLimit(r io.Reader, maxSize uint64, overflowErr error) ([]byte, error) {
	if maxSize > uint64(math.MaxInt-1) {
		return nil, overflowErr
	}
	limit := int64(maxSize) + 1 //nolint:gosec // checked above
	lr := &io.LimitedReader{R: r, N: limit}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize {
		return nil, overflowErr
	}
	return data, nil
}
