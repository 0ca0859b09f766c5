// Package ziperr defines the sentinel errors shared by the archive packages.
package ziperr

import "errors"

// Sentinel errors for archive operations.
var (
	// ErrFormat is returned when bytes do not form a valid zip structure.
	ErrFormat = errors.New("nestedjar: invalid zip format")

	// ErrNotFound is returned when a required entry or location does not exist.
	ErrNotFound = errors.New("nestedjar: not found")

	// ErrClosed is returned by operations on a closed archive, block or stream.
	ErrClosed = errors.New("nestedjar: closed")

	// ErrUnsupported is returned for zip features that are deliberately not handled.
	ErrUnsupported = errors.New("nestedjar: unsupported zip feature")

	// ErrInvalidArgument is returned when a caller supplied value is malformed.
	ErrInvalidArgument = errors.New("nestedjar: invalid argument")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("nestedjar: size overflow")

	// ErrChecksum is returned when entry content does not match its CRC-32.
	ErrChecksum = errors.New("nestedjar: checksum mismatch")
)
