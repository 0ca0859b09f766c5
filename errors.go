package nestedjar

import (
	"github.com/meigma/nestedjar/internal/ziperr"
)

// Errors re-exported from internal/ziperr.
var (
	// ErrFormat is returned when zip or manifest data is malformed.
	ErrFormat = ziperr.ErrFormat

	// ErrNotFound is returned when a container, entry or location does not exist.
	ErrNotFound = ziperr.ErrNotFound

	// ErrClosed is returned when a closed file, reader or connection is used.
	ErrClosed = ziperr.ErrClosed

	// ErrUnsupported is returned for compression methods and URLs that cannot be read.
	ErrUnsupported = ziperr.ErrUnsupported

	// ErrInvalidArgument is returned when a location or URL is malformed.
	ErrInvalidArgument = ziperr.ErrInvalidArgument

	// ErrChecksum is returned when entry content does not match its CRC-32.
	ErrChecksum = ziperr.ErrChecksum

	// ErrSizeOverflow is returned when content is larger than allowed.
	ErrSizeOverflow = ziperr.ErrSizeOverflow
)
