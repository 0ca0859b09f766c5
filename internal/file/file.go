// Package file provides the fs.FS building blocks shared by archive views:
// file info for entries and synthetic directories, and CRC checked readers.
package file

import (
	"hash"
	"hash/crc32"
	"io"
	"io/fs"
	"time"

	"github.com/meigma/nestedjar/internal/ziperr"
)

// Re-export sentinel errors.
var (
	ErrChecksum     = ziperr.ErrChecksum
	ErrSizeOverflow = ziperr.ErrSizeOverflow
)

// CheckedReader reads exactly size bytes from r and verifies their CRC-32
// once the end is reached.
type CheckedReader struct {
	r         io.Reader
	h         hash.Hash32
	want      uint32
	remaining int64

	verified  bool
	verifyErr error
}

// NewCheckedReader wraps r, expecting size bytes with checksum crc.
func NewCheckedReader(r io.Reader, size int64, crc uint32) *CheckedReader {
	return &CheckedReader{r: r, h: crc32.NewIEEE(), want: crc, remaining: size}
}

// Read implements io.Reader.
func (c *CheckedReader) Read(p []byte) (int, error) {
	if c.verified {
		if c.verifyErr != nil {
			return 0, c.verifyErr
		}
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if c.remaining == 0 {
		return 0, c.finish()
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	if n > 0 {
		_, _ = c.h.Write(p[:n]) //nolint:errcheck // hash writes never fail
		c.remaining -= int64(n)
	}
	if err == io.EOF {
		if c.remaining != 0 {
			return n, io.ErrUnexpectedEOF
		}
		return n, c.finish()
	}
	return n, err
}

// finish checks the checksum and that the source holds no extra data.
func (c *CheckedReader) finish() error {
	c.verified = true
	if err := ensureNoExtra(c.r); err != nil {
		c.verifyErr = err
		return err
	}
	if got := c.h.Sum32(); got != c.want {
		c.verifyErr = ErrChecksum
		return c.verifyErr
	}
	return io.EOF
}

func ensureNoExtra(r io.Reader) error {
	var scratch [1]byte
	n, err := r.Read(scratch[:])
	if n > 0 {
		return ErrSizeOverflow
	}
	if err == io.EOF {
		return nil
	}
	return err
}

// Info implements fs.FileInfo for regular entries.
type Info struct {
	name    string
	size    int64
	modTime time.Time
}

// NewInfo creates an Info.
func NewInfo(name string, size int64, modTime time.Time) *Info {
	return &Info{name: name, size: size, modTime: modTime}
}

func (fi *Info) Name() string       { return fi.name }
func (fi *Info) Size() int64        { return fi.size }
func (fi *Info) Mode() fs.FileMode  { return 0o444 }
func (fi *Info) ModTime() time.Time { return fi.modTime }
func (fi *Info) IsDir() bool        { return false }
func (fi *Info) Sys() any           { return nil }

// DirInfo implements fs.FileInfo for directories, whether stored as
// entries or implied by entry names.
type DirInfo struct {
	name    string
	modTime time.Time
}

// NewDirInfo creates a DirInfo with the given name.
func NewDirInfo(name string, modTime time.Time) *DirInfo {
	return &DirInfo{name: name, modTime: modTime}
}

func (di *DirInfo) Name() string       { return di.name }
func (di *DirInfo) Size() int64        { return 0 }
func (di *DirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (di *DirInfo) ModTime() time.Time { return di.modTime }
func (di *DirInfo) IsDir() bool        { return true }
func (di *DirInfo) Sys() any           { return nil }

// DirEntry implements fs.DirEntry by wrapping fs.FileInfo.
type DirEntry struct {
	info fs.FileInfo
}

// NewDirEntry creates a DirEntry wrapping info.
func NewDirEntry(info fs.FileInfo) *DirEntry {
	return &DirEntry{info: info}
}

func (de *DirEntry) Name() string               { return de.info.Name() }
func (de *DirEntry) IsDir() bool                { return de.info.IsDir() }
func (de *DirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de *DirEntry) Info() (fs.FileInfo, error) { return de.info, nil }
