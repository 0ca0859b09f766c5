package zipcontent

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/records"
)

// Compression methods supported by entry readers.
const (
	Stored   uint16 = 0
	Deflated uint16 = 8
)

// Entry is a single central directory entry.
//
// Values are read from the archive when the entry is looked up, so two
// lookups of the same name yield identical values.
type Entry struct {
	s           *snapshot
	lookupIndex int
	pos         int64
	record      records.CentralDirectoryFileHeader
	name        string

	contentOnce sync.Once
	content     *datablock.File
	contentErr  error
}

func newEntry(s *snapshot, lookupIndex int, pos int64, record records.CentralDirectoryFileHeader, name string) *Entry {
	return &Entry{s: s, lookupIndex: lookupIndex, pos: pos, record: record, name: name}
}

// Name returns the entry name relative to the content root.
func (e *Entry) Name() string {
	return e.name
}

// IsDirectory reports whether the name ends with '/'.
func (e *Entry) IsDirectory() bool {
	return strings.HasSuffix(e.name, "/")
}

// HasNameStartingWith reports whether the name starts with prefix.
func (e *Entry) HasNameStartingWith(prefix string) bool {
	return strings.HasPrefix(e.name, prefix)
}

// LookupIndex returns the position of the entry in the sorted hash table.
func (e *Entry) LookupIndex() int {
	return e.lookupIndex
}

// CompressionMethod returns the zip compression method.
func (e *Entry) CompressionMethod() uint16 {
	return e.record.CompressionMethod
}

// CompressedSize returns the size of the stored content.
func (e *Entry) CompressedSize() int64 {
	return int64(e.record.CompressedSize)
}

// UncompressedSize returns the size of the content once decompressed.
func (e *Entry) UncompressedSize() int64 {
	return int64(e.record.UncompressedSize)
}

// CRC32 returns the checksum of the uncompressed content.
func (e *Entry) CRC32() uint32 {
	return e.record.CRC32
}

// Modified returns the last modification time.
func (e *Entry) Modified() time.Time {
	return e.record.Modified()
}

// Flags returns the general purpose bit flag.
func (e *Entry) Flags() uint16 {
	return e.record.GeneralPurposeBitFlag
}

// Extra reads the central directory extra field.
func (e *Entry) Extra() ([]byte, error) {
	return e.record.ReadExtra(e.s.data, e.pos)
}

// Comment reads the entry comment.
func (e *Entry) Comment() (string, error) {
	b, err := e.record.ReadComment(e.s.data, e.pos)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EntryInfo is a fully populated copy of an entry's metadata.
type EntryInfo struct {
	Name              string
	Method            uint16
	CompressedSize    int64
	UncompressedSize  int64
	CRC32             uint32
	Modified          time.Time
	Extra             []byte
	Comment           string
	IsDirectory       bool
	HasDataDescriptor bool
}

// Info reads all metadata of the entry, including extra field and comment.
func (e *Entry) Info() (EntryInfo, error) {
	extra, err := e.Extra()
	if err != nil {
		return EntryInfo{}, err
	}
	comment, err := e.Comment()
	if err != nil {
		return EntryInfo{}, err
	}
	return EntryInfo{
		Name:              e.name,
		Method:            e.record.CompressionMethod,
		CompressedSize:    e.CompressedSize(),
		UncompressedSize:  e.UncompressedSize(),
		CRC32:             e.record.CRC32,
		Modified:          e.Modified(),
		Extra:             extra,
		Comment:           comment,
		IsDirectory:       e.IsDirectory(),
		HasDataDescriptor: e.record.HasDataDescriptor(),
	}, nil
}

// OpenContent returns the raw, possibly compressed, content of the entry.
// The returned block holds a reference to the underlying file and must be closed.
func (e *Entry) OpenContent() (*datablock.File, error) {
	content, err := e.contentBlock()
	if err != nil {
		return nil, err
	}
	if err := content.Open(); err != nil {
		return nil, err
	}
	return content, nil
}

func (e *Entry) contentBlock() (*datablock.File, error) {
	e.contentOnce.Do(func() {
		e.content, e.contentErr = e.loadContent()
	})
	return e.content, e.contentErr
}

func (e *Entry) loadContent() (*datablock.File, error) {
	if e.record.OffsetToLocalHeader == records.Zip64Marker || e.record.CompressedSize == records.Zip64Marker {
		return nil, fmt.Errorf("%w: entry %q: zip64 extended information extra fields are not supported",
			ErrUnsupported, e.name)
	}
	pos := int64(e.record.OffsetToLocalHeader)
	local, err := records.LoadLocalFileHeader(e.s.data, pos)
	if err != nil {
		return nil, fmt.Errorf("%s: entry %q: %w", e.s.source, e.name, err)
	}
	content, err := e.s.data.Slice(pos+local.Size(), int64(e.record.CompressedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: entry %q content out of bounds: %w", ErrFormat, e.s.source, e.name, err)
	}
	return content, nil
}
