package jar

import (
	"slices"
	"sync"
	"time"

	"github.com/meigma/nestedjar/zipcontent"
)

// Entry is an entry of a File.
//
// Name is the name the entry was requested under. For an entry resolved
// from META-INF/versions, RealName is the name stored in the archive.
type Entry struct {
	file    *File
	content *zipcontent.Entry
	name    string

	infoOnce sync.Once
	info     zipcontent.EntryInfo
	infoErr  error
}

func newEntry(f *File, content *zipcontent.Entry, name string) *Entry {
	return &Entry{file: f, content: content, name: name}
}

// Name returns the name the entry was requested under.
func (e *Entry) Name() string {
	return e.name
}

// RealName returns the name stored in the archive.
func (e *Entry) RealName() string {
	return e.content.Name()
}

// IsDirectory reports whether the entry is a directory.
func (e *Entry) IsDirectory() bool {
	return e.content.IsDirectory()
}

// Size returns the uncompressed size.
func (e *Entry) Size() int64 {
	return e.content.UncompressedSize()
}

// CompressedSize returns the stored size.
func (e *Entry) CompressedSize() int64 {
	return e.content.CompressedSize()
}

// Method returns the compression method.
func (e *Entry) Method() uint16 {
	return e.content.CompressionMethod()
}

// CRC32 returns the checksum of the uncompressed content.
func (e *Entry) CRC32() uint32 {
	return e.content.CRC32()
}

// Modified returns the last modification time.
func (e *Entry) Modified() time.Time {
	return e.content.Modified()
}

// Info returns every metadata field of the entry. The extra field and the
// comment are read on first call.
func (e *Entry) Info() (zipcontent.EntryInfo, error) {
	e.infoOnce.Do(func() {
		e.info, e.infoErr = e.content.Info()
	})
	return e.info, e.infoErr
}

// Attributes returns the manifest section for the entry, or nil if the
// manifest has none.
func (e *Entry) Attributes() (Attributes, error) {
	m, err := e.file.Manifest()
	if err != nil || m == nil {
		return nil, err
	}
	return m.Attributes(e.name), nil
}

// Signers returns the names of the signature files that cover the entry.
// It is empty for unsigned jars.
func (e *Entry) Signers() ([]string, error) {
	si, err := e.file.signersInfo()
	if err != nil {
		return nil, err
	}
	return slices.Clone(si.signers[e.content.LookupIndex()]), nil
}

func (e *Entry) String() string {
	return e.name
}
