package zipcontent

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/records"
	"github.com/meigma/nestedjar/internal/sizing"
	"github.com/meigma/nestedjar/internal/zipstring"
)

const metaInf = "META-INF/"

var signatureSuffix = []byte(".DSA")

type lookup struct {
	hash      int32
	relOffset int64
	index     int
}

// indexBuilder collects central directory records and produces the sorted
// lookup tables of a snapshot.
type indexBuilder struct {
	source     Source
	data       *datablock.File
	cdPos      int64
	nameOffset int
	lookups    []lookup
}

func newIndexBuilder(source Source, data *datablock.File, cdPos int64, nameOffset, capacity int) *indexBuilder {
	return &indexBuilder{
		source:     source,
		data:       data,
		cdPos:      cdPos,
		nameOffset: nameOffset,
		lookups:    make([]lookup, 0, capacity),
	}
}

func (b *indexBuilder) add(record records.CentralDirectoryFileHeader, pos int64) error {
	name, err := zipstring.ReadName(b.data,
		pos+records.CentralDirectoryHeaderSize+int64(b.nameOffset),
		int(record.FileNameLength)-b.nameOffset)
	if err != nil {
		return fmt.Errorf("%s: reading entry name at %d: %w", b.source, pos, err)
	}
	b.lookups = append(b.lookups, lookup{
		hash:      zipstring.HashBytes(name, true),
		relOffset: pos - b.cdPos,
		index:     len(b.lookups),
	})
	return nil
}

func (b *indexBuilder) finish(kind Kind, commentPos, commentLength int64, hasJarSignatureFile bool, opts loadOptions) (*snapshot, error) {
	slices.SortStableFunc(b.lookups, func(x, y lookup) int {
		return cmp.Compare(x.hash, y.hash)
	})
	n := len(b.lookups)
	s := &snapshot{
		source:              b.source,
		kind:                kind,
		data:                b.data,
		centralDirectoryPos: b.cdPos,
		commentPos:          commentPos,
		commentLength:       commentLength,
		nameOffset:          b.nameOffset,
		hasJarSignatureFile: hasJarSignatureFile,
		lookupIndexes:       make([]int, n),
		hashes:              make([]int32, n),
		relOffsets:          make([]int64, n),
		logger:              opts.logger,
		refs:                1,
	}
	for i, l := range b.lookups {
		s.hashes[i] = l.hash
		s.relOffsets[i] = l.relOffset
		s.lookupIndexes[l.index] = i
	}
	info, err := lru.New[infoKey, any](max(opts.infoCacheSize, 1))
	if err != nil {
		return nil, err
	}
	s.info = info
	return s, nil
}

type loadOptions struct {
	logger        *slog.Logger
	infoCacheSize int
}

func (o loadOptions) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

// openAndLoad takes a reference on data and parses it. The reference is
// owned by the returned snapshot, or released on error.
func openAndLoad(source Source, kind Kind, data *datablock.File, opts loadOptions) (*snapshot, error) {
	if err := data.Open(); err != nil {
		return nil, err
	}
	s, err := loadContent(source, kind, data, opts)
	if err != nil {
		return nil, errors.Join(err, data.Close())
	}
	return s, nil
}

func loadContent(source Source, kind Kind, data *datablock.File, opts loadOptions) (*snapshot, error) {
	located, err := records.LoadEndOfCentralDirectory(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	eocd := located.Record
	locator, err := records.FindZip64Locator(data, located.Pos)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	zip64, err := records.LoadZip64EndOfCentralDirectory(data, locator)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	dir, err := directoryOf(eocd, zip64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	start := dir.startOfZipContent(data)
	if start < 0 {
		return nil, fmt.Errorf("%w: %s: central directory offset points before the start of the data", ErrFormat, source)
	}
	data, err = data.SliceFrom(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFormat, source, err)
	}

	cdPos := dir.offset
	numberOfEntries := dir.entries
	opts.log().Debug("loading zip content", "source", source.String(), "kind", kind.String(), "entries", numberOfEntries)
	b := newIndexBuilder(source, data, cdPos, 0, int(numberOfEntries))
	hasJarSignatureFile := false
	pos := cdPos
	for range numberOfEntries {
		record, err := records.LoadCentralDirectoryFileHeader(data, pos)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		if !hasJarSignatureFile {
			hasJarSignatureFile, err = isSignatureFile(data, record, pos)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", source, err)
			}
		}
		if err := b.add(record, pos); err != nil {
			return nil, err
		}
		pos += record.Size()
	}
	commentPos := located.Pos + records.EndOfCentralDirectorySize
	return b.finish(kind, commentPos, int64(eocd.CommentLength), hasJarSignatureFile, opts)
}

func isSignatureFile(data *datablock.File, record records.CentralDirectoryFileHeader, pos int64) (bool, error) {
	if int(record.FileNameLength) <= len(signatureSuffix) {
		return false, nil
	}
	name, err := zipstring.ReadName(data, pos+records.CentralDirectoryHeaderSize, int(record.FileNameLength))
	if err != nil {
		return false, err
	}
	return zipstring.StartsWith(name, metaInf) >= 0 && bytes.HasSuffix(name, signatureSuffix), nil
}

// centralDirectory is where the end records place the central directory.
type centralDirectory struct {
	offset     int64
	size       int64
	entries    int32
	endRecords int64
}

// directoryOf reads the central directory location from the end records,
// preferring the ZIP64 record when present.
func directoryOf(eocd records.EndOfCentralDirectory, zip64 *records.Zip64EndOfCentralDirectory) (centralDirectory, error) {
	dir := centralDirectory{
		offset:     int64(eocd.CentralDirectoryOffset),
		size:       int64(eocd.CentralDirectorySize),
		entries:    int32(eocd.TotalEntries),
		endRecords: eocd.Size(),
	}
	if zip64 == nil {
		return dir, nil
	}
	var err error
	if dir.offset, err = sizing.ToInt64(zip64.CentralDirectoryOffset, ErrFormat); err != nil {
		return centralDirectory{}, fmt.Errorf("%w: zip64 central directory offset %d", err, zip64.CentralDirectoryOffset)
	}
	if dir.size, err = sizing.ToInt64(zip64.CentralDirectorySize, ErrFormat); err != nil {
		return centralDirectory{}, fmt.Errorf("%w: zip64 central directory size %d", err, zip64.CentralDirectorySize)
	}
	if dir.entries, err = sizing.ToInt32(zip64.TotalEntries, ErrFormat); err != nil {
		return centralDirectory{}, fmt.Errorf("%w: too many zip entries (%d)", err, zip64.TotalEntries)
	}
	dir.endRecords += records.Zip64LocatorSize + zip64.Size
	return dir, nil
}

// startOfZipContent returns the number of bytes prefixed to the zip, such as
// a launch script, computed from where the central directory actually is
// versus where the end record says it is.
func (d centralDirectory) startOfZipContent(data datablock.DataBlock) int64 {
	actualOffset := data.Size() - (d.endRecords + d.size)
	return actualOffset - d.offset
}

func loadNestedZip(source Source, entry *Entry, opts loadOptions) (*snapshot, error) {
	if entry.CompressionMethod() != Stored {
		return nil, fmt.Errorf("%w: nested entry '%s' in container zip '%s' must not be compressed",
			ErrUnsupported, source.NestedEntryName, source.Path)
	}
	opts.log().Debug("loading nested zip entry", "entry", source.NestedEntryName, "path", source.Path)
	content, err := entry.contentBlock()
	if err != nil {
		return nil, err
	}
	return openAndLoad(source, KindNestedZip, content, opts)
}

func loadNestedDirectory(source Source, parent *snapshot, dir *Entry, opts loadOptions) (*snapshot, error) {
	opts.log().Debug("loading nested directory entry", "entry", source.NestedEntryName, "path", source.Path)
	if !strings.HasSuffix(source.NestedEntryName, "/") {
		return nil, fmt.Errorf("%w: nested entry name must end with '/'", ErrInvalidArgument)
	}
	dirName := dir.Name()
	if err := parent.data.Open(); err != nil {
		return nil, err
	}
	s, err := collectDirectory(source, parent, dir, dirName, opts)
	if err != nil {
		return nil, errors.Join(err, parent.data.Close())
	}
	return s, nil
}

func collectDirectory(source Source, parent *snapshot, dir *Entry, dirName string, opts loadOptions) (*snapshot, error) {
	b := newIndexBuilder(source, parent.data, parent.centralDirectoryPos, len(dirName), parent.size())
	for cursor := range parent.size() {
		lookupIndex := parent.lookupIndexes[cursor]
		if lookupIndex == dir.LookupIndex() {
			continue
		}
		pos := parent.centralRecordPos(lookupIndex)
		record, err := records.LoadCentralDirectoryFileHeader(parent.data, pos)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		name, err := zipstring.ReadName(parent.data, pos+records.CentralDirectoryHeaderSize, int(record.FileNameLength))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		if zipstring.StartsWith(name, dirName) != -1 {
			if err := b.add(record, pos); err != nil {
				return nil, err
			}
		}
	}
	return b.finish(KindNestedDirectory, parent.commentPos, parent.commentLength, parent.hasJarSignatureFile, opts)
}
