package records

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/ziperr"
)

const (
	// Zip64LocatorSize is the fixed size of the ZIP64 end of central directory locator.
	Zip64LocatorSize = 20
	// Zip64EndOfCentralDirectoryMinSize is the fixed part of the ZIP64 end of central directory record.
	Zip64EndOfCentralDirectoryMinSize = 56
)

// Zip64Locator points at the ZIP64 end of central directory record.
type Zip64Locator struct {
	Pos            int64
	DiskWithRecord uint32
	RecordOffset   uint64
	TotalDisks     uint32
}

// FindZip64Locator returns the locator immediately preceding the end of
// central directory record at eocdPos, or nil if there is none.
func FindZip64Locator(b datablock.DataBlock, eocdPos int64) (*Zip64Locator, error) {
	pos := eocdPos - Zip64LocatorSize
	if pos < 0 {
		return nil, nil //nolint:nilnil // absence is not an error
	}
	buf := make([]byte, Zip64LocatorSize)
	if err := datablock.ReadFully(b, buf, pos); err != nil {
		return nil, fmt.Errorf("%w: reading zip64 locator at position %d: %w", ziperr.ErrFormat, pos, err)
	}
	if binary.LittleEndian.Uint32(buf) != Zip64EndOfCentralDirLocatorSignature {
		return nil, nil //nolint:nilnil // absence is not an error
	}
	return &Zip64Locator{
		Pos:            pos,
		DiskWithRecord: binary.LittleEndian.Uint32(buf[4:8]),
		RecordOffset:   binary.LittleEndian.Uint64(buf[8:16]),
		TotalDisks:     binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

// Zip64EndOfCentralDirectory is the ZIP64 variant of the end of central
// directory record.
type Zip64EndOfCentralDirectory struct {
	// Size is the number of bytes between the record and its locator.
	Size                            int64
	SizeOfRecord                    uint64
	VersionMadeBy                   uint16
	VersionNeededToExtract          uint16
	NumberOfThisDisk                uint32
	DiskWhereCentralDirectoryStarts uint32
	EntriesOnThisDisk               uint64
	TotalEntries                    uint64
	CentralDirectorySize            uint64
	CentralDirectoryOffset          uint64
}

// LoadZip64EndOfCentralDirectory loads the record referenced by locator.
// A nil locator yields a nil record.
func LoadZip64EndOfCentralDirectory(b datablock.DataBlock, locator *Zip64Locator) (*Zip64EndOfCentralDirectory, error) {
	if locator == nil {
		return nil, nil //nolint:nilnil // absence is not an error
	}
	size := locator.Pos - int64(locator.RecordOffset) //nolint:gosec // validated by the read below
	pos := locator.Pos - size
	buf := make([]byte, Zip64EndOfCentralDirectoryMinSize)
	if pos < 0 {
		return nil, zip64NotFound(pos)
	}
	if err := datablock.ReadFully(b, buf, pos); err != nil {
		return nil, fmt.Errorf("%w: reading zip64 end of central directory at position %d: %w", ziperr.ErrFormat, pos, err)
	}
	if binary.LittleEndian.Uint32(buf) != Zip64EndOfCentralDirSignature {
		return nil, zip64NotFound(pos)
	}
	return &Zip64EndOfCentralDirectory{
		Size:                            size,
		SizeOfRecord:                    binary.LittleEndian.Uint64(buf[4:12]),
		VersionMadeBy:                   binary.LittleEndian.Uint16(buf[12:14]),
		VersionNeededToExtract:          binary.LittleEndian.Uint16(buf[14:16]),
		NumberOfThisDisk:                binary.LittleEndian.Uint32(buf[16:20]),
		DiskWhereCentralDirectoryStarts: binary.LittleEndian.Uint32(buf[20:24]),
		EntriesOnThisDisk:               binary.LittleEndian.Uint64(buf[24:32]),
		TotalEntries:                    binary.LittleEndian.Uint64(buf[32:40]),
		CentralDirectorySize:            binary.LittleEndian.Uint64(buf[40:48]),
		CentralDirectoryOffset:          binary.LittleEndian.Uint64(buf[48:56]),
	}, nil
}

func zip64NotFound(pos int64) error {
	return fmt.Errorf("%w: zip64 'End Of Central Directory Record' not found at position %d; "+
		"zip file is corrupt or includes prefixed bytes which are not supported with zip64 files",
		ziperr.ErrFormat, pos)
}
