package records

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/ziperr"
)

// EndOfCentralDirectorySize is the fixed size of the record before its comment.
const EndOfCentralDirectorySize = 22

const (
	eocdScanBuffer  = 256
	eocdMaxScanSize = EndOfCentralDirectorySize + 0xFFFF
)

// EndOfCentralDirectory is the record that terminates every zip file.
type EndOfCentralDirectory struct {
	NumberOfThisDisk                uint16
	DiskWhereCentralDirectoryStarts uint16
	EntriesOnThisDisk               uint16
	TotalEntries                    uint16
	CentralDirectorySize            uint32
	CentralDirectoryOffset          uint32
	CommentLength                   uint16
}

// NewEndOfCentralDirectory returns a single-disk record describing count
// entries in a central directory of cdSize bytes starting at cdOffset.
func NewEndOfCentralDirectory(count uint16, cdSize, cdOffset uint32) EndOfCentralDirectory {
	return EndOfCentralDirectory{
		EntriesOnThisDisk:      count,
		TotalEntries:           count,
		CentralDirectorySize:   cdSize,
		CentralDirectoryOffset: cdOffset,
	}
}

// Size returns the record size including the comment.
func (r EndOfCentralDirectory) Size() int64 {
	return EndOfCentralDirectorySize + int64(r.CommentLength)
}

// Bytes encodes the record without its comment.
func (r EndOfCentralDirectory) Bytes() []byte {
	buf := make([]byte, EndOfCentralDirectorySize)
	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], r.NumberOfThisDisk)
	binary.LittleEndian.PutUint16(buf[6:8], r.DiskWhereCentralDirectoryStarts)
	binary.LittleEndian.PutUint16(buf[8:10], r.EntriesOnThisDisk)
	binary.LittleEndian.PutUint16(buf[10:12], r.TotalEntries)
	binary.LittleEndian.PutUint32(buf[12:16], r.CentralDirectorySize)
	binary.LittleEndian.PutUint32(buf[16:20], r.CentralDirectoryOffset)
	binary.LittleEndian.PutUint16(buf[20:22], r.CommentLength)
	return buf
}

// LocatedEndOfCentralDirectory is an EndOfCentralDirectory and the position it was found at.
type LocatedEndOfCentralDirectory struct {
	Pos    int64
	Record EndOfCentralDirectory
}

// LoadEndOfCentralDirectory scans b backwards for the end of central directory record.
//
// The scan reads 256-byte windows from the end of the block, overlapping
// consecutive windows so a record straddling two windows is still found. It
// gives up once more than 65,557 bytes (the record plus the largest possible
// comment) have been scanned.
func LoadEndOfCentralDirectory(b datablock.DataBlock) (LocatedEndOfCentralDirectory, error) {
	pos, err := locateEndOfCentralDirectory(b)
	if err != nil {
		return LocatedEndOfCentralDirectory{}, err
	}
	buf, err := readRecord(b, pos, EndOfCentralDirectorySize, EndOfCentralDirSignature, "End Of Central Directory Record")
	if err != nil {
		return LocatedEndOfCentralDirectory{}, err
	}
	return LocatedEndOfCentralDirectory{
		Pos: pos,
		Record: EndOfCentralDirectory{
			NumberOfThisDisk:                binary.LittleEndian.Uint16(buf[4:6]),
			DiskWhereCentralDirectoryStarts: binary.LittleEndian.Uint16(buf[6:8]),
			EntriesOnThisDisk:               binary.LittleEndian.Uint16(buf[8:10]),
			TotalEntries:                    binary.LittleEndian.Uint16(buf[10:12]),
			CentralDirectorySize:            binary.LittleEndian.Uint32(buf[12:16]),
			CentralDirectoryOffset:          binary.LittleEndian.Uint32(buf[16:20]),
			CommentLength:                   binary.LittleEndian.Uint16(buf[20:22]),
		},
	}, nil
}

func locateEndOfCentralDirectory(b datablock.DataBlock) (int64, error) {
	buf := make([]byte, eocdScanBuffer)
	size := b.Size()
	endPos := size
	for endPos > 0 {
		totalRead := size - endPos
		if totalRead > eocdMaxScanSize {
			return 0, fmt.Errorf("%w: zip 'End Of Central Directory Record' not found after reading %d bytes",
				ziperr.ErrFormat, totalRead)
		}
		startPos := endPos - eocdScanBuffer
		window := buf
		if startPos < 0 {
			window = buf[:eocdScanBuffer+startPos]
			startPos = 0
		}
		if err := datablock.ReadFully(b, window, startPos); err != nil {
			return 0, fmt.Errorf("%w: scanning for end of central directory: %w", ziperr.ErrFormat, err)
		}
		if off := findSignature(window, EndOfCentralDirSignature); off >= 0 {
			return startPos + int64(off), nil
		}
		endPos = endPos - eocdScanBuffer + EndOfCentralDirectorySize
	}
	return 0, fmt.Errorf("%w: zip 'End Of Central Directory Record' not found after reading entire data block",
		ziperr.ErrFormat)
}

// findSignature returns the last offset of sig in buf, or -1.
func findSignature(buf []byte, sig uint32) int {
	for i := len(buf) - 4; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) == sig {
			return i
		}
	}
	return -1
}
