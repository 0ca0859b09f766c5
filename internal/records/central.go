package records

import (
	"encoding/binary"
	"time"

	"github.com/meigma/nestedjar/datablock"
)

// CentralDirectoryHeaderSize is the fixed size of a central directory file
// header; the file name starts at this offset.
const CentralDirectoryHeaderSize = 46

// CentralDirectoryFileHeader describes one entry in the central directory.
type CentralDirectoryFileHeader struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FileNameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	OffsetToLocalHeader    uint32
}

// LoadCentralDirectoryFileHeader reads the header at pos.
func LoadCentralDirectoryFileHeader(b datablock.DataBlock, pos int64) (CentralDirectoryFileHeader, error) {
	buf, err := readRecord(b, pos, CentralDirectoryHeaderSize, CentralDirectorySignature, "Central Directory File Header Record")
	if err != nil {
		return CentralDirectoryFileHeader{}, err
	}
	return CentralDirectoryFileHeader{
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[4:6]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[6:8]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[8:10]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[12:14]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[14:16]),
		CRC32:                  binary.LittleEndian.Uint32(buf[16:20]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[20:24]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[24:28]),
		FileNameLength:         binary.LittleEndian.Uint16(buf[28:30]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[30:32]),
		FileCommentLength:      binary.LittleEndian.Uint16(buf[32:34]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[34:36]),
		InternalFileAttributes: binary.LittleEndian.Uint16(buf[36:38]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(buf[38:42]),
		OffsetToLocalHeader:    binary.LittleEndian.Uint32(buf[42:46]),
	}, nil
}

// Size returns the full record size including name, extra field and comment.
func (h CentralDirectoryFileHeader) Size() int64 {
	return CentralDirectoryHeaderSize + int64(h.FileNameLength) + int64(h.ExtraFieldLength) + int64(h.FileCommentLength)
}

// WithFileNameLength returns a copy with a different file name length.
func (h CentralDirectoryFileHeader) WithFileNameLength(n uint16) CentralDirectoryFileHeader {
	h.FileNameLength = n
	return h
}

// WithOffsetToLocalHeader returns a copy with a different local header offset.
func (h CentralDirectoryFileHeader) WithOffsetToLocalHeader(off uint32) CentralDirectoryFileHeader {
	h.OffsetToLocalHeader = off
	return h
}

// Bytes encodes the fixed part of the record.
func (h CentralDirectoryFileHeader) Bytes() []byte {
	buf := make([]byte, CentralDirectoryHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], h.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], h.FileNameLength)
	binary.LittleEndian.PutUint16(buf[30:32], h.ExtraFieldLength)
	binary.LittleEndian.PutUint16(buf[32:34], h.FileCommentLength)
	binary.LittleEndian.PutUint16(buf[34:36], h.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], h.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], h.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], h.OffsetToLocalHeader)
	return buf
}

// Modified decodes the MS-DOS date and time fields.
func (h CentralDirectoryFileHeader) Modified() time.Time {
	return DOSTime(h.LastModFileDate, h.LastModFileTime)
}

// HasDataDescriptor reports whether a data descriptor follows the entry content.
func (h CentralDirectoryFileHeader) HasDataDescriptor() bool {
	return HasDataDescriptor(h.GeneralPurposeBitFlag)
}

// ReadExtra reads the extra field of the header located at pos.
func (h CentralDirectoryFileHeader) ReadExtra(b datablock.DataBlock, pos int64) ([]byte, error) {
	if h.ExtraFieldLength == 0 {
		return nil, nil
	}
	buf := make([]byte, h.ExtraFieldLength)
	err := datablock.ReadFully(b, buf, pos+CentralDirectoryHeaderSize+int64(h.FileNameLength))
	return buf, err
}

// ReadComment reads the file comment of the header located at pos.
func (h CentralDirectoryFileHeader) ReadComment(b datablock.DataBlock, pos int64) ([]byte, error) {
	if h.FileCommentLength == 0 {
		return nil, nil
	}
	buf := make([]byte, h.FileCommentLength)
	err := datablock.ReadFully(b, buf,
		pos+CentralDirectoryHeaderSize+int64(h.FileNameLength)+int64(h.ExtraFieldLength))
	return buf, err
}

// DOSTime converts MS-DOS date and time fields to a UTC time.
// Out of range fields are clamped rather than normalized.
func DOSTime(date, tm uint16) time.Time {
	year := 1980 + int(date>>9&0x7f)
	month := clamp(int(date>>5&0x0f), 1, 12)
	day := clamp(int(date&0x1f), 1, 31)
	hour := clamp(int(tm>>11&0x1f), 0, 23)
	minute := clamp(int(tm>>5&0x3f), 0, 59)
	second := clamp(int(tm<<1&0x3e), 0, 59)
	if last := daysIn(time.Month(month), year); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
