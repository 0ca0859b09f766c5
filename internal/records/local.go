package records

import (
	"encoding/binary"

	"github.com/meigma/nestedjar/datablock"
)

// LocalFileHeaderSize is the fixed size of a local file header.
const LocalFileHeaderSize = 30

// LocalFileHeader precedes the content of each entry.
type LocalFileHeader struct {
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
}

// LoadLocalFileHeader reads the header at pos.
func LoadLocalFileHeader(b datablock.DataBlock, pos int64) (LocalFileHeader, error) {
	buf, err := readRecord(b, pos, LocalFileHeaderSize, LocalFileHeaderSignature, "Local File Header Record")
	if err != nil {
		return LocalFileHeader{}, err
	}
	return LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[4:6]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[6:8]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:                  binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[22:26]),
		FileNameLength:         binary.LittleEndian.Uint16(buf[26:28]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[28:30]),
	}, nil
}

// Size returns the record size including name and extra field.
func (h LocalFileHeader) Size() int64 {
	return LocalFileHeaderSize + int64(h.FileNameLength) + int64(h.ExtraFieldLength)
}

// WithFileNameLength returns a copy with a different file name length.
func (h LocalFileHeader) WithFileNameLength(n uint16) LocalFileHeader {
	h.FileNameLength = n
	return h
}

// WithExtraFieldLength returns a copy with a different extra field length.
func (h LocalFileHeader) WithExtraFieldLength(n uint16) LocalFileHeader {
	h.ExtraFieldLength = n
	return h
}

// Bytes encodes the fixed part of the record.
func (h LocalFileHeader) Bytes() []byte {
	buf := make([]byte, LocalFileHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], h.FileNameLength)
	binary.LittleEndian.PutUint16(buf[28:30], h.ExtraFieldLength)
	return buf
}
