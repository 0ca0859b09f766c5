package records

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/ziperr"
)

const dataDescriptorFlag = 0x08

// HasDataDescriptor reports whether bit 3 of the general purpose flag is set.
func HasDataDescriptor(flag uint16) bool {
	return flag&dataDescriptorFlag != 0
}

// DataDescriptor trails entry content written in streaming mode.
// The leading signature is optional.
type DataDescriptor struct {
	IncludeSignature bool
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
}

// LoadDataDescriptor reads the descriptor at pos.
func LoadDataDescriptor(b datablock.DataBlock, pos int64) (DataDescriptor, error) {
	buf := make([]byte, 16)
	if err := datablock.ReadFully(b, buf[:4], pos); err != nil {
		return DataDescriptor{}, fmt.Errorf("%w: reading data descriptor at position %d: %w", ziperr.ErrFormat, pos, err)
	}
	hasSig := binary.LittleEndian.Uint32(buf) == DataDescriptorSignature
	n := 8
	if hasSig {
		n = 12
	}
	if err := datablock.ReadFully(b, buf[4:4+n], pos+4); err != nil {
		return DataDescriptor{}, fmt.Errorf("%w: reading data descriptor at position %d: %w", ziperr.ErrFormat, pos, err)
	}
	d := DataDescriptor{IncludeSignature: hasSig}
	fields := buf
	if hasSig {
		fields = buf[4:]
	}
	d.CRC32 = binary.LittleEndian.Uint32(fields[0:4])
	d.CompressedSize = binary.LittleEndian.Uint32(fields[4:8])
	d.UncompressedSize = binary.LittleEndian.Uint32(fields[8:12])
	return d, nil
}

// Size returns 16 with a signature and 12 without.
func (d DataDescriptor) Size() int64 {
	if d.IncludeSignature {
		return 16
	}
	return 12
}

// Bytes encodes the descriptor.
func (d DataDescriptor) Bytes() []byte {
	buf := make([]byte, d.Size())
	fields := buf
	if d.IncludeSignature {
		binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
		fields = buf[4:]
	}
	binary.LittleEndian.PutUint32(fields[0:4], d.CRC32)
	binary.LittleEndian.PutUint32(fields[4:8], d.CompressedSize)
	binary.LittleEndian.PutUint32(fields[8:12], d.UncompressedSize)
	return buf
}
