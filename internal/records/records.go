// Package records encodes and decodes the fixed-layout records of the zip
// file format.
//
// All multi-byte values are little-endian. Loaders validate the record
// signature and report a mismatch as ziperr.ErrFormat naming the position.
package records

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/ziperr"
)

// Record signatures.
const (
	CentralDirectorySignature            uint32 = 0x02014b50
	LocalFileHeaderSignature             uint32 = 0x04034b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
	DataDescriptorSignature              uint32 = 0x08074b50
)

// Zip64Marker is stored in 32-bit size and offset fields whose real value
// lives in a ZIP64 extended information extra field.
const Zip64Marker uint32 = 0xFFFFFFFF

// readRecord reads size bytes at pos and checks the leading signature.
func readRecord(b datablock.DataBlock, pos int64, size int, sig uint32, name string) ([]byte, error) {
	buf := make([]byte, size)
	if err := datablock.ReadFully(b, buf, pos); err != nil {
		return nil, fmt.Errorf("%w: reading %s at position %d: %w", ziperr.ErrFormat, name, pos, err)
	}
	if got := binary.LittleEndian.Uint32(buf); got != sig {
		return nil, fmt.Errorf("%w: zip '%s' not found at position %d", ziperr.ErrFormat, name, pos)
	}
	return buf, nil
}
