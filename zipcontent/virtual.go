package zipcontent

import (
	"fmt"
	"math"
	"reflect"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/records"
)

type virtualData struct {
	*datablock.Virtual
}

var typeOfVirtualData = reflect.TypeFor[virtualData]()

// virtualData returns the synthetic zip for a nested directory, building it
// on first use. The caller must hold a reference on s.data.
func (s *snapshot) virtualData() (*datablock.Virtual, error) {
	key := typeOfVirtualData
	if v, ok := s.info.Get(key); ok {
		return v.(virtualData).Virtual, nil //nolint:forcetypeassert // keyed by type
	}
	v, err, _ := s.infoGroup.Do(flightKey(key), func() (any, error) {
		if v, ok := s.info.Get(key); ok {
			return v, nil
		}
		built, err := s.buildVirtualData()
		if err != nil {
			return nil, err
		}
		prev, ok, _ := s.info.PeekOrAdd(key, virtualData{built})
		if ok {
			return prev, nil
		}
		return virtualData{built}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(virtualData).Virtual, nil //nolint:forcetypeassert // keyed by type
}

// buildVirtualData lays out every entry of the snapshot as a standalone zip:
// local headers with shortened names followed by their unchanged content and
// data descriptors, then the rewritten central directory and a new end record.
func (s *snapshot) buildVirtualData() (*datablock.Virtual, error) {
	var (
		parts        []datablock.DataBlock
		centralParts []datablock.DataBlock
		offset       int64
		centralSize  int64
		nameOffset   = int64(s.nameOffset)
		data         = s.data
		entryCount   = s.size()
	)
	if entryCount > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %s: too many entries for a virtual zip", ErrUnsupported, s.source)
	}
	for i := range entryCount {
		pos := s.centralRecordPos(s.lookupIndexes[i])
		central, err := records.LoadCentralDirectoryFileHeader(data, pos)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.source, err)
		}
		name, err := data.Slice(pos+records.CentralDirectoryHeaderSize+nameOffset, int64(central.FileNameLength)-nameOffset)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFormat, s.source, err)
		}
		localPos := int64(central.OffsetToLocalHeader)
		local, err := records.LoadLocalFileHeader(data, localPos)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.source, err)
		}
		content, err := data.Slice(localPos+local.Size(), int64(central.CompressedSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFormat, s.source, err)
		}
		var descriptor *records.DataDescriptor
		if central.HasDataDescriptor() {
			d, err := records.LoadDataDescriptor(data, localPos+local.Size()+content.Size())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", s.source, err)
			}
			descriptor = &d
		}

		if offset > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %s: virtual zip exceeds 4GiB", ErrUnsupported, s.source)
		}
		nameLength := uint16(name.Size()) //nolint:gosec // shorter than the original name
		newCentral := central.WithFileNameLength(nameLength).WithOffsetToLocalHeader(uint32(offset))
		centralParts = append(centralParts, datablock.Bytes(newCentral.Bytes()), name)
		if trailing := int64(central.ExtraFieldLength) + int64(central.FileCommentLength); trailing > 0 {
			extra, err := data.Slice(pos+central.Size()-trailing, trailing)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrFormat, s.source, err)
			}
			centralParts = append(centralParts, extra)
		}
		centralSize += newCentral.Size()

		newLocal := local.WithFileNameLength(nameLength)
		parts = append(parts, datablock.Bytes(newLocal.Bytes()), name)
		if extraLength := int64(local.ExtraFieldLength); extraLength > 0 {
			extra, err := data.Slice(localPos+local.Size()-extraLength, extraLength)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrFormat, s.source, err)
			}
			parts = append(parts, extra)
		}
		parts = append(parts, content)
		offset += newLocal.Size() + content.Size()
		if descriptor != nil {
			parts = append(parts, datablock.Bytes(descriptor.Bytes()))
			offset += descriptor.Size()
		}
	}
	if offset > math.MaxUint32 || centralSize > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %s: virtual zip exceeds 4GiB", ErrUnsupported, s.source)
	}
	parts = append(parts, centralParts...)
	eocd := records.NewEndOfCentralDirectory(uint16(entryCount), uint32(centralSize), uint32(offset)) //nolint:gosec // checked above
	parts = append(parts, datablock.Bytes(eocd.Bytes()))
	return datablock.NewVirtual(parts...), nil
}
