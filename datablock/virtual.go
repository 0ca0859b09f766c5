package datablock

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/meigma/nestedjar/internal/ziperr"
)

// Virtual is a DataBlock assembled from an ordered list of parts.
type Virtual struct {
	parts   []DataBlock
	offsets []int64
	size    int64
	last    atomic.Int32
}

// NewVirtual creates a block that reads parts back to back.
func NewVirtual(parts ...DataBlock) *Virtual {
	v := &Virtual{
		parts:   parts,
		offsets: make([]int64, len(parts)),
	}
	for i, p := range parts {
		v.offsets[i] = v.size
		v.size += p.Size()
	}
	return v
}

// Size returns the sum of all part sizes.
func (v *Virtual) Size() int64 {
	return v.size
}

// Parts returns the number of parts.
func (v *Virtual) Parts() int {
	return len(v.parts)
}

// Read fills p from the parts covering [pos, pos+len(p)).
func (v *Virtual) Read(p []byte, pos int64) (int, error) {
	if pos < 0 {
		return 0, fmt.Errorf("%w: negative position %d", ziperr.ErrInvalidArgument, pos)
	}
	if pos >= v.size {
		return 0, io.EOF
	}
	i := v.find(pos)
	total := 0
	for i < len(v.parts) && total < len(p) {
		part := v.parts[i]
		off := pos - v.offsets[i]
		if off >= part.Size() {
			i++
			continue
		}
		want := p[total:]
		if avail := part.Size() - off; int64(len(want)) > avail {
			want = want[:avail]
		}
		if err := ReadFully(part, want, off); err != nil {
			return total, err
		}
		v.last.Store(int32(i)) //nolint:gosec // part count is bounded by entry count
		total += len(want)
		pos += int64(len(want))
		i++
	}
	return total, nil
}

func (v *Virtual) find(pos int64) int {
	if hint := int(v.last.Load()); hint < len(v.parts) && v.covers(hint, pos) {
		return hint
	}
	if next := int(v.last.Load()) + 1; next < len(v.parts) && v.covers(next, pos) {
		return next
	}
	return sort.Search(len(v.offsets), func(i int) bool {
		return v.offsets[i]+v.parts[i].Size() > pos
	})
}

func (v *Virtual) covers(i int, pos int64) bool {
	return pos >= v.offsets[i] && pos < v.offsets[i]+v.parts[i].Size()
}

// Handle is a DataBlock owning one reference that is released on Close.
type Handle struct {
	DataBlock

	once    sync.Once
	release func() error
	err     error
}

// Hold wraps b so that Close calls release exactly once.
func Hold(b DataBlock, release func() error) *Handle {
	return &Handle{DataBlock: b, release: release}
}

// Close releases the held reference. Subsequent calls are no-ops.
func (h *Handle) Close() error {
	h.once.Do(func() {
		if h.release != nil {
			h.err = h.release()
		}
	})
	return h.err
}

var (
	_ DataBlock = (*Virtual)(nil)
	_ io.Closer = (*Handle)(nil)
)
