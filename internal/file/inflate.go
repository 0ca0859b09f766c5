package file

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// DefaultInflaterLimit bounds the number of idle decompressors kept by a pool.
const DefaultInflaterLimit = 20

// InflaterPool keeps a bounded number of deflate decompressors for reuse.
// After Close, released decompressors are closed instead of kept.
type InflaterPool struct {
	mu     sync.Mutex
	idle   []io.ReadCloser
	limit  int
	closed bool
}

// NewInflaterPool creates a pool keeping at most limit idle decompressors.
func NewInflaterPool(limit int) *InflaterPool {
	if limit < 0 {
		limit = 0
	}
	return &InflaterPool{limit: limit}
}

// Get returns a decompressor reading raw deflate data from r.
// The caller must call the returned release function exactly once when done.
func (p *InflaterPool) Get(r io.Reader) (io.ReadCloser, func(), error) {
	if p == nil {
		dec := flate.NewReader(r)
		return dec, func() { _ = dec.Close() }, nil //nolint:errcheck // decompressor close never fails
	}
	if dec := p.take(); dec != nil {
		resetter, ok := dec.(flate.Resetter)
		if ok && resetter.Reset(r, nil) == nil {
			return dec, func() { p.put(dec) }, nil
		}
		_ = dec.Close() //nolint:errcheck // discarding a broken decompressor
	}
	dec := flate.NewReader(r)
	return dec, func() { p.put(dec) }, nil
}

func (p *InflaterPool) take() io.ReadCloser {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	dec := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return dec
}

// put resets dec onto an empty source before keeping it, so an idle
// decompressor holds no reference to the entry it last read.
func (p *InflaterPool) put(dec io.ReadCloser) {
	resetter, ok := dec.(flate.Resetter)
	if !ok || resetter.Reset(bytes.NewReader(nil), nil) != nil {
		_ = dec.Close() //nolint:errcheck // decompressor close never fails
		return
	}
	p.mu.Lock()
	if !p.closed && len(p.idle) < p.limit {
		p.idle = append(p.idle, dec)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	_ = dec.Close() //nolint:errcheck // decompressor close never fails
}

// Idle returns the number of decompressors waiting for reuse.
func (p *InflaterPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close releases every idle decompressor.
func (p *InflaterPool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for _, dec := range idle {
		errs = append(errs, dec.Close())
	}
	return errors.Join(errs...)
}
