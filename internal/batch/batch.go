// Package batch extracts entries of an open jar into a sink, verifying the
// CRC-32 of every entry on the way.
package batch

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/nestedjar/internal/file"
	"github.com/meigma/nestedjar/jar"
)

const (
	// parallelMinAvgBytes is the minimum average entry size to use parallel processing.
	// Below this threshold, serial processing is more efficient due to reduced overhead.
	parallelMinAvgBytes = 64 << 10 // 64KB

	copyBufferSize = 32 << 10
)

// Committer receives the content of one entry. Commit makes it visible,
// Discard drops it.
type Committer interface {
	io.Writer
	Commit() error
	Discard() error
}

// Sink is the destination of processed entries.
type Sink interface {
	// ShouldProcess reports whether the entry is wanted.
	ShouldProcess(entry *jar.Entry) bool
	// Writer returns the committer the entry's content is written to.
	Writer(entry *jar.Entry) (Committer, error)
}

// Processor copies entries from a jar into a sink.
type Processor struct {
	file    *jar.File
	workers int // 0 = auto, <0 = serial, >0 = fixed count
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers sets the number of workers for parallel processing.
// Values < 0 force serial processing. Zero uses automatic heuristics.
// Values > 0 force a specific worker count.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// NewProcessor creates a processor reading from f.
func NewProcessor(f *jar.File, opts ...ProcessorOption) *Processor {
	p := &Processor{file: f}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process writes every wanted file entry to the sink. Directory entries are
// skipped; the sink creates parents as needed.
//
// Processing stops on the first error or when ctx is cancelled.
func (p *Processor) Process(ctx context.Context, entries []*jar.Entry, sink Sink) error {
	toProcess := make([]*jar.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDirectory() || !sink.ShouldProcess(entry) {
			continue
		}
		toProcess = append(toProcess, entry)
	}
	if len(toProcess) == 0 {
		return nil
	}

	workers := p.workerCount(toProcess)
	if workers < 2 {
		buf := make([]byte, copyBufferSize)
		for _, entry := range toProcess {
			if err := p.processEntry(ctx, entry, sink, buf); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, entry := range toProcess {
		g.Go(func() error {
			return p.processEntry(ctx, entry, sink, make([]byte, copyBufferSize))
		})
	}
	return g.Wait()
}

// processEntry streams, verifies and commits a single entry.
func (p *Processor) processEntry(ctx context.Context, entry *jar.Entry, sink Sink, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := p.file.Open(entry)
	if err != nil {
		return fmt.Errorf("batch: %s: %w", entry.Name(), err)
	}
	defer r.Close()

	w, err := sink.Writer(entry)
	if err != nil {
		return fmt.Errorf("batch: %s: %w", entry.Name(), err)
	}
	src := file.NewCheckedReader(r, entry.Size(), entry.CRC32())
	if _, err := file.CopyWithContext(ctx, w, src, buf); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("batch: %s: %w", entry.Name(), err)
	}
	if err := w.Commit(); err != nil {
		return fmt.Errorf("batch: %s: commit: %w", entry.Name(), err)
	}
	return nil
}

// workerCount determines the number of workers to use for processing.
func (p *Processor) workerCount(entries []*jar.Entry) int {
	if len(entries) < 2 || p.workers < 0 {
		return 1
	}

	workers := p.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers < 2 {
			return 1
		}
		// Use size-based heuristic: only parallelize for larger entries
		var total int64
		for _, entry := range entries {
			total += entry.Size()
		}
		if total/int64(len(entries)) < parallelMinAvgBytes {
			return 1
		}
	}

	return min(workers, len(entries))
}
