package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/meigma/nestedjar/internal/ziperr"
	"github.com/meigma/nestedjar/jar"
)

// tempPattern names in-progress files. They live beside their target so the
// final rename never crosses a filesystem.
const tempPattern = ".nestedjar-*"

// FileSink extracts entries below a destination directory. An entry only
// appears at its final path once it has been fully written and verified.
type FileSink struct {
	root          string
	overwrite     bool
	preserveTimes bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite replaces files that already exist. Without it they are left
// alone and the entry is skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) { s.overwrite = overwrite }
}

// WithPreserveTimes stamps extracted files with the entry's modification time.
func WithPreserveTimes(preserve bool) FileSinkOption {
	return func(s *FileSink) { s.preserveTimes = preserve }
}

// NewFileSink returns a sink rooted at dir.
func NewFileSink(dir string, opts ...FileSinkOption) *FileSink {
	s := &FileSink{root: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileSink) target(entry *jar.Entry) (string, error) {
	rel := filepath.FromSlash(entry.Name())
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: entry name %q escapes the destination", ziperr.ErrInvalidArgument, entry.Name())
	}
	return filepath.Join(s.root, rel), nil
}

// ShouldProcess skips entries whose target exists unless overwriting.
// Unsafe names are accepted here so Writer can fail on them.
func (s *FileSink) ShouldProcess(entry *jar.Entry) bool {
	if s.overwrite {
		return true
	}
	path, err := s.target(entry)
	if err != nil {
		return true
	}
	_, err = os.Lstat(path)
	return errors.Is(err, fs.ErrNotExist)
}

// Writer opens a temporary file next to the entry's target.
func (s *FileSink) Writer(entry *jar.Entry) (Committer, error) {
	path, err := s.target(entry)
	if err != nil {
		return nil, err
	}
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", parent, err)
	}
	tmp, err := os.CreateTemp(parent, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("temp file for %s: %w", entry.Name(), err)
	}
	pending := &pendingFile{File: tmp, path: path}
	if s.preserveTimes {
		pending.mtime = entry.Modified()
	}
	return pending, nil
}

// pendingFile is a temporary file waiting to be moved to path.
type pendingFile struct {
	*os.File
	path  string
	mtime time.Time
}

func (p *pendingFile) Commit() error {
	err := p.File.Close()
	if err == nil && !p.mtime.IsZero() {
		err = os.Chtimes(p.Name(), p.mtime, p.mtime)
	}
	if err == nil {
		err = os.Rename(p.Name(), p.path)
	}
	if err != nil {
		_ = os.Remove(p.Name()) //nolint:errcheck // already failing
		return fmt.Errorf("commit %s: %w", p.path, err)
	}
	return nil
}

func (p *pendingFile) Discard() error {
	_ = p.File.Close() //nolint:errcheck // the file is being thrown away
	return os.Remove(p.Name())
}
