package datablock

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"syscall"

	"github.com/meigma/nestedjar/internal/ziperr"
)

// BufferSize is the size of the read-ahead buffer held by an open FileAccess.
const BufferSize = 10240

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, BufferSize)
		return &buf
	},
}

// Access is the shared backing store of one or more File blocks.
//
// Open and Close are reference counted. Read follows DataBlock semantics and
// fails with ErrClosed when no reference is held.
type Access interface {
	Read(p []byte, pos int64) (int, error)
	Open() error
	Close() error
	String() string
}

// Tracker observes OS handles opened and closed by a FileAccess.
type Tracker interface {
	Opened(path string)
	Closed(path string)
}

// AccessOption configures a FileAccess.
type AccessOption func(*FileAccess)

// WithTracker registers a tracker notified about handle lifecycle.
func WithTracker(t Tracker) AccessOption {
	return func(a *FileAccess) {
		a.tracker = t
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) AccessOption {
	return func(a *FileAccess) {
		a.logger = logger
	}
}

// FileAccess is a reference counted read-only file handle with a read-ahead buffer.
//
// The OS handle and the buffer are acquired when the reference count goes from
// zero to one and released when it returns to zero. If a read on the primary
// handle fails because the handle was closed or interrupted underneath it, the
// read is served from a separate fallback handle and the primary handle is
// reopened on the next buffer fill.
type FileAccess struct {
	path    string
	size    int64
	tracker Tracker
	logger  *slog.Logger

	mu          sync.Mutex
	refs        int
	file        *os.File
	interrupted bool
	fallback    *os.File
	buf         *[]byte
	bufPos      int64
	bufLen      int
}

// NewFileAccess creates a FileAccess for the regular file at path.
// No handle is opened until Open is called.
func NewFileAccess(path string, opts ...AccessOption) (*FileAccess, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fmt.Errorf("%w: must be a regular file", ziperr.ErrInvalidArgument)}
	}
	a := &FileAccess{path: path, size: info.Size(), bufPos: -1}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *FileAccess) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Path returns the file path.
func (a *FileAccess) Path() string {
	return a.path
}

// Size returns the file size observed when the access was created.
func (a *FileAccess) Size() int64 {
	return a.size
}

// String returns the file path.
func (a *FileAccess) String() string {
	return a.path
}

// RefCount returns the current number of open references.
func (a *FileAccess) RefCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refs
}

// Open acquires a reference, opening the file on the first one.
func (a *FileAccess) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refs == 0 {
		a.log().Debug("opening file", "path", a.path)
		f, err := os.Open(a.path)
		if err != nil {
			return err
		}
		a.file = f
		a.buf = bufferPool.Get().(*[]byte) //nolint:errcheck,forcetypeassert // pool only holds *[]byte
		a.bufPos = -1
		a.bufLen = 0
		a.opened()
	}
	a.refs++
	a.log().Debug("reference count incremented", "path", a.path, "refs", a.refs)
	return nil
}

// Close releases a reference, closing the file when the last one is released.
// Closing with no references held is a no-op.
func (a *FileAccess) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refs == 0 {
		return nil
	}
	a.refs--
	a.log().Debug("reference count decremented", "path", a.path, "refs", a.refs)
	if a.refs > 0 {
		return nil
	}
	a.log().Debug("closing file", "path", a.path)
	if a.buf != nil {
		bufferPool.Put(a.buf)
		a.buf = nil
	}
	a.bufPos = -1
	a.bufLen = 0
	a.interrupted = false
	var errs []error
	if a.file != nil {
		if err := a.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
		a.file = nil
		a.closed()
	}
	if a.fallback != nil {
		if err := a.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
		a.fallback = nil
		a.closed()
	}
	return errors.Join(errs...)
}

// Read copies buffered bytes starting at pos into p, refilling the buffer on a miss.
func (a *FileAccess) Read(p []byte, pos int64) (int, error) {
	if pos < 0 {
		return 0, fmt.Errorf("%w: negative position %d", ziperr.ErrInvalidArgument, pos)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refs == 0 {
		return 0, fmt.Errorf("%s: %w", a.path, ziperr.ErrClosed)
	}
	if pos < a.bufPos || pos >= a.bufPos+int64(a.bufLen) {
		if err := a.fill(pos); err != nil {
			return 0, err
		}
	}
	if a.bufLen <= 0 {
		return 0, io.EOF
	}
	off := int(pos - a.bufPos)
	return copy(p, (*a.buf)[off:a.bufLen]), nil
}

func (a *FileAccess) fill(pos int64) error {
	if a.interrupted {
		if err := a.repair(); err != nil {
			return a.fillFromFallback(pos)
		}
	}
	n, err := a.file.ReadAt(*a.buf, pos)
	if err != nil && !errors.Is(err, io.EOF) {
		if !isInterrupted(err) {
			return err
		}
		a.log().Debug("primary handle interrupted, using fallback", "path", a.path, "error", err)
		a.interrupted = true
		return a.fillFromFallback(pos)
	}
	a.bufPos = pos
	a.bufLen = n
	return nil
}

func (a *FileAccess) fillFromFallback(pos int64) error {
	if a.fallback == nil {
		f, err := os.Open(a.path)
		if err != nil {
			return err
		}
		a.fallback = f
		a.opened()
	}
	n, err := a.fallback.ReadAt(*a.buf, pos)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	a.bufPos = pos
	a.bufLen = n
	return nil
}

func (a *FileAccess) repair() error {
	if a.file != nil {
		_ = a.file.Close() //nolint:errcheck // handle is already unusable
		a.closed()
		a.file = nil
	}
	f, err := os.Open(a.path)
	if err != nil {
		return err
	}
	a.file = f
	a.opened()
	a.interrupted = false
	return nil
}

func (a *FileAccess) opened() {
	if a.tracker != nil {
		a.tracker.Opened(a.path)
	}
}

func (a *FileAccess) closed() {
	if a.tracker != nil {
		a.tracker.Closed(a.path)
	}
}

// isInterrupted reports whether err means the handle was closed or the read
// was interrupted rather than the file being unreadable.
func isInterrupted(err error) bool {
	return errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EBADF)
}

var _ Access = (*FileAccess)(nil)
