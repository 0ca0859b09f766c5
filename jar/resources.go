package jar

import (
	"errors"
	"sync"

	"github.com/meigma/nestedjar/internal/file"
	"github.com/meigma/nestedjar/zipcontent"
)

// resources holds everything a File must release. It never references the
// File itself so that it can be released by the cleaner once the File is
// unreachable.
type resources struct {
	content *zipcontent.Content
	// manifestContent is the containing jar when content is a nested
	// directory, since the manifest lives at the jar root.
	manifestContent *zipcontent.Content
	inflaters       *file.InflaterPool

	mu       sync.Mutex
	streams  map[*stream]struct{}
	released bool
	err      error
}

func openResources(cache *zipcontent.Cache, path, entryName string, inflaterLimit int) (*resources, error) {
	content, err := cache.OpenNested(path, entryName)
	if err != nil {
		return nil, err
	}
	r := &resources{
		content:   content,
		inflaters: file.NewInflaterPool(inflaterLimit),
		streams:   make(map[*stream]struct{}),
	}
	if content.Kind() == zipcontent.KindNestedDirectory {
		root, err := cache.Open(path)
		if err != nil {
			return nil, errors.Join(err, content.Close())
		}
		r.manifestContent = root
	}
	return r, nil
}

func (r *resources) forManifest() *zipcontent.Content {
	if r.manifestContent != nil {
		return r.manifestContent
	}
	return r.content
}

// track registers s so that it is closed on release. It reports false if
// the resources were already released.
func (r *resources) track(s *stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return false
	}
	r.streams[s] = struct{}{}
	s.owner = r
	return true
}

func (r *resources) untrack(s *stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, s)
}

// release closes the inflaters, every open stream and the zip content,
// in that order. It runs at most once.
func (r *resources) release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	streams := make([]*stream, 0, len(r.streams))
	for s := range r.streams {
		streams = append(streams, s)
	}
	clear(r.streams)
	r.mu.Unlock()

	errs := []error{r.inflaters.Close()}
	for _, s := range streams {
		errs = append(errs, s.close())
	}
	errs = append(errs, r.content.Close())
	if r.manifestContent != nil {
		errs = append(errs, r.manifestContent.Close())
	}

	r.mu.Lock()
	r.err = errors.Join(errs...)
	r.mu.Unlock()
}

func (r *resources) releaseErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *resources) openStreams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// stream is the releasable part of a reader. It is tracked by the owning
// resources and registered with the cleaner, so it must not reference the
// reader that wraps it.
type stream struct {
	once    sync.Once
	release func() error
	err     error
	owner   *resources
}

func newStream(release func() error) *stream {
	return &stream{release: release}
}

// close releases the stream once and stops tracking it.
func (s *stream) close() error {
	s.once.Do(func() {
		if s.release != nil {
			s.err = s.release()
		}
		if s.owner != nil {
			s.owner.untrack(s)
		}
	})
	return s.err
}
