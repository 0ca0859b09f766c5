package nestedjar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meigma/nestedjar/datablock"
	jarhttp "github.com/meigma/nestedjar/datablock/http"
	"github.com/meigma/nestedjar/internal/cleaner"
	"github.com/meigma/nestedjar/jar"
	"github.com/meigma/nestedjar/jarurl"
	"github.com/meigma/nestedjar/nested"
	"github.com/meigma/nestedjar/zipcontent"
)

const nestedPrefix = nested.Scheme + ":"

// Loader opens jars, nested locations and jar URLs over one shared cache of
// parsed archives.
//
// A Loader is safe for concurrent use. Files and connections it returned
// keep working after Close until they are closed themselves.
type Loader struct {
	logger        *slog.Logger
	cleaner       *cleaner.Cleaner
	tracker       datablock.Tracker
	version       int
	inflaterLimit int
	infoCacheSize int
	resolverSize  int
	httpOpts      []jarhttp.Option

	cache    *zipcontent.Cache
	resolver *nested.Resolver
}

// NewLoader creates a Loader with the given options.
func NewLoader(opts ...Option) (*Loader, error) {
	l := &Loader{
		version:       jar.BaseVersion,
		infoCacheSize: zipcontent.DefaultInfoCacheSize,
		resolverSize:  nested.DefaultResolverSize,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.cache = zipcontent.NewCache(
		zipcontent.WithLogger(l.logger),
		zipcontent.WithTracker(l.tracker),
		zipcontent.WithInfoCacheSize(l.infoCacheSize),
	)
	l.resolver = nested.NewResolver(l.resolverSize)
	return l, nil
}

func (l *Loader) log() *slog.Logger {
	if l.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.logger
}

// jarOptions returns the options shared by every jar the loader opens. The
// version is left out so that jar URLs can choose it per fragment.
func (l *Loader) jarOptions() []jar.Option {
	opts := []jar.Option{
		jar.WithCleaner(l.cleaner),
		jar.WithLogger(l.logger),
	}
	if l.inflaterLimit > 0 {
		opts = append(opts, jar.WithInflaterLimit(l.inflaterLimit))
	}
	return opts
}

// Cache returns the cache of parsed archives.
func (l *Loader) Cache() *zipcontent.Cache {
	return l.cache
}

// Resolver returns the resolver used to parse locations.
func (l *Loader) Resolver() *nested.Resolver {
	return l.resolver
}

// Open opens the jar at location, either a plain path or a nested location
// of the form "path/!entryName". A "nested:" prefix is accepted too.
func (l *Loader) Open(location string) (*jar.File, error) {
	loc, err := l.resolve(location)
	if err != nil {
		return nil, err
	}
	l.log().Debug("opening jar", "location", loc.String())
	return l.OpenEntry(loc.Path, loc.EntryName)
}

// OpenEntry opens the jar at path, or the jar stored at entryName inside
// it when entryName is not empty.
func (l *Loader) OpenEntry(path, entryName string) (*jar.File, error) {
	return jar.Open(l.cache, path, entryName, append(l.jarOptions(), jar.WithVersion(l.version))...)
}

func (l *Loader) resolve(location string) (nested.Location, error) {
	if len(location) > len(nestedPrefix) && strings.EqualFold(location[:len(nestedPrefix)], nestedPrefix) {
		return l.resolver.FromURL(location)
	}
	return l.resolver.Parse(location)
}

// OpenNested creates a connection streaming the raw zip bytes of a
// "nested:" URL.
func (l *Loader) OpenNested(rawURL string) (*nested.Connection, error) {
	loc, err := l.resolver.FromURL(rawURL)
	if err != nil {
		return nil, err
	}
	return nested.OpenLocation(l.cache, loc, nested.WithCleaner(l.cleaner), nested.WithLogger(l.logger))
}

// OpenURL creates a connection for a "jar:" URL. Only URLs with a
// "#runtime" fragment see multi-release entries for the configured
// version; others see the base entries.
func (l *Loader) OpenURL(rawURL string) (*jarurl.Connection, error) {
	return jarurl.Open(l.cache, rawURL,
		jarurl.WithResolver(l.resolver),
		jarurl.WithJarOptions(l.jarOptions()...),
		jarurl.WithRuntimeVersion(l.version),
		jarurl.WithLogger(l.logger),
	)
}

// Resolve resolves spec against the jar URL context.
func (l *Loader) Resolve(context, spec string) (string, error) {
	return jarurl.Resolve(context, spec)
}

// OpenRemote parses a zip served over HTTP with range support. The
// returned content is not cached and must be closed.
func (l *Loader) OpenRemote(ctx context.Context, url string) (*zipcontent.Content, error) {
	src, err := jarhttp.NewSource(ctx, url, append([]jarhttp.Option{jarhttp.WithLogger(l.logger)}, l.httpOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("open remote %s: %w", url, err)
	}
	return zipcontent.Load(src.String(), src.Access(), src.Size(),
		zipcontent.WithLogger(l.logger),
		zipcontent.WithInfoCacheSize(l.infoCacheSize),
	)
}

// ClearCache forgets every cached location. Parsed archives stay shared
// until their holders close.
func (l *Loader) ClearCache() {
	l.resolver.Clear()
}

// Close stops sharing parsed archives. Files and connections already
// returned keep working until they are closed.
func (l *Loader) Close() error {
	l.resolver.Clear()
	return l.cache.Close()
}
