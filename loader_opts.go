package nestedjar

import (
	"fmt"
	"log/slog"
	nethttp "net/http"

	"github.com/meigma/nestedjar/datablock"
	jarhttp "github.com/meigma/nestedjar/datablock/http"
	"github.com/meigma/nestedjar/internal/cleaner"
	"github.com/meigma/nestedjar/jar"
)

// Option configures a Loader.
type Option func(*Loader) error

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		l.logger = logger
		return nil
	}
}

// WithVersion sets the release used to resolve multi-release jars. It must
// be at least jar.BaseVersion.
func WithVersion(v int) Option {
	return func(l *Loader) error {
		if v < jar.BaseVersion {
			return fmt.Errorf("%w: version %d is below %d", ErrInvalidArgument, v, jar.BaseVersion)
		}
		l.version = v
		return nil
	}
}

// WithCleaner sets the cleaner that releases files and connections that are
// never closed.
func WithCleaner(cl *cleaner.Cleaner) Option {
	return func(l *Loader) error {
		l.cleaner = cl
		return nil
	}
}

// WithTracker registers a tracker for the OS handles the loader opens.
func WithTracker(t datablock.Tracker) Option {
	return func(l *Loader) error {
		l.tracker = t
		return nil
	}
}

// WithInflaterLimit bounds the decompressors each jar keeps for reuse.
func WithInflaterLimit(n int) Option {
	return func(l *Loader) error {
		if n < 0 {
			return fmt.Errorf("%w: negative inflater limit %d", ErrInvalidArgument, n)
		}
		l.inflaterLimit = n
		return nil
	}
}

// WithInfoCacheSize bounds the derived values kept per parsed archive.
func WithInfoCacheSize(n int) Option {
	return func(l *Loader) error {
		if n <= 0 {
			return fmt.Errorf("%w: info cache size must be positive, got %d", ErrInvalidArgument, n)
		}
		l.infoCacheSize = n
		return nil
	}
}

// WithResolverSize bounds the locations the loader remembers.
func WithResolverSize(n int) Option {
	return func(l *Loader) error {
		if n <= 0 {
			return fmt.Errorf("%w: resolver size must be positive, got %d", ErrInvalidArgument, n)
		}
		l.resolverSize = n
		return nil
	}
}

// WithHTTPClient sets the client used by OpenRemote.
func WithHTTPClient(client *nethttp.Client) Option {
	return func(l *Loader) error {
		l.httpOpts = append(l.httpOpts, jarhttp.WithClient(client))
		return nil
	}
}

// WithHTTPOptions adds options for the range reader used by OpenRemote.
func WithHTTPOptions(opts ...jarhttp.Option) Option {
	return func(l *Loader) error {
		l.httpOpts = append(l.httpOpts, opts...)
		return nil
	}
}
