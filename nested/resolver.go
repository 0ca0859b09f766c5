package nested

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultResolverSize is the number of locations and paths a Resolver keeps.
const DefaultResolverSize = 256

// Resolver parses nested locations, remembering recent results.
//
// Parsed locations are cached by their raw string and converted paths by
// the raw path, so repeated resolution of the same location does no work.
// A Resolver is safe for concurrent use.
type Resolver struct {
	locations *lru.Cache[string, Location]
	paths     *lru.Cache[string, string]
}

// NewResolver creates a Resolver keeping up to size locations. A size of
// zero or less uses DefaultResolverSize.
func NewResolver(size int) *Resolver {
	if size <= 0 {
		size = DefaultResolverSize
	}
	r := &Resolver{}
	// lru.New only fails for a non-positive size.
	r.locations, _ = lru.New[string, Location](size)
	r.paths, _ = lru.New[string, string](size)
	return r
}

// Parse is Parse with caching.
func (r *Resolver) Parse(location string) (Location, error) {
	if loc, ok := r.locations.Get(location); ok {
		return loc, nil
	}
	loc, err := parse(location, r.path)
	if err != nil {
		return Location{}, err
	}
	r.locations.Add(location, loc)
	return loc, nil
}

// FromURL is FromURL with caching.
func (r *Resolver) FromURL(rawURL string) (Location, error) {
	rest, err := trimScheme(rawURL)
	if err != nil {
		return Location{}, err
	}
	decoded, err := DecodeURL(rest)
	if err != nil {
		return Location{}, err
	}
	return r.Parse(decoded)
}

func (r *Resolver) path(raw string) string {
	if p, ok := r.paths.Get(raw); ok {
		return p
	}
	p := localPath(raw)
	r.paths.Add(raw, p)
	return p
}

// Len returns the number of cached locations.
func (r *Resolver) Len() int {
	return r.locations.Len()
}

// Clear forgets every cached location and path.
func (r *Resolver) Clear() {
	r.locations.Purge()
	r.paths.Purge()
}
