package zipcontent

import (
	"fmt"
	"reflect"
	"strconv"
	"sync"
)

type infoKey = reflect.Type

var (
	flightMu  sync.Mutex
	flightIDs = make(map[reflect.Type]string)
)

// flightKey returns a singleflight key unique to t. Type names are not
// unique: types declared in different packages or function scopes can
// print the same.
func flightKey(t reflect.Type) string {
	flightMu.Lock()
	defer flightMu.Unlock()
	id, ok := flightIDs[t]
	if !ok {
		id = strconv.Itoa(len(flightIDs))
		flightIDs[t] = id
	}
	return id
}

// GetInfo returns information of type T derived from c, computing it with fn
// on first use.
//
// Concurrent callers asking for the same type share one computation and all
// observe the same value. Values are kept in a bounded per-snapshot cache, so
// an evicted value is recomputed on the next call. A failed computation is
// not cached.
func GetInfo[T any](c *Content, fn func(*Content) (T, error)) (T, error) {
	var zero T
	if err := c.ensureOpen(); err != nil {
		return zero, err
	}
	s := c.s
	key := reflect.TypeFor[T]()
	if v, ok := s.info.Get(key); ok {
		return v.(T), nil //nolint:forcetypeassert // keyed by type
	}
	v, err, _ := s.infoGroup.Do(flightKey(key), func() (any, error) {
		if v, ok := s.info.Get(key); ok {
			return v, nil
		}
		s.log().Debug("computing zip info", "type", key.String(), "source", s.source.String())
		v, err := fn(c)
		if err != nil {
			return nil, err
		}
		if prev, ok, _ := s.info.PeekOrAdd(key, v); ok {
			return prev, nil
		}
		return v, nil
	})
	if err != nil {
		return zero, fmt.Errorf("%s: computing %s: %w", s.source, key, err)
	}
	return v.(T), nil //nolint:forcetypeassert // keyed by type
}
