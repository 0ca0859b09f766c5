package nested

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestedjar/internal/cleaner"
	"github.com/meigma/nestedjar/testutil"
	"github.com/meigma/nestedjar/zipcontent"
)

func newCache(t *testing.T) *zipcontent.Cache {
	t.Helper()
	cache := zipcontent.NewCache()
	t.Cleanup(func() {
		assert.NoError(t, cache.Close())
	})
	return cache
}

func nestedFixture(t *testing.T) (path string, inner []byte) {
	t.Helper()
	inner = testutil.Zip(t,
		testutil.Manifest("Implementation-Title: inner"),
		testutil.Stored("inner.txt", "from inside"),
	)
	path = testutil.WriteZip(t,
		testutil.Stored("outer.txt", "outside"),
		testutil.Nested("lib/inner.jar", inner),
		testutil.Dir("classes/"),
		testutil.Stored("classes/a.txt", "a"),
		testutil.Deflated("classes/pkg/b.txt", "b b b"),
	)
	return path, inner
}

func TestConnection_NestedJar(t *testing.T) {
	t.Parallel()

	path, inner := nestedFixture(t)
	cache := newCache(t)

	c, err := Open(cache, Location{Path: path, EntryName: "lib/inner.jar"}.URL())
	require.NoError(t, err)
	assert.Equal(t, "lib/inner.jar", c.Location().EntryName)
	assert.Zero(t, cache.Len(), "opening does not connect")

	assert.Equal(t, int64(len(inner)), c.ContentLength())
	assert.Equal(t, "x-java/jar", c.ContentType())
	assert.Equal(t, 1, cache.Len())

	r, err := c.Reader()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, inner, data)

	require.NoError(t, r.Close())
	assert.Zero(t, cache.Len())

	_, err = c.Reader()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, c.Connect(), ErrClosed)
	assert.Equal(t, int64(-1), c.ContentLength())
	require.NoError(t, c.Close())
}

func TestConnection_NestedDirectory(t *testing.T) {
	t.Parallel()

	path, _ := nestedFixture(t)
	cache := newCache(t)

	c, err := OpenLocation(cache, Location{Path: path, EntryName: "classes/"})
	require.NoError(t, err)
	defer c.Close()

	r, err := c.Reader()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), c.ContentLength())

	zr := testutil.Reader(t, data)
	names := make([]string, 0, len(zr.File))
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	assert.Equal(t, []string{"a.txt", "pkg/b.txt"}, names)
}

func TestConnection_Container(t *testing.T) {
	t.Parallel()

	path, _ := nestedFixture(t)
	want, err := os.ReadFile(path)
	require.NoError(t, err)

	c, err := OpenLocation(newCache(t), Location{Path: path})
	require.NoError(t, err)
	defer c.Close()

	r, err := c.Reader()
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConnection_Header(t *testing.T) {
	t.Parallel()

	path, inner := nestedFixture(t)
	modified := time.Date(2023, time.June, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, modified, modified))

	c, err := OpenLocation(newCache(t), Location{Path: path, EntryName: "lib/inner.jar"})
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.LastModified().Equal(modified))

	h := c.Header()
	assert.Equal(t, strconv.Itoa(len(inner)), h.Get("Content-Length"))
	assert.Equal(t, modified.Format(http.TimeFormat), h.Get("Last-Modified"))

	// callers get their own copy
	h.Set("Content-Length", "0")
	assert.Equal(t, strconv.Itoa(len(inner)), c.Header().Get("Content-Length"))
}

func TestConnection_Errors(t *testing.T) {
	t.Parallel()

	path, _ := nestedFixture(t)
	cache := newCache(t)

	_, err := Open(nil, Location{Path: path}.URL())
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Open(cache, "file:"+path)
	require.ErrorIs(t, err, ErrInvalidArgument)

	c, err := OpenLocation(cache, Location{Path: path, EntryName: "lib/missing.jar"})
	require.NoError(t, err)
	require.ErrorIs(t, c.Connect(), ErrNotFound)
	assert.Equal(t, int64(-1), c.ContentLength())
	assert.Empty(t, c.Header())
	_, err = c.Reader()
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, c.Close())

	missing, err := OpenLocation(cache, Location{Path: path + ".missing"})
	require.NoError(t, err)
	require.Error(t, missing.Connect())
	assert.True(t, missing.LastModified().IsZero())
	require.NoError(t, missing.Close())

	assert.Zero(t, cache.Len())
}

func TestConnection_Cleaner(t *testing.T) {
	t.Parallel()

	var (
		mu         sync.Mutex
		registered []*cleaner.Cleanable
	)
	cl := cleaner.New(cleaner.WithTracker(func(_ any, c *cleaner.Cleanable) {
		mu.Lock()
		defer mu.Unlock()
		registered = append(registered, c)
	}))

	path, _ := nestedFixture(t)
	c, err := OpenLocation(newCache(t), Location{Path: path, EntryName: "lib/inner.jar"}, WithCleaner(cl))
	require.NoError(t, err)
	require.NoError(t, c.Connect())
	require.NoError(t, c.Connect())

	mu.Lock()
	require.Len(t, registered, 1)
	cleanup := registered[0]
	mu.Unlock()
	assert.False(t, cleanup.Ran())

	require.NoError(t, c.Close())
	assert.True(t, cleanup.Ran())
	require.NoError(t, c.Close())
}
