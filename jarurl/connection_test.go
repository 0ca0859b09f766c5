package jarurl

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestedjar/jar"
	"github.com/meigma/nestedjar/nested"
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

func appJar(t *testing.T) (path string, inner []byte) {
	t.Helper()
	inner = testutil.Zip(t,
		testutil.Manifest("Multi-Release: true"),
		testutil.Stored("dep.txt", "base"),
		testutil.Stored("META-INF/versions/11/dep.txt", "eleven"),
		testutil.Stored("blob", "\x89PNG\r\n\x1a\n rest of image"),
		testutil.Stored("noext", "\x00\x01\x02"),
	)
	path = testutil.WriteZip(t,
		testutil.Manifest("Main-Class: com.example.App"),
		testutil.Deflated("com/example/App.class", "not really bytecode"),
		testutil.Stored("index.html", "<html></html>"),
		testutil.Nested("BOOT-INF/lib/dep.jar", inner),
	)
	return path, inner
}

func read(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return string(data)
}

func TestConnection_FileEntry(t *testing.T) {
	t.Parallel()

	path, _ := appJar(t)
	cache := newCache(t)
	u, err := Create(path, "", "com/example/App.class")
	require.NoError(t, err)

	c, err := Open(cache, u)
	require.NoError(t, err)
	assert.Equal(t, nested.Location{Path: path}, c.Location())
	assert.Zero(t, cache.Len(), "opening does not connect")

	assert.Equal(t, int64(len("not really bytecode")), c.ContentLength())
	e, err := c.Entry()
	require.NoError(t, err)
	assert.Equal(t, "com/example/App.class", e.Name())
	f, err := c.File()
	require.NoError(t, err)
	assert.Equal(t, path, f.Name())

	r, err := c.Reader()
	require.NoError(t, err)
	assert.Equal(t, "not really bytecode", read(t, r))

	// closing the reader closed the connection
	assert.Zero(t, cache.Len())
	require.ErrorIs(t, c.Connect(), ErrClosed)
	require.NoError(t, c.Close())
}

func TestConnection_NestedEntry(t *testing.T) {
	t.Parallel()

	path, _ := appJar(t)
	u, err := Create(path, "BOOT-INF/lib/dep.jar", "dep.txt")
	require.NoError(t, err)

	tests := []struct {
		url  string
		opts []Option
		want string
	}{
		{url: u, want: "base"},
		{url: u, opts: []Option{WithJarOptions(jar.WithVersion(11))}, want: "eleven"},
		{url: u + "#runtime", want: "base"},
		{url: u + "#runtime", opts: []Option{WithRuntimeVersion(17)}, want: "eleven"},
		{url: u + "#other", opts: []Option{WithRuntimeVersion(17)}, want: "base"},
	}
	for _, tt := range tests {
		c, err := Open(newCache(t), tt.url, tt.opts...)
		require.NoError(t, err)
		r, err := c.Reader()
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, read(t, r), tt.url)
	}
}

func TestConnection_RawNestedJar(t *testing.T) {
	t.Parallel()

	path, inner := appJar(t)
	u, err := Create(path, "BOOT-INF/lib/dep.jar", "")
	require.NoError(t, err)

	c, err := Open(newCache(t), u, WithResolver(nested.NewResolver(8)))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, ContentType, c.ContentType())
	assert.Equal(t, int64(len(inner)), c.ContentLength())
	e, err := c.Entry()
	require.NoError(t, err)
	assert.Nil(t, e)

	r, err := c.Reader()
	require.NoError(t, err)
	assert.Equal(t, string(inner), read(t, r))
}

func TestConnection_RawFileJar(t *testing.T) {
	t.Parallel()

	path, _ := appJar(t)
	info, err := os.Stat(path)
	require.NoError(t, err)
	u, err := Create(path, "", "")
	require.NoError(t, err)

	c, err := Open(newCache(t), u)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, info.Size(), c.ContentLength())
	_, err = c.Reader()
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConnection_ContentType(t *testing.T) {
	t.Parallel()

	path, _ := appJar(t)
	cache := newCache(t)

	tests := []struct {
		nestedEntry string
		entry       string
		want        string
	}{
		{entry: "index.html", want: "text/html; charset=utf-8"},
		{nestedEntry: "BOOT-INF/lib/dep.jar", entry: "dep.txt", want: "text/plain; charset=utf-8"},
		{nestedEntry: "BOOT-INF/lib/dep.jar", entry: "blob", want: "image/png"},
		{nestedEntry: "BOOT-INF/lib/dep.jar", entry: "noext", want: "content/unknown"},
		{nestedEntry: "BOOT-INF/lib/dep.jar", entry: "missing", want: "content/unknown"},
	}
	for _, tt := range tests {
		u, err := Create(path, tt.nestedEntry, tt.entry)
		require.NoError(t, err)
		c, err := Open(cache, u)
		require.NoError(t, err)
		assert.Equal(t, tt.want, c.ContentType(), tt.entry)
		assert.Equal(t, tt.want, c.ContentType(), tt.entry)
		require.NoError(t, c.Close())
	}
	assert.Zero(t, cache.Len())
}

func TestConnection_LastModified(t *testing.T) {
	t.Parallel()

	path, _ := appJar(t)
	modified := time.Date(2022, time.January, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, modified, modified))
	u, err := Create(path, "BOOT-INF/lib/dep.jar", "dep.txt")
	require.NoError(t, err)

	c, err := Open(newCache(t), u)
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.LastModified().Equal(modified))
}

func TestConnection_Errors(t *testing.T) {
	t.Parallel()

	path, _ := appJar(t)
	cache := newCache(t)

	_, err := Open(nil, "jar:file:/a.jar!/x")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Open(cache, "file:/a.jar")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Open(cache, "jar:http://example.com/a.jar!/x")
	require.ErrorIs(t, err, ErrUnsupported)

	u, err := Create(path, "", "missing.txt")
	require.NoError(t, err)
	c, err := Open(cache, u)
	require.NoError(t, err)
	err = c.Connect()
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "JAR entry missing.txt not found in "+path)
	assert.Equal(t, int64(-1), c.ContentLength())
	_, err = c.Reader()
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	u, err = Create(path+".missing", "", "x")
	require.NoError(t, err)
	c, err = Open(cache, u)
	require.NoError(t, err)
	require.Error(t, c.Connect())
	assert.True(t, c.LastModified().IsZero())
	require.NoError(t, c.Close())

	assert.Zero(t, cache.Len())
}
