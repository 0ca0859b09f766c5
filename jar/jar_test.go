package jar

import (
	"archive/zip"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/meigma/nestedjar/internal/cleaner"
	"github.com/meigma/nestedjar/testutil"
	"github.com/meigma/nestedjar/zipcontent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openJar(t *testing.T, path, entryName string, opts ...Option) (*zipcontent.Cache, *File) {
	t.Helper()
	cache := zipcontent.NewCache()
	f, err := Open(cache, path, entryName, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, f.Close())
		assert.NoError(t, cache.Close())
	})
	return cache, f
}

func readEntry(t *testing.T, f *File, name string) string {
	t.Helper()
	r, err := f.OpenName(name)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return string(data)
}

func entryNames(t *testing.T, f *File) []string {
	t.Helper()
	var names []string
	for e, err := range f.Entries() {
		require.NoError(t, err)
		names = append(names, e.Name())
	}
	return names
}

func basicJar(t *testing.T) string {
	t.Helper()
	return testutil.WriteFile(t, t.TempDir(), "app.jar", testutil.ZipWith(t,
		testutil.Options{Comment: "app"},
		testutil.Manifest("Main-Class: com.example.App"),
		testutil.Stored("a.txt", "hello"),
		testutil.Deflated("b.txt", "deflated content, deflated content, deflated content"),
		testutil.Dir("dir/"),
		testutil.Stored("dir/c.txt", "c"),
	))
}

func TestFile_Basics(t *testing.T) {
	t.Parallel()

	path := basicJar(t)
	_, f := openJar(t, path, "")

	assert.Equal(t, path, f.Name())
	assert.Equal(t, BaseVersion, f.Version())

	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, 5, size)

	comment, err := f.Comment()
	require.NoError(t, err)
	assert.Equal(t, "app", comment)

	assert.Equal(t, []string{"META-INF/MANIFEST.MF", "a.txt", "b.txt", "dir/", "dir/c.txt"}, entryNames(t, f))

	assert.Equal(t, "hello", readEntry(t, f, "a.txt"))
	assert.Equal(t, "deflated content, deflated content, deflated content", readEntry(t, f, "b.txt"))
	assert.Equal(t, "c", readEntry(t, f, "dir/c.txt"))

	e, err := f.Entry("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", e.RealName())
	assert.Equal(t, uint16(zip.Deflate), e.Method())
	assert.Equal(t, int64(len("deflated content, deflated content, deflated content")), e.Size())
	assert.True(t, e.Modified().Equal(testutil.Modified))
	assert.False(t, e.IsDirectory())

	dir, err := f.Entry("dir")
	require.NoError(t, err)
	assert.True(t, dir.IsDirectory())
}

func TestFile_EntryLookup(t *testing.T) {
	t.Parallel()

	_, f := openJar(t, basicJar(t), "")

	tests := []struct {
		name  string
		found bool
	}{
		{name: "a.txt", found: true},
		{name: "dir/", found: true},
		{name: "dir", found: true},
		{name: "dir/c.txt", found: true},
		{name: "missing.txt", found: false},
		{name: "A.TXT", found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.HasEntry(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.found, ok)

			e, err := f.Entry(tt.name)
			if !tt.found {
				require.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, e.Name())
		})
	}
}

func TestFile_LastEntryCache(t *testing.T) {
	t.Parallel()

	_, f := openJar(t, basicJar(t), "")

	first, err := f.Entry("a.txt")
	require.NoError(t, err)
	again, err := f.Entry("a.txt")
	require.NoError(t, err)
	assert.Same(t, first, again)

	f.ClearCache()
	fresh, err := f.Entry("a.txt")
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Equal(t, first.RealName(), fresh.RealName())
}

func TestFile_OpenEntryFromOtherFile(t *testing.T) {
	t.Parallel()

	path := basicJar(t)
	_, f1 := openJar(t, path, "")
	_, f2 := openJar(t, path, "")

	e, err := f1.Entry("a.txt")
	require.NoError(t, err)
	r, err := f2.Open(e)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = f2.Open(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFile_UnsupportedMethod(t *testing.T) {
	t.Parallel()

	path := testutil.WriteZip(t, testutil.Entry{Name: "x.bin", Data: []byte("abc"), Method: 12})
	_, f := openJar(t, path, "")

	_, err := f.OpenName("x.bin")
	require.ErrorIs(t, err, ErrUnsupported)
	assert.Contains(t, err.Error(), "invalid compression method")
}

func TestEntryReader(t *testing.T) {
	t.Parallel()

	_, f := openJar(t, basicJar(t), "")

	r, err := f.OpenName("a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), r.Size())
	assert.Equal(t, int64(5), r.Available())

	buf := make([]byte, 2)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(3), r.Available())

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "llo", string(rest))
	assert.Equal(t, int64(0), r.Available())

	// fully read streams release themselves and keep reporting EOF
	assert.Equal(t, 0, f.res.openStreams())
	n, err = r.Read(buf)
	assert.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = r.Read(buf)
	require.ErrorIs(t, err, ErrClosed)
}

func TestEntryReader_EmptyEntry(t *testing.T) {
	t.Parallel()

	path := testutil.WriteZip(t, testutil.Stored("empty.txt", ""), testutil.Deflated("empty.z", ""))
	_, f := openJar(t, path, "")

	assert.Empty(t, readEntry(t, f, "empty.txt"))
	assert.Empty(t, readEntry(t, f, "empty.z"))
}

func TestFile_CloseClosesReaders(t *testing.T) {
	t.Parallel()

	cache := zipcontent.NewCache()
	defer cache.Close()
	f, err := Open(cache, basicJar(t), "")
	require.NoError(t, err)

	stored, err := f.OpenName("a.txt")
	require.NoError(t, err)
	deflated, err := f.OpenName("b.txt")
	require.NoError(t, err)
	raw, err := f.OpenRawZipData()
	require.NoError(t, err)
	assert.Equal(t, 3, f.res.openStreams())

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.Equal(t, 0, f.res.openStreams())
	assert.Zero(t, cache.Len())

	_, err = stored.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrClosed)
	_, err = deflated.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, raw.Close())

	_, err = f.Entry("a.txt")
	require.ErrorIs(t, err, ErrClosed)
	_, err = f.Size()
	require.ErrorIs(t, err, ErrClosed)
	_, err = f.OpenName("a.txt")
	require.ErrorIs(t, err, ErrClosed)
	_, err = f.Manifest()
	require.ErrorIs(t, err, ErrClosed)
	for _, err := range f.Entries() {
		require.ErrorIs(t, err, ErrClosed)
	}
}

func TestFile_LookupAfterCloseIgnoresLastEntry(t *testing.T) {
	t.Parallel()

	cache := zipcontent.NewCache()
	defer cache.Close()
	f, err := Open(cache, basicJar(t), "")
	require.NoError(t, err)

	_, err = f.Entry("a.txt")
	require.NoError(t, err)
	ok, err := f.HasEntry("a.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, f.Close())

	e, err := f.Entry("a.txt")
	require.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, e)
	ok, err = f.HasEntry("a.txt")
	require.ErrorIs(t, err, ErrClosed)
	assert.False(t, ok)
	assert.Nil(t, f.lastEntry.Load())
}

func TestFile_CloseDoesNotAffectOtherFiles(t *testing.T) {
	t.Parallel()

	cache := zipcontent.NewCache()
	defer cache.Close()
	path := basicJar(t)

	f1, err := Open(cache, path, "")
	require.NoError(t, err)
	f2, err := Open(cache, path, "")
	require.NoError(t, err)

	require.NoError(t, f1.Close())
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, "hello", readEntry(t, f2, "a.txt"))

	require.NoError(t, f2.Close())
	assert.Zero(t, cache.Len())
}

func TestFile_Cleaner(t *testing.T) {
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

	cache := zipcontent.NewCache()
	defer cache.Close()
	f, err := Open(cache, basicJar(t), "", WithCleaner(cl))
	require.NoError(t, err)

	r, err := f.OpenName("a.txt")
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, registered, 2)
	fileCleanup, readerCleanup := registered[0], registered[1]
	mu.Unlock()

	assert.True(t, readerCleanup.Ran())
	assert.False(t, fileCleanup.Ran())

	require.NoError(t, f.Close())
	assert.True(t, fileCleanup.Ran())
}

func TestFile_NestedJar(t *testing.T) {
	t.Parallel()

	inner := testutil.Zip(t,
		testutil.Manifest("Implementation-Title: inner"),
		testutil.Stored("inner.txt", "from inside"),
		testutil.Deflated("deep/x.txt", "deeply deflated"),
	)
	path := testutil.WriteZip(t,
		testutil.Stored("outer.txt", "outside"),
		testutil.Nested("lib/inner.jar", inner),
	)
	_, f := openJar(t, path, "lib/inner.jar")

	assert.Equal(t, path+"!/lib/inner.jar", f.Name())
	assert.Equal(t, "from inside", readEntry(t, f, "inner.txt"))
	assert.Equal(t, "deeply deflated", readEntry(t, f, "deep/x.txt"))

	ok, err := f.HasEntry("outer.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	m, err := f.Manifest()
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "inner", m.MainAttributes().Get("Implementation-Title"))

	raw, err := f.OpenRawZipData()
	require.NoError(t, err)
	data, err := io.ReadAll(raw)
	require.NoError(t, err)
	require.NoError(t, raw.Close())
	assert.Equal(t, inner, data)
}

func TestFile_NestedDirectory(t *testing.T) {
	t.Parallel()

	path := testutil.WriteZip(t,
		testutil.Manifest("Main-Class: com.example.Root"),
		testutil.Stored("a.txt", "a"),
		testutil.Dir("dir/"),
		testutil.Stored("dir/b.txt", "b"),
		testutil.Deflated("dir/sub/c.txt", "c c c c"),
	)
	cache, f := openJar(t, path, "dir/")

	assert.Equal(t, []string{"b.txt", "sub/c.txt"}, entryNames(t, f))
	assert.Equal(t, "b", readEntry(t, f, "b.txt"))
	assert.Equal(t, "c c c c", readEntry(t, f, "sub/c.txt"))

	// the manifest lives at the root of the containing jar
	m, err := f.Manifest()
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "com.example.Root", m.MainAttributes().Get("Main-Class"))

	raw, err := f.OpenRawZipData()
	require.NoError(t, err)
	data, err := io.ReadAll(raw)
	require.NoError(t, err)
	require.NoError(t, raw.Close())
	zr := testutil.Reader(t, data)
	names := make([]string, 0, len(zr.File))
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	assert.Equal(t, []string{"b.txt", "sub/c.txt"}, names)

	assert.Equal(t, 2, cache.Len())
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	path := basicJar(t)
	cache := zipcontent.NewCache()
	defer cache.Close()

	_, err := Open(nil, path, "")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Open(cache, path, "missing.jar")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = Open(cache, path, "b.txt")
	require.ErrorIs(t, err, ErrUnsupported)

	assert.Zero(t, cache.Len())
}

func TestFile_ConcurrentReads(t *testing.T) {
	t.Parallel()

	_, f := openJar(t, basicJar(t), "", WithInflaterLimit(2))

	want := map[string]string{
		"a.txt":     "hello",
		"b.txt":     "deflated content, deflated content, deflated content",
		"dir/c.txt": "c",
	}
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for range 16 {
		for name, content := range want {
			wg.Go(func() {
				r, err := f.OpenName(name)
				if err != nil {
					errs <- err
					return
				}
				defer r.Close()
				data, err := io.ReadAll(r)
				if err != nil {
					errs <- err
					return
				}
				if string(data) != content {
					errs <- errors.New("unexpected content for " + name)
				}
			})
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, f.res.inflaters.Idle(), 2)
}
