package jar

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestedjar/testutil"
)

func fsJar(t *testing.T) string {
	t.Helper()
	return testutil.WriteZip(t,
		testutil.Manifest("Created-By: test"),
		testutil.Stored("a.txt", "alpha"),
		testutil.Deflated("src/main/App.java", "class App {}"),
		testutil.Dir("src/test/"),
		testutil.Stored("src/test/AppTest.java", "class AppTest {}"),
		testutil.Dir("empty/"),
	)
}

func TestFS_Conformance(t *testing.T) {
	t.Parallel()

	_, f := openJar(t, fsJar(t), "")
	require.NoError(t, fstest.TestFS(f.FS(),
		"META-INF/MANIFEST.MF",
		"a.txt",
		"src/main/App.java",
		"src/test/AppTest.java",
		"empty",
	))
}

func TestFS_ReadDir(t *testing.T) {
	t.Parallel()

	_, f := openJar(t, fsJar(t), "")
	fsys := f.FS()

	tests := []struct {
		dir  string
		want []string
	}{
		{dir: ".", want: []string{"META-INF", "a.txt", "empty", "src"}},
		{dir: "src", want: []string{"main", "test"}},
		{dir: "src/test", want: []string{"AppTest.java"}},
		{dir: "empty", want: []string{}},
	}
	for _, tt := range tests {
		entries, err := fsys.ReadDir(tt.dir)
		require.NoError(t, err, tt.dir)
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		assert.Equal(t, tt.want, names, tt.dir)
	}

	_, err := fsys.ReadDir("missing")
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = fsys.ReadDir("../x")
	require.ErrorIs(t, err, fs.ErrInvalid)
}

func TestFS_Stat(t *testing.T) {
	t.Parallel()

	_, f := openJar(t, fsJar(t), "")
	fsys := f.FS()

	info, err := fsys.Stat("src/main/App.java")
	require.NoError(t, err)
	assert.Equal(t, "App.java", info.Name())
	assert.Equal(t, int64(len("class App {}")), info.Size())
	assert.False(t, info.IsDir())
	assert.True(t, info.ModTime().Equal(testutil.Modified))

	info, err = fsys.Stat("src/test")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "test", info.Name())
	assert.True(t, info.ModTime().Equal(testutil.Modified))

	info, err = fsys.Stat("src/main")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, info.ModTime().IsZero())

	_, err = fsys.Stat("nope.txt")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFS_ReadFile(t *testing.T) {
	t.Parallel()

	_, f := openJar(t, fsJar(t), "")
	fsys := f.FS()

	data, err := fsys.ReadFile("src/main/App.java")
	require.NoError(t, err)
	assert.Equal(t, "class App {}", string(data))

	_, err = fsys.ReadFile("src")
	require.ErrorIs(t, err, fs.ErrInvalid)

	_, err = fsys.ReadFile("nope.txt")
	require.ErrorIs(t, err, fs.ErrNotExist)
	var pe *fs.PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "readfile", pe.Op)
}

func TestFS_MultiRelease(t *testing.T) {
	t.Parallel()

	_, f := openJar(t, multiReleaseJar(t, true), "", WithVersion(11))

	data, err := fs.ReadFile(f.FS(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "eleven", string(data))
}

func TestFS_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	data := testutil.Zip(t, testutil.Stored("a.txt", "hello world"))
	i := bytes.Index(data, []byte("hello world"))
	require.GreaterOrEqual(t, i, 0)
	copy(data[i:], "HELLO")
	path := testutil.WriteFile(t, t.TempDir(), "corrupt.jar", data)

	_, f := openJar(t, path, "")

	// the plain entry reader hands out the stored bytes as they are
	assert.Equal(t, "HELLO world", readEntry(t, f, "a.txt"))

	_, err := f.FS().ReadFile("a.txt")
	require.ErrorIs(t, err, ErrChecksum)

	file, err := f.FS().Open("a.txt")
	require.NoError(t, err)
	defer file.Close()
	_, err = io.ReadAll(file)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestFS_DirFS(t *testing.T) {
	t.Parallel()

	// the view copies like any other fs.FS
	_, f := openJar(t, fsJar(t), "")
	dst := t.TempDir()
	require.NoError(t, os.CopyFS(dst, f.FS()))

	got, err := os.ReadFile(dst + "/src/test/AppTest.java")
	require.NoError(t, err)
	assert.Equal(t, "class AppTest {}", string(got))
}
