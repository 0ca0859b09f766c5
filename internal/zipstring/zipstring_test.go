package zipstring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestedjar/datablock"
)

func TestHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		s           string
		addEndSlash bool
		want        int32
	}{
		{name: "empty", s: "", want: 0},
		{name: "empty with slash", s: "", addEndSlash: true, want: 47},
		{name: "slash", s: "/", want: 47},
		{name: "ascii", s: "hello", want: 99162322},
		{name: "overflow", s: "polygenelubricants", want: math.MinInt32},
		{name: "supplementary", s: "\U0001F600", want: 1772899},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Hash(0, tt.s, tt.addEndSlash))
			assert.Equal(t, tt.want, HashBytes([]byte(tt.s), tt.addEndSlash))
		})
	}
}

func TestHash_EndSlash(t *testing.T) {
	t.Parallel()

	names := []string{"dir", "META-INF/versions/9", "café", "x\U0001F600"}
	for _, n := range names {
		assert.Equal(t, Hash(0, n+"/", false), Hash(0, n, true), n)
		assert.Equal(t, Hash(0, n+"/", true), Hash(0, n, true), n)
		assert.Equal(t, HashBytes([]byte(n+"/"), true), HashBytes([]byte(n), true), n)
	}
}

func TestHash_PrefixFolding(t *testing.T) {
	t.Parallel()

	prefix := "META-INF/versions/11/"
	name := "com/example/App.class"
	folded := Hash(Hash(0, prefix, false), name, true)
	assert.Equal(t, HashBytes([]byte(prefix+name), true), folded)
}

func TestMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		entry    string
		query    string
		addSlash bool
		want     bool
	}{
		{name: "exact", entry: "a/b.txt", query: "a/b.txt", want: true},
		{name: "different", entry: "a/b.txt", query: "a/c.txt", want: false},
		{name: "directory adding slash", entry: "dir/", query: "dir", addSlash: true, want: true},
		{name: "directory without adding slash", entry: "dir/", query: "dir", want: false},
		{name: "query has slash", entry: "dir/", query: "dir/", addSlash: true, want: true},
		{name: "longer entry", entry: "dir/x", query: "dir", addSlash: true, want: false},
		{name: "empty query", entry: "anything", query: "", want: true},
		{name: "empty entry", entry: "", query: "a", addSlash: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Matches([]byte(tt.entry), tt.query, tt.addSlash))
		})
	}
}

func TestStartsWith(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4, StartsWith([]byte("dir/b.txt"), "dir/"))
	assert.Equal(t, 0, StartsWith([]byte("dir/b.txt"), ""))
	assert.Equal(t, -1, StartsWith([]byte("dir/b.txt"), "other/"))
	assert.Equal(t, -1, StartsWith([]byte("di"), "dir/"))
	assert.Equal(t, len("café/"), StartsWith([]byte("café/x"), "café/"))
}

func TestReadString(t *testing.T) {
	t.Parallel()

	b := datablock.Bytes("xxhello")
	s, err := ReadString(b, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	_, err = ReadString(b, 4, 5)
	require.Error(t, err)
}
