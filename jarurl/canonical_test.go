package jarurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "/foo/bar", want: "/foo/bar"},
		{in: "/foo/../bar", want: "/bar"},
		{in: "/foo/./bar", want: "/foo/bar"},
		{in: "/foo/bar/..", want: "/foo/"},
		{in: "/foo/bar/.", want: "/foo/bar/"},
		{in: "/a/b/../../c", want: "/c"},
		{in: "/a/./b/./c", want: "/a/b/c"},
		{in: "../x", want: "../x"},
		{in: "/../x", want: "/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Canonicalize(tt.in), tt.in)
	}
}

func TestCanonicalizeAfter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "file:/a/../b.jar!/x/../y", want: "file:/a/../b.jar!/y"},
		{in: "file:/a.jar!/x/./y", want: "file:/a.jar!/x/y"},
		{in: "file:/a.jar!/x/y", want: "file:/a.jar!/x/y"},
		{in: "file:/a.jar!/x/..", want: "file:/a.jar!/"},
		{in: "file:/a.jar!/x/.", want: "file:/a.jar!/x/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalizeAfter(tt.in, IndexOfSeparator(tt.in)+1), tt.in)
	}

	assert.Equal(t, "/a/../b", CanonicalizeAfter("/a/../b", 7))
	assert.Equal(t, "/a/../b", CanonicalizeAfter("/a/../b", -1))
}
