package datablock

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestedjar/internal/ziperr"
)

func TestVirtual_Read(t *testing.T) {
	t.Parallel()

	v := NewVirtual(Bytes("abc"), Bytes(""), Bytes("defg"), Bytes("h"))
	require.Equal(t, int64(8), v.Size())
	require.Equal(t, 4, v.Parts())

	got := make([]byte, 8)
	n, err := v.Read(got, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "abcdefgh", string(got))

	tests := []struct {
		pos  int64
		size int
		want string
	}{
		{pos: 2, size: 3, want: "cde"},
		{pos: 3, size: 4, want: "defg"},
		{pos: 7, size: 5, want: "h"},
		{pos: 0, size: 1, want: "a"},
		{pos: 5, size: 2, want: "fg"},
	}
	for _, tt := range tests {
		buf := make([]byte, tt.size)
		n, err := v.Read(buf, tt.pos)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(buf[:n]))
	}

	_, err = v.Read(make([]byte, 1), 8)
	require.ErrorIs(t, err, io.EOF)
	_, err = v.Read(make([]byte, 1), -1)
	require.ErrorIs(t, err, ziperr.ErrInvalidArgument)
}

func TestVirtual_Empty(t *testing.T) {
	t.Parallel()

	v := NewVirtual()
	_, err := v.Read(make([]byte, 1), 0)
	require.ErrorIs(t, err, io.EOF)
}

func TestHandle_CloseOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	h := Hold(Bytes("x"), func() error {
		calls++
		return nil
	})
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), h.Size())
}

func TestReader(t *testing.T) {
	t.Parallel()

	released := false
	r := NewReader(Hold(NewVirtual(Bytes("hello "), Bytes("world")), func() error {
		released = true
		return nil
	}))

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.Equal(t, int64(0), r.Remaining())

	pos, err := r.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)
	assert.Equal(t, int64(5), r.Remaining())

	buf := make([]byte, 3)
	n, err := r.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hel", string(buf[:n]))

	n, err = r.ReadAt(make([]byte, 10), 8)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 3, n)

	require.NoError(t, r.Close())
	assert.True(t, released)
	require.NoError(t, r.Close())

	_, err = r.Read(buf)
	require.ErrorIs(t, err, ziperr.ErrClosed)
}
