package datablock

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestedjar/internal/ziperr"
)

func TestBytes_Read(t *testing.T) {
	t.Parallel()

	b := Bytes("hello world")

	tests := []struct {
		name    string
		bufSize int
		pos     int64
		wantN   int
		wantErr error
		want    string
	}{
		{name: "start", bufSize: 5, pos: 0, wantN: 5, want: "hello"},
		{name: "short at end", bufSize: 10, pos: 6, wantN: 5, want: "world"},
		{name: "at end", bufSize: 1, pos: 11, wantErr: io.EOF},
		{name: "negative", bufSize: 1, pos: -1, wantErr: ziperr.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := make([]byte, tt.bufSize)
			n, err := b.Read(buf, tt.pos)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantN, n)
			assert.Equal(t, tt.want, string(buf[:n]))
		})
	}
}

func TestReadFully_ShortData(t *testing.T) {
	t.Parallel()

	err := ReadFully(Bytes("abc"), make([]byte, 4), 0)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFile_Slice(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789")
	f, err := NewFile(writeTemp(t, data))
	require.NoError(t, err)
	require.NoError(t, f.Open())
	t.Cleanup(func() { _ = f.Close() })

	same, err := f.Slice(0, f.Size())
	require.NoError(t, err)
	assert.Same(t, f, same)

	s, err := f.Slice(2, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.Size())

	inner, err := s.SliceFrom(3)
	require.NoError(t, err)
	got := make([]byte, 2)
	require.NoError(t, ReadFully(inner, got, 0))
	assert.Equal(t, "56", string(got))

	_, err = s.Read(make([]byte, 1), 5)
	require.ErrorIs(t, err, io.EOF)

	_, err = f.Slice(-1, 2)
	require.ErrorIs(t, err, ziperr.ErrInvalidArgument)
	_, err = f.Slice(8, 3)
	require.ErrorIs(t, err, ziperr.ErrInvalidArgument)
	_, err = f.Slice(0, -1)
	require.ErrorIs(t, err, ziperr.ErrInvalidArgument)
	_, err = f.Slice(2, math.MaxInt64)
	require.ErrorIs(t, err, ziperr.ErrInvalidArgument)
}

func TestFile_ReadAfterClose(t *testing.T) {
	t.Parallel()

	f, err := NewFile(writeTemp(t, []byte("abc")))
	require.NoError(t, err)
	require.NoError(t, f.Open())
	require.NoError(t, f.Close())

	_, err = f.Read(make([]byte, 1), 0)
	require.ErrorIs(t, err, ziperr.ErrClosed)
}

func TestReaderAtAccess(t *testing.T) {
	t.Parallel()

	a := NewReaderAtAccess(bytes.NewReader([]byte("abcdef")), "mem")
	b := NewShared(a, 6)

	_, err := b.Read(make([]byte, 1), 0)
	require.ErrorIs(t, err, ziperr.ErrClosed)

	require.NoError(t, b.Open())
	got := make([]byte, 6)
	require.NoError(t, ReadFully(b, got, 0))
	assert.Equal(t, "abcdef", string(got))
	require.NoError(t, b.Close())
}
