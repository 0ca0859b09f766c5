package http_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nestedjar/datablock"
	jarhttp "github.com/meigma/nestedjar/datablock/http"
	"github.com/meigma/nestedjar/internal/ziperr"
	"github.com/meigma/nestedjar/testutil"
	"github.com/meigma/nestedjar/zipcontent"
)

// serve serves data with range support and counts range requests.
func serve(t *testing.T, data []byte) (url string, ranges *atomic.Int64) {
	t.Helper()
	ranges = &atomic.Int64{}
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Range") != "" && r.Header.Get("Range") != "bytes=0-0" {
			ranges.Add(1)
		}
		w.Header().Set("ETag", `"v1"`)
		nethttp.ServeContent(w, r, "app.jar", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server.URL, ranges
}

func TestSource_ReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	url, _ := serve(t, data)

	src, err := jarhttp.NewSource(context.Background(), url, jarhttp.WithConditionalHeaders(), jarhttp.WithBlockSize(4))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())
	assert.Equal(t, url, src.URL())

	tests := []struct {
		name    string
		bufSize int
		offset  int64
		wantErr error
		want    string
	}{
		{name: "read from middle", bufSize: 5, offset: 6, want: "world"},
		{name: "read across blocks", bufSize: 7, offset: 2, want: "llo wor"},
		{name: "read past end returns EOF", bufSize: 10, offset: int64(len(data) - 3), wantErr: io.EOF, want: "rld"},
		{name: "read at end", bufSize: 1, offset: int64(len(data)), wantErr: io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := make([]byte, tt.bufSize)
			n, err := src.ReadAt(buf, tt.offset)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, string(buf[:n]))
		})
	}

	_, err = src.ReadAt(make([]byte, 1), -1)
	require.Error(t, err)
}

func TestSource_CachesBlocks(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("0123456789"), 100)
	url, ranges := serve(t, data)

	src, err := jarhttp.NewSource(context.Background(), url, jarhttp.WithBlockSize(100), jarhttp.WithCacheBlocks(4))
	require.NoError(t, err)

	buf := make([]byte, 10)
	for range 3 {
		_, err := src.ReadAt(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, "0123456789", string(buf))
	}
	assert.Equal(t, int64(1), ranges.Load())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			p := make([]byte, 10)
			_, err := src.ReadAt(p, int64(100+i*10))
			assert.NoError(t, err)
			assert.Equal(t, "0123456789", string(p))
		})
	}
	wg.Wait()
	assert.Equal(t, int64(2), ranges.Load())
}

func TestNewSource_RangeUnsupported(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		_, _ = w.Write([]byte("no ranges here"))
	}))
	t.Cleanup(server.Close)

	_, err := jarhttp.NewSource(context.Background(), server.URL)
	require.ErrorIs(t, err, jarhttp.ErrRangeNotSupported)
}

func TestNewSource_NotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.NotFoundHandler())
	t.Cleanup(server.Close)

	_, err := jarhttp.NewSource(context.Background(), server.URL)
	require.ErrorIs(t, err, ziperr.ErrNotFound)
}

func TestSource_ModifiedRemote(t *testing.T) {
	t.Parallel()

	var version atomic.Int64
	version.Store(1)
	data := []byte("hello world")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("ETag", fmt.Sprintf(`"v%d"`, version.Load()))
		nethttp.ServeContent(w, r, "app.jar", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := jarhttp.NewSource(context.Background(), server.URL, jarhttp.WithConditionalHeaders())
	require.NoError(t, err)
	version.Store(2)

	_, err = src.ReadAt(make([]byte, 5), 0)
	require.ErrorIs(t, err, jarhttp.ErrModified)
}

func TestSource_Headers(t *testing.T) {
	t.Parallel()

	data := []byte("secret jar bytes")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer token" || r.Header.Get("X-Trace") != "1" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		nethttp.ServeContent(w, r, "app.jar", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	_, err := jarhttp.NewSource(context.Background(), server.URL)
	require.Error(t, err)

	src, err := jarhttp.NewSource(context.Background(), server.URL,
		jarhttp.WithHeaders(nethttp.Header{"X-Trace": {"1"}}),
		jarhttp.WithHeader("Authorization", "Bearer token"),
	)
	require.NoError(t, err)
	buf := make([]byte, 6)
	_, err = src.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(buf))
}

func TestSource_LoadZip(t *testing.T) {
	t.Parallel()

	data := testutil.ZipWith(t, testutil.Options{Comment: "remote"},
		testutil.Stored("a.txt", "alpha"),
		testutil.Deflated("b.txt", "bravo bravo bravo"),
		testutil.Dir("dir/"),
	)
	url, _ := serve(t, data)

	src, err := jarhttp.NewSource(context.Background(), url, jarhttp.WithBlockSize(256))
	require.NoError(t, err)

	content, err := zipcontent.Load(src.String(), src.Access(), src.Size())
	require.NoError(t, err)
	defer content.Close()

	assert.Equal(t, 3, content.Len())
	comment, err := content.Comment()
	require.NoError(t, err)
	assert.Equal(t, "remote", comment)

	e, err := content.Entry("a.txt")
	require.NoError(t, err)
	require.NotNil(t, e)
	block, err := e.OpenContent()
	require.NoError(t, err)
	defer block.Close()
	got := make([]byte, block.Size())
	require.NoError(t, datablock.ReadFully(block, got, 0))
	assert.Equal(t, "alpha", string(got))
}
