// Package testutil builds zip fixtures for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"
)

// Modified is the modification time given to fixture entries by default.
var Modified = time.Date(2024, time.March, 15, 10, 30, 20, 0, time.UTC)

// Entry describes one fixture entry.
type Entry struct {
	Name    string
	Data    []byte
	Method  uint16
	Comment string
	// Descriptor writes a data descriptor after the content.
	Descriptor bool
}

// Stored returns a stored entry without a data descriptor.
func Stored(name, data string) Entry {
	return Entry{Name: name, Data: []byte(data), Method: zip.Store}
}

// Deflated returns a deflated entry followed by a data descriptor.
func Deflated(name, data string) Entry {
	return Entry{Name: name, Data: []byte(data), Method: zip.Deflate, Descriptor: true}
}

// Dir returns a directory entry. The name must end with '/'.
func Dir(name string) Entry {
	return Entry{Name: name, Method: zip.Store}
}

// Nested returns a stored entry holding another zip.
func Nested(name string, data []byte) Entry {
	return Entry{Name: name, Data: data, Method: zip.Store}
}

// Options tune the archive written by Zip.
type Options struct {
	Comment string
	// Prefix is written before the archive, like a launch script.
	Prefix []byte
}

// Zip builds an archive containing entries in order.
func Zip(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	return ZipWith(t, Options{}, entries...)
}

// ZipWith builds an archive with options.
func ZipWith(t testing.TB, opts Options, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestSpeed)
	})
	for _, e := range entries {
		writeEntry(t, zw, e)
	}
	if opts.Comment != "" {
		require.NoError(t, zw.SetComment(opts.Comment))
	}
	require.NoError(t, zw.Close())
	if len(opts.Prefix) == 0 {
		return buf.Bytes()
	}
	return append(append([]byte{}, opts.Prefix...), buf.Bytes()...)
}

func writeEntry(t testing.TB, zw *zip.Writer, e Entry) {
	t.Helper()
	fh := &zip.FileHeader{
		Name:     e.Name,
		Method:   e.Method,
		Comment:  e.Comment,
		Modified: Modified,
	}
	if e.Descriptor {
		w, err := zw.CreateHeader(fh)
		require.NoError(t, err)
		_, err = w.Write(e.Data)
		require.NoError(t, err)
		return
	}

	// CreateRaw writes no data descriptor, so sizes and CRC go in the headers.
	content := e.Data
	if e.Method == zip.Deflate {
		var cbuf bytes.Buffer
		fw, err := flate.NewWriter(&cbuf, flate.BestSpeed)
		require.NoError(t, err)
		_, err = fw.Write(e.Data)
		require.NoError(t, err)
		require.NoError(t, fw.Close())
		content = cbuf.Bytes()
	}
	fh.CRC32 = crc32.ChecksumIEEE(e.Data)
	fh.CompressedSize64 = uint64(len(content))
	fh.UncompressedSize64 = uint64(len(e.Data))
	w, err := zw.CreateRaw(fh)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
}

// WriteFile writes data to name under dir and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// WriteZip builds an archive and writes it to a temporary directory.
func WriteZip(t testing.TB, entries ...Entry) string {
	t.Helper()
	return WriteFile(t, t.TempDir(), "test.jar", Zip(t, entries...))
}

// Manifest returns a META-INF/MANIFEST.MF entry with the given main
// attribute lines.
func Manifest(lines ...string) Entry {
	var b bytes.Buffer
	b.WriteString("Manifest-Version: 1.0\r\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return Entry{Name: "META-INF/MANIFEST.MF", Data: b.Bytes(), Method: zip.Deflate}
}

// Reader returns a zip reader over data for cross checking.
func Reader(t testing.TB, data []byte) *zip.Reader {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return zr
}

// Zip64 builds an archive of count empty stored entries named by
// Zip64Name. From 65,535 entries on the writer adds the ZIP64 end of
// central directory record and locator.
func Zip64(t testing.TB, count int) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := range count {
		_, err := zw.CreateRaw(&zip.FileHeader{Name: Zip64Name(i), Method: zip.Store, Modified: Modified})
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// Zip64Name names entry i of an archive built by Zip64.
func Zip64Name(i int) string {
	return fmt.Sprintf("f%06d.txt", i)
}

// Zip64Field selects the central directory field MarkZip64 overwrites.
type Zip64Field int

const (
	// Zip64Offset is the local header offset.
	Zip64Offset Zip64Field = iota
	// Zip64CompressedSize is the compressed size.
	Zip64CompressedSize
)

const (
	centralSignature   = 0x02014b50
	centralHeaderSize  = 46
	centralCompressed  = 20
	centralNameLength  = 28
	centralExtraLength = 30
	centralCommentLen  = 32
	centralLocalOffset = 42
)

// MarkZip64 returns a copy of data whose central directory record for name
// stores the ZIP64 marker 0xFFFFFFFF in field.
func MarkZip64(t testing.TB, data []byte, name string, field Zip64Field) []byte {
	t.Helper()
	at := centralLocalOffset
	if field == Zip64CompressedSize {
		at = centralCompressed
	}
	out := bytes.Clone(data)
	for pos := 0; pos+centralHeaderSize <= len(out); {
		if binary.LittleEndian.Uint32(out[pos:]) != centralSignature {
			pos++
			continue
		}
		nameLen := int(binary.LittleEndian.Uint16(out[pos+centralNameLength:]))
		extraLen := int(binary.LittleEndian.Uint16(out[pos+centralExtraLength:]))
		commentLen := int(binary.LittleEndian.Uint16(out[pos+centralCommentLen:]))
		start := pos + centralHeaderSize
		if start+nameLen <= len(out) && string(out[start:start+nameLen]) == name {
			binary.LittleEndian.PutUint32(out[pos+at:], 0xFFFFFFFF)
			return out
		}
		pos = start + nameLen + extraLen + commentLen
	}
	require.Failf(t, "no central directory record", "name %q", name)
	return nil
}
