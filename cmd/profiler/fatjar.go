package main

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"github.com/meigma/nestedjar"
	"github.com/meigma/nestedjar/jar"
)

const (
	classesDir = "BOOT-INF/classes/"
	libDir     = "BOOT-INF/lib/"
)

// fatJar describes the generated application jar.
type fatJar struct {
	path    string
	url     string
	libs    []string
	classes int
}

func (f *fatJar) className(i int) string {
	return fmt.Sprintf("com/example/pkg%02d/Class%05d.class", i%16, i)
}

func (f *fatJar) pickLib(idx int, rng *rand.Rand, random bool) string {
	if random {
		return f.libs[rng.Intn(len(f.libs))]
	}
	return f.libs[idx%len(f.libs)]
}

// pickIndex returns an index over every class of every library.
func (f *fatJar) pickIndex(idx int, rng *rand.Rand, random bool) int {
	n := len(f.libs) * f.classes
	if random {
		return rng.Intn(n)
	}
	return idx % n
}

func (f *fatJar) openLibs(loader *nestedjar.Loader) ([]*jar.File, func(), error) {
	files := make([]*jar.File, 0, len(f.libs))
	closeAll := func() {
		for _, file := range files {
			_ = file.Close()
		}
	}
	for _, lib := range f.libs {
		file, err := loader.OpenEntry(f.path, lib)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, file)
	}
	return files, closeAll, nil
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func buildFatJar(dir string, cfg config) (*fatJar, error) {
	if cfg.libs <= 0 || cfg.classes <= 0 {
		return nil, errors.New("libs and classes must be positive")
	}
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional use for reproducible benchmarks
	fat := &fatJar{path: filepath.Join(dir, "app.jar"), classes: cfg.classes}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := writeEntry(zw, "META-INF/MANIFEST.MF", zip.Deflate,
		[]byte("Manifest-Version: 1.0\r\nMain-Class: com.example.App\r\n\r\n")); err != nil {
		return nil, err
	}
	for _, d := range []string{"BOOT-INF/", classesDir} {
		if err := writeEntry(zw, d, zip.Store, nil); err != nil {
			return nil, err
		}
	}
	for i := range cfg.classes {
		if err := writeEntry(zw, classesDir+fat.className(i), zip.Deflate, content(rng, cfg, i)); err != nil {
			return nil, err
		}
	}
	for l := range cfg.libs {
		lib, err := buildLib(rng, cfg, l, fat)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%slib%03d.jar", libDir, l)
		if err := writeEntry(zw, name, zip.Store, lib); err != nil {
			return nil, err
		}
		fat.libs = append(fat.libs, name)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if err := os.WriteFile(fat.path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // 0o644 is intentional for profiler test files
		return nil, err
	}
	return fat, nil
}

func buildLib(rng *rand.Rand, cfg config, l int, fat *fatJar) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	manifest := fmt.Sprintf("Manifest-Version: 1.0\r\nImplementation-Title: lib%03d\r\n\r\n", l)
	if err := writeEntry(zw, "META-INF/MANIFEST.MF", zip.Deflate, []byte(manifest)); err != nil {
		return nil, err
	}
	for i := range cfg.classes {
		if err := writeEntry(zw, fat.className(i), zip.Deflate, content(rng, cfg, i)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func content(rng *rand.Rand, cfg config, i int) []byte {
	data := make([]byte, cfg.fileSize)
	switch cfg.pattern {
	case "random":
		_, _ = rng.Read(data)
	default:
		fill := byte('a' + (i % 26))
		for j := range data {
			data[j] = fill
		}
		if len(data) > 0 {
			data[0] = byte(i)
		}
	}
	return data
}

// writeEntry writes sizes and CRC into the local header, which stored
// nested jars need.
func writeEntry(zw *zip.Writer, name string, method uint16, data []byte) error {
	stored := data
	if method == zip.Deflate {
		var cbuf bytes.Buffer
		fw, err := flate.NewWriter(&cbuf, flate.BestSpeed)
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
		if err := fw.Close(); err != nil {
			return err
		}
		stored = cbuf.Bytes()
	}
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               name,
		Method:             method,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(stored)),
		UncompressedSize64: uint64(len(data)),
	})
	if err != nil {
		return err
	}
	_, err = w.Write(stored)
	return err
}
