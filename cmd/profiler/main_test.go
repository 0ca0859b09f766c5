package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunProfile(t *testing.T) {
	t.Parallel()

	modes := []string{"open-nested", "readfile", "lookup", "raw-directory", "extract", "remote-ls"}
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			cfg := config{
				mode:       mode,
				libs:       3,
				classes:    8,
				fileSize:   256,
				release:    8,
				dataURL:    "local",
				iterations: 4,
				readRandom: true,
				randomSeed: 1,
			}
			fat, err := buildFatJar(dir, cfg)
			require.NoError(t, err)
			assert.Len(t, fat.libs, 3)

			stats, err := runProfile(cfg, fat, dir)
			require.NoError(t, err)
			assert.Equal(t, 4, stats.ops)
		})
	}
}

func TestRunProfile_UnknownMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config{mode: "nope", libs: 1, classes: 1, fileSize: 1, release: 8}
	fat, err := buildFatJar(dir, cfg)
	require.NoError(t, err)
	_, err = runProfile(cfg, fat, dir)
	require.Error(t, err)
}

func TestParseBytesPerSecond(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
		err  bool
	}{
		{in: "100", want: 100},
		{in: "10MBps", want: 10 << 20},
		{in: "2k", want: 2 << 10},
		{in: "1g/s", want: 1 << 30},
		{in: "", err: true},
		{in: "-5", err: true},
		{in: "fast", err: true},
	}
	for _, tt := range tests {
		got, err := parseBytesPerSecond(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
