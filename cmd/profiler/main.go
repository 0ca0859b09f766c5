// Command profiler generates a fat jar and runs one workload against it for
// a fixed time or number of iterations, optionally under pprof.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand" //nolint:gosec // reproducible workloads
	"net/http"
	_ "net/http/pprof" //nolint:gosec // opt-in profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/meigma/nestedjar"
	jarhttp "github.com/meigma/nestedjar/datablock/http"
	"github.com/meigma/nestedjar/internal/batch"
	"github.com/meigma/nestedjar/jar"
)

type config struct {
	mode            string
	libs            int
	classes         int
	fileSize        int
	pattern         string
	release         int
	dataURL         string
	dataHTTPLatency time.Duration
	dataHTTPBPS     int64
	blockSize       int64
	duration        time.Duration
	iterations      int
	pprofAddr       string
	cpuProfile      string
	memProfile      string
	traceFile       string
	workers         int
	readRandom      bool
	tempDir         string
	keepTemp        bool
	randomSeed      int64
}

// Results are stored here so the compiler keeps the work.
//
//nolint:unused // written only
var (
	keepBytes []byte
	keepEntry *jar.Entry
	keepCount int
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

//nolint:gocritic // config is passed by value on purpose
func run(cfg config) (err error) {
	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof on %s", cfg.pprofAddr)
			//nolint:gosec // local profiling server
			log.Print(http.ListenAndServe(cfg.pprofAddr, nil))
		}()
	}

	dir, cleanup, err := workDir(cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, cleanup()) }()

	fat, err := buildFatJar(dir, cfg)
	if err != nil {
		return err
	}

	stop, err := startProfiles(cfg)
	if err != nil {
		return err
	}
	stats, err := runProfile(cfg, fat, dir)
	if serr := stop(); err == nil {
		err = serr
	}
	if err != nil {
		return err
	}

	mb := float64(stats.bytes) / (1 << 20)
	fmt.Printf("mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode, stats.ops, stats.bytes, stats.elapsed, mb/stats.elapsed.Seconds())
	return nil
}

// startProfiles starts the CPU profile and execution trace that cfg asks
// for. The returned stop ends them and writes the heap profile.
//
//nolint:gocritic // config is passed by value on purpose
func startProfiles(cfg config) (stop func() error, err error) {
	var stops []func() error
	stop = func() error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			errs = append(errs, stops[i]())
		}
		if cfg.memProfile != "" {
			runtime.GC()
			errs = append(errs, writeFile(cfg.memProfile, pprof.WriteHeapProfile))
		}
		return errors.Join(errs...)
	}

	if cfg.cpuProfile != "" {
		f, err := os.Create(cfg.cpuProfile)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		stops = append(stops, func() error {
			pprof.StopCPUProfile()
			return f.Close()
		})
	}
	if cfg.traceFile != "" {
		f, err := os.Create(cfg.traceFile)
		if err != nil {
			_ = stop()
			return nil, err
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			_ = stop()
			return nil, err
		}
		stops = append(stops, func() error {
			trace.Stop()
			return f.Close()
		})
	}
	return stop, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

// workload is the state shared by the iterations of one run.
type workload struct {
	cfg    config
	fat    *fatJar
	dir    string
	loader *nestedjar.Loader
	rng    *rand.Rand
	files  []*jar.File
}

// step runs iteration i and returns the number of bytes it read.
type step func(w *workload, i int) (int64, error)

type mode struct {
	// openLibs opens every library up front so steps measure reads only.
	openLibs bool
	step     step
}

var modes = map[string]mode{
	"open-nested":   {step: openNested},
	"readfile":      {openLibs: true, step: readFile},
	"lookup":        {openLibs: true, step: lookup},
	"raw-directory": {step: rawDirectory},
	"extract":       {step: extract},
	"remote-ls":     {step: remoteList},
}

//nolint:gocritic // config is passed by value on purpose
func runProfile(cfg config, fat *fatJar, dir string) (profileStats, error) {
	m, ok := modes[cfg.mode]
	if !ok {
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	opts := []nestedjar.Option{nestedjar.WithVersion(cfg.release)}
	if cfg.mode == "remote-ls" {
		client, url, stop, err := newHTTPSource(cfg, fat.path)
		if err != nil {
			return profileStats{}, err
		}
		defer stop()
		fat.url = url
		opts = append(opts, nestedjar.WithHTTPClient(client))
		if cfg.blockSize > 0 {
			opts = append(opts, nestedjar.WithHTTPOptions(jarhttp.WithBlockSize(cfg.blockSize)))
		}
	}
	loader, err := nestedjar.NewLoader(opts...)
	if err != nil {
		return profileStats{}, err
	}
	defer loader.Close()

	w := &workload{
		cfg:    cfg,
		fat:    fat,
		dir:    dir,
		loader: loader,
		rng:    rand.New(rand.NewSource(cfg.randomSeed)), //nolint:gosec // reproducible workloads
	}
	if m.openLibs {
		files, closeLibs, err := fat.openLibs(loader)
		if err != nil {
			return profileStats{}, err
		}
		defer closeLibs()
		w.files = files
	}

	var stats profileStats
	start := time.Now()
	for w.more(stats.ops, start) {
		n, err := m.step(w, stats.ops)
		if err != nil {
			return profileStats{}, fmt.Errorf("%s iteration %d: %w", cfg.mode, stats.ops, err)
		}
		stats.bytes += n
		stats.ops++
	}
	stats.elapsed = time.Since(start)
	return stats, nil
}

func (w *workload) more(done int, start time.Time) bool {
	if w.cfg.iterations > 0 {
		return done < w.cfg.iterations
	}
	return time.Since(start) < w.cfg.duration
}

// openNested opens a library, which after the first iteration reuses the
// cached archive.
func openNested(w *workload, i int) (int64, error) {
	f, err := w.loader.OpenEntry(w.fat.path, w.fat.pickLib(i, w.rng, w.cfg.readRandom))
	if err != nil {
		return 0, err
	}
	keepCount, err = f.Size()
	return 0, errors.Join(err, f.Close())
}

func readFile(w *workload, i int) (int64, error) {
	k := w.fat.pickIndex(i, w.rng, w.cfg.readRandom)
	data, err := w.files[k%len(w.files)].FS().ReadFile(w.fat.className(k / len(w.files)))
	keepBytes = data
	return int64(len(data)), err
}

func lookup(w *workload, i int) (int64, error) {
	k := w.fat.pickIndex(i, w.rng, w.cfg.readRandom)
	e, err := w.files[k%len(w.files)].Entry(w.fat.className(k / len(w.files)))
	keepEntry = e
	return 0, err
}

// rawDirectory streams the synthesized zip of the classes directory.
func rawDirectory(w *workload, _ int) (n int64, err error) {
	f, err := w.loader.OpenEntry(w.fat.path, classesDir)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	raw, err := f.OpenRawZipData()
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, raw.Close()) }()
	return io.Copy(io.Discard, raw)
}

func extract(w *workload, i int) (int64, error) {
	dest := filepath.Join(w.dir, "extract", fmt.Sprintf("iter-%d", i))
	return extractLib(context.Background(), w.loader, w.fat, w.cfg, dest)
}

func remoteList(w *workload, _ int) (int64, error) {
	content, err := w.loader.OpenRemote(context.Background(), w.fat.url)
	if err != nil {
		return 0, err
	}
	keepCount = 0
	for _, err := range content.Entries() {
		if err != nil {
			return 0, errors.Join(err, content.Close())
		}
		keepCount++
	}
	return content.Size(), content.Close()
}

//nolint:gocritic // config is passed by value on purpose
func extractLib(ctx context.Context, loader *nestedjar.Loader, fat *fatJar, cfg config, dest string) (int64, error) {
	f, err := loader.OpenEntry(fat.path, fat.libs[0])
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var entries []*jar.Entry
	var total int64
	for e, err := range f.Entries() {
		if err != nil {
			return 0, err
		}
		entries = append(entries, e)
		total += e.Size()
	}
	p := batch.NewProcessor(f, batch.WithWorkers(cfg.workers))
	if err := p.Process(ctx, entries, batch.NewFileSink(dest)); err != nil {
		return 0, err
	}
	return total, os.RemoveAll(dest)
}

func parseFlags(args []string) (config, error) {
	var cfg config
	var bps string
	fs := flag.NewFlagSet("profiler", flag.ContinueOnError)
	fs.StringVar(&cfg.mode, "mode", "readfile", "workload: open-nested, readfile, lookup, raw-directory, extract, remote-ls")
	fs.IntVar(&cfg.libs, "libs", 32, "nested jars under BOOT-INF/lib")
	fs.IntVar(&cfg.classes, "classes", 256, "entries per nested jar")
	fs.IntVar(&cfg.fileSize, "file-size", 4<<10, "bytes per entry")
	fs.StringVar(&cfg.pattern, "pattern", "compressible", "entry bytes: compressible or random")
	fs.IntVar(&cfg.release, "release", jar.BaseVersion, "Java release for multi-release lookups")
	fs.StringVar(&cfg.dataURL, "data-url", "local", `jar URL for remote-ls ("local" serves the generated jar)`)
	fs.DurationVar(&cfg.dataHTTPLatency, "data-http-latency", 0, "added latency per remote request")
	fs.StringVar(&bps, "data-http-bps", "", "remote bandwidth cap, e.g. 10MBps")
	fs.Int64Var(&cfg.blockSize, "block-size", 0, "remote range size")
	fs.DurationVar(&cfg.duration, "duration", 10*time.Second, "run time when -iterations is 0")
	fs.IntVar(&cfg.iterations, "iterations", 0, "iterations to run")
	fs.StringVar(&cfg.pprofAddr, "pprof-addr", "", "serve net/http/pprof on this address")
	fs.StringVar(&cfg.cpuProfile, "cpuprofile", "", "CPU profile output")
	fs.StringVar(&cfg.memProfile, "memprofile", "", "heap profile output")
	fs.StringVar(&cfg.traceFile, "trace", "", "execution trace output")
	fs.IntVar(&cfg.workers, "workers", 0, "extract workers: <0 serial, 0 auto, >0 fixed")
	fs.BoolVar(&cfg.readRandom, "read-random", true, "pick entries at random")
	fs.StringVar(&cfg.tempDir, "temp-dir", "", "directory for the generated jar")
	fs.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep the generated files")
	fs.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if bps != "" {
		n, err := parseBytesPerSecond(bps)
		if err != nil {
			return config{}, fmt.Errorf("data-http-bps: %w", err)
		}
		cfg.dataHTTPBPS = n
	}
	return cfg, nil
}

// workDir returns the directory for generated files and a cleanup that
// removes it unless it was given or -keep-temp is set.
//
//nolint:gocritic // config is passed by value on purpose
func workDir(cfg config) (string, func() error, error) {
	keep := func() error { return nil }
	if cfg.tempDir != "" {
		return cfg.tempDir, keep, os.MkdirAll(cfg.tempDir, 0o750)
	}
	dir, err := os.MkdirTemp("", "nestedjar-profiler-*")
	if err != nil {
		return "", nil, err
	}
	if cfg.keepTemp {
		return dir, keep, nil
	}
	return dir, func() error { return os.RemoveAll(dir) }, nil
}
