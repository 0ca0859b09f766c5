package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	nethttp "net/http"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/nestedjar"
	jarhttp "github.com/meigma/nestedjar/datablock/http"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
)

// app is the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
	loader  *nestedjar.Loader
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{v: newViper(), stdout: stdout, stderr: stderr}
}

// execute runs one invocation of the command line and releases everything
// it opened.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := newApp(stdout, stderr)
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nestedjar",
		Short: "Inspect jars and the jars nested inside them",
		Long: `nestedjar reads jar files without unpacking them, including jars
stored inside other jars and directories of a jar.

Locations:
  app.jar                         a jar on disk
  app.jar/!BOOT-INF/lib/dep.jar   a jar stored inside app.jar
  nested:/abs/app.jar/!BOOT-INF/classes/
                                  a directory of a jar, read as a jar
  https://host/app.jar            a remote jar read with range requests (ls only)`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.Int("release", 0, "Java release used to resolve multi-release entries")
	flags.Int("block-size", 0, "block size for remote range requests")
	flags.Int("cache-blocks", 0, "number of remote blocks kept in memory")
	flags.Duration("http-timeout", 0, "timeout for remote requests")

	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)
	rootCmd.AddCommand(
		newLsCmd(a),
		newCatCmd(a),
		newManifestCmd(a),
		newVersionsCmd(a),
		newRawCmd(a),
		newExtractCmd(a),
		newURLCmd(a),
		newDigestCmd(a),
	)
	return rootCmd
}

// init resolves the configuration and builds the logger and the loader.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.v, cmd.Flags(), a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}
	a.logger = slog.New(log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "nestedjar",
		Level:           level,
		ReportTimestamp: cfg.Debug,
	}))

	a.loader, err = nestedjar.NewLoader(
		nestedjar.WithLogger(a.logger),
		nestedjar.WithVersion(cfg.Release),
		nestedjar.WithHTTPClient(&nethttp.Client{Timeout: cfg.HTTPTimeout}),
		nestedjar.WithHTTPOptions(
			jarhttp.WithBlockSize(int64(cfg.BlockSize)),
			jarhttp.WithCacheBlocks(cfg.CacheBlocks),
		),
	)
	return err
}

func (a *app) close() error {
	if a.loader == nil {
		return nil
	}
	err := a.loader.Close()
	a.loader = nil
	return err
}

// closeAll joins the error of a deferred close into err.
func closeAll(err *error, c io.Closer) {
	*err = errors.Join(*err, c.Close())
}
