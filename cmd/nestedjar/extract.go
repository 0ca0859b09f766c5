package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/nestedjar/internal/batch"
	"github.com/meigma/nestedjar/jar"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		prefix        string
		overwrite     bool
		preserveTimes bool
		versioned     bool
	)
	cmd := &cobra.Command{
		Use:   "extract <location> <dir>",
		Short: "Extract the entries of a jar into a directory",
		Example: `  nestedjar extract app.jar/!BOOT-INF/lib/dep.jar out/
  nestedjar extract --prefix BOOT-INF/classes/ app.jar out/`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f, err := a.loader.Open(args[0])
			if err != nil {
				return err
			}
			defer closeAll(&err, f)

			seq := f.Entries()
			if versioned {
				seq = f.VersionedEntries()
			}
			var entries []*jar.Entry
			for e, err := range seq {
				if err != nil {
					return err
				}
				if strings.HasPrefix(e.Name(), prefix) {
					entries = append(entries, e)
				}
			}

			sink := batch.NewFileSink(args[1],
				batch.WithOverwrite(overwrite),
				batch.WithPreserveTimes(preserveTimes),
			)
			p := batch.NewProcessor(f, batch.WithWorkers(a.cfg.Workers))
			if err := p.Process(cmd.Context(), entries, sink); err != nil {
				return err
			}
			a.logger.Debug("extracted jar", "jar", f.Name(), "entries", len(entries), "dir", args[1])
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&prefix, "prefix", "", "only extract entries whose names start with prefix")
	flags.BoolVar(&overwrite, "overwrite", false, "replace existing files")
	flags.BoolVar(&preserveTimes, "preserve-times", true, "set file times from the entries")
	flags.BoolVar(&versioned, "versioned", false, "extract the entries visible for --release under their plain names")
	flags.Int("workers", 0, "parallel workers (0 picks automatically, negative is serial)")
	return cmd
}
