package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/nestedjar/internal/file"
)

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <location> <entry>...",
		Short: "Print entries of a jar, verifying their checksums",
		Example: `  nestedjar cat app.jar META-INF/MANIFEST.MF
  nestedjar cat --release 17 app.jar/!BOOT-INF/lib/dep.jar com/example/Dep.class`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f, err := a.loader.Open(args[0])
			if err != nil {
				return err
			}
			defer closeAll(&err, f)

			fsys := f.FS()
			buf := make([]byte, 32<<10)
			for _, name := range args[1:] {
				r, err := fsys.Open(name)
				if err != nil {
					return err
				}
				_, err = file.CopyWithContext(cmd.Context(), a.stdout, r, buf)
				if cerr := r.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			return nil
		},
	}
}
