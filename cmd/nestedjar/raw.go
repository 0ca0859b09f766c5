package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/nestedjar/internal/file"
	"github.com/meigma/nestedjar/nested"
)

func newRawCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "raw <location>",
		Short: "Write the zip bytes of a nested jar or directory",
		Long: `raw writes the bytes of the zip behind a location. For a directory of
a jar the output is a zip holding the entries below that directory.`,
		Example: `  nestedjar raw -o dep.jar app.jar/!BOOT-INF/lib/dep.jar
  nestedjar raw nested:/abs/app.jar/!BOOT-INF/classes/ > classes.zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			r, err := a.openRaw(args[0])
			if err != nil {
				return err
			}
			defer closeAll(&err, r)

			w := a.stdout
			if output != "" {
				var out *os.File
				if out, err = os.Create(output); err != nil {
					return err
				}
				defer closeAll(&err, out)
				w = out
			}
			return copyAll(cmd.Context(), w, r)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

// openRaw opens the zip data of a "nested:" URL through a connection and of
// any other location through the jar file.
func (a *app) openRaw(location string) (io.ReadCloser, error) {
	if strings.HasPrefix(strings.ToLower(location), nested.Scheme+":") {
		conn, err := a.loader.OpenNested(location)
		if err != nil {
			return nil, err
		}
		r, err := conn.Reader()
		if err != nil {
			_ = conn.Close() //nolint:errcheck // already failing
			return nil, err
		}
		a.logger.Debug("streaming nested location", "location", conn.Location().String(), "size", conn.ContentLength())
		return r, nil
	}

	f, err := a.loader.Open(location)
	if err != nil {
		return nil, err
	}
	raw, err := f.OpenRawZipData()
	if err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return &ownedReader{ReadCloser: raw, owner: f}, nil
}

// ownedReader closes its owner after itself.
type ownedReader struct {
	io.ReadCloser
	owner io.Closer
}

func (r *ownedReader) Close() error {
	err := r.ReadCloser.Close()
	if cerr := r.owner.Close(); err == nil {
		err = cerr
	}
	return err
}

func copyAll(ctx context.Context, w io.Writer, r io.Reader) error {
	_, err := file.CopyWithContext(ctx, w, r, make([]byte, 32<<10))
	return err
}
