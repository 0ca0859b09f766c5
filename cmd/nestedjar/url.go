package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newURLCmd(a *app) *cobra.Command {
	var (
		resolve string
		head    bool
	)
	cmd := &cobra.Command{
		Use:   "url <jar-url>",
		Short: "Read a jar: URL",
		Long: `url reads the content a "jar:" URL points at. The inner URL may be a
file: URL or a nested: URL, and a "#runtime" fragment resolves
multi-release entries for --release.`,
		Example: `  nestedjar url 'jar:file:/abs/app.jar!/META-INF/MANIFEST.MF'
  nestedjar url --head 'jar:nested:/abs/app.jar/!BOOT-INF/lib/dep.jar!/a.txt'
  nestedjar url --resolve ../b.txt 'jar:file:/abs/app.jar!/dir/a.txt'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rawURL := args[0]
			if resolve != "" {
				if rawURL, err = a.loader.Resolve(rawURL, resolve); err != nil {
					return err
				}
				a.logger.Debug("resolved url", "url", rawURL)
			}

			conn, err := a.loader.OpenURL(rawURL)
			if err != nil {
				return err
			}
			defer closeAll(&err, conn)

			if head {
				if err := conn.Connect(); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "URL: %s\n", conn.URL())
				fmt.Fprintf(a.stdout, "Content-Type: %s\n", conn.ContentType())
				fmt.Fprintf(a.stdout, "Content-Length: %d\n", conn.ContentLength())
				if t := conn.LastModified(); !t.IsZero() {
					fmt.Fprintf(a.stdout, "Last-Modified: %s\n", t.UTC().Format(http.TimeFormat))
				}
				return nil
			}

			r, err := conn.Reader()
			if err != nil {
				return err
			}
			defer closeAll(&err, r)
			return copyAll(cmd.Context(), a.stdout, r)
		},
	}
	cmd.Flags().StringVar(&resolve, "resolve", "", "resolve a relative spec against the URL first")
	cmd.Flags().BoolVar(&head, "head", false, "print the content type, length and modification time instead")
	return cmd
}
