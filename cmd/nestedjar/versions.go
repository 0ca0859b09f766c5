package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <location>",
		Short: "Print the releases a multi-release jar has entries for",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) (err error) {
			f, err := a.loader.Open(args[0])
			if err != nil {
				return err
			}
			defer closeAll(&err, f)

			m, err := f.Manifest()
			if err != nil {
				return err
			}
			if m == nil || !m.IsMultiRelease() {
				a.logger.Info("not a multi-release jar", "jar", f.Name())
				return nil
			}
			versions, err := f.Versions()
			if err != nil {
				return err
			}
			for _, v := range versions {
				if _, err := fmt.Fprintln(a.stdout, v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
