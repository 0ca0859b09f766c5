package main

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/nestedjar/jar"
)

func newManifestCmd(a *app) *cobra.Command {
	var entry string
	cmd := &cobra.Command{
		Use:   "manifest <location>",
		Short: "Print the parsed manifest of a jar",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) (err error) {
			f, err := a.loader.Open(args[0])
			if err != nil {
				return err
			}
			defer closeAll(&err, f)

			if entry != "" {
				return a.printEntryAttributes(f, entry)
			}
			m, err := f.Manifest()
			if err != nil {
				return err
			}
			if m == nil {
				return fmt.Errorf("%s: %w: no manifest", f.Name(), jar.ErrNotFound)
			}

			w := bufio.NewWriter(a.stdout)
			writeAttributes(w, m.MainAttributes())
			for _, name := range m.Sections() {
				fmt.Fprintln(w)
				fmt.Fprintf(w, "Name: %s\n", name)
				writeAttributes(w, m.Attributes(name))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&entry, "entry", "", "print the attributes and signers of one entry")
	return cmd
}

func (a *app) printEntryAttributes(f *jar.File, name string) error {
	e, err := f.Entry(name)
	if err != nil {
		return err
	}
	attrs, err := e.Attributes()
	if err != nil {
		return err
	}
	signers, err := e.Signers()
	if err != nil {
		return err
	}
	w := bufio.NewWriter(a.stdout)
	fmt.Fprintf(w, "Name: %s\n", e.Name())
	writeAttributes(w, attrs)
	for _, s := range signers {
		fmt.Fprintf(w, "Signer: %s\n", s)
	}
	return w.Flush()
}

func writeAttributes(w *bufio.Writer, attrs jar.Attributes) {
	for _, attr := range attrs {
		fmt.Fprintf(w, "%s: %s\n", attr.Name, attr.Value)
	}
}
