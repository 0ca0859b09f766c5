package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meigma/nestedjar/jar"
	"github.com/meigma/nestedjar/zipcontent"
)

// row is one listed entry.
type row struct {
	name     string
	realName string
	method   uint16
	size     int64
	csize    int64
	modified time.Time
}

func newLsCmd(a *app) *cobra.Command {
	var long, versioned bool
	cmd := &cobra.Command{
		Use:   "ls <location>",
		Short: "List the entries of a jar",
		Example: `  nestedjar ls app.jar
  nestedjar ls -l app.jar/!BOOT-INF/lib/dep.jar
  nestedjar ls --versioned --release 17 dep.jar
  nestedjar ls https://repo.example.com/app.jar`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []row
			var err error
			if isRemote(args[0]) {
				rows, err = a.remoteRows(cmd.Context(), args[0])
			} else {
				rows, err = a.jarRows(args[0], versioned)
			}
			if err != nil {
				return err
			}
			return writeRows(a.stdout, rows, long)
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show method, sizes and modification times")
	cmd.Flags().BoolVar(&versioned, "versioned", false, "list the entries visible for --release")
	return cmd
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func (a *app) jarRows(location string, versioned bool) (rows []row, err error) {
	f, err := a.loader.Open(location)
	if err != nil {
		return nil, err
	}
	defer closeAll(&err, f)

	entries := f.Entries()
	if versioned {
		entries = f.VersionedEntries()
	}
	for e, err := range entries {
		if err != nil {
			return nil, err
		}
		rows = append(rows, jarRow(e))
	}
	return rows, nil
}

func jarRow(e *jar.Entry) row {
	return row{
		name:     e.Name(),
		realName: e.RealName(),
		method:   e.Method(),
		size:     e.Size(),
		csize:    e.CompressedSize(),
		modified: e.Modified(),
	}
}

func (a *app) remoteRows(ctx context.Context, url string) (rows []row, err error) {
	content, err := a.loader.OpenRemote(ctx, url)
	if err != nil {
		return nil, err
	}
	defer closeAll(&err, content)

	for e, err := range content.Entries() {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row{
			name:     e.Name(),
			realName: e.Name(),
			method:   e.CompressionMethod(),
			size:     e.UncompressedSize(),
			csize:    e.CompressedSize(),
			modified: e.Modified(),
		})
	}
	return rows, nil
}

func methodName(m uint16) string {
	switch m {
	case zipcontent.Stored:
		return "stored"
	case zipcontent.Deflated:
		return "deflated"
	default:
		return "method-" + strconv.Itoa(int(m))
	}
}

func writeRows(w io.Writer, rows []row, long bool) error {
	if !long {
		for _, r := range rows {
			if _, err := fmt.Fprintln(w, r.name); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, r := range rows {
		name := r.name
		if r.realName != r.name {
			name += " -> " + r.realName
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t %s\t %s\n",
			methodName(r.method), r.size, r.csize, r.modified.Format(time.DateTime), name)
	}
	return tw.Flush()
}
