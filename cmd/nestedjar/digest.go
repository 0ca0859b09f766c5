package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/spf13/cobra"

	"github.com/meigma/nestedjar/internal/file"
)

const (
	// MediaTypeJar is the media type given to jar descriptors.
	MediaTypeJar = "application/java-archive"
	// MediaTypeEntry is the media type given to entry descriptors.
	MediaTypeEntry = "application/octet-stream"
)

func newDigestCmd(a *app) *cobra.Command {
	var descriptor bool
	cmd := &cobra.Command{
		Use:   "digest <location> [entry]...",
		Short: "Print content digests of a jar or of its entries",
		Long: `digest prints the sha256 digest and size of the zip bytes behind a
location, or of the named entries. With --descriptor it prints OCI content
descriptors instead, one JSON object per line.`,
		Example: `  nestedjar digest app.jar/!BOOT-INF/lib/dep.jar
  nestedjar digest --descriptor app.jar META-INF/MANIFEST.MF`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := a.digests(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.stdout)
			for _, desc := range descs {
				if descriptor {
					if err := enc.Encode(desc); err != nil {
						return err
					}
					continue
				}
				if _, err := fmt.Fprintf(a.stdout, "%s %d %s\n", desc.Digest, desc.Size, desc.Annotations[ocispec.AnnotationTitle]); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&descriptor, "descriptor", false, "print OCI descriptors as JSON")
	return cmd
}

func (a *app) digests(ctx context.Context, location string, names []string) (descs []ocispec.Descriptor, err error) {
	if len(names) == 0 {
		return a.rawDigest(ctx, location)
	}

	f, err := a.loader.Open(location)
	if err != nil {
		return nil, err
	}
	defer closeAll(&err, f)

	fsys := f.FS()
	for _, name := range names {
		r, err := fsys.Open(name)
		if err != nil {
			return nil, err
		}
		desc, err := describe(ctx, r, MediaTypeEntry, name)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

func (a *app) rawDigest(ctx context.Context, location string) (descs []ocispec.Descriptor, err error) {
	r, err := a.openRaw(location)
	if err != nil {
		return nil, err
	}
	defer closeAll(&err, r)

	desc, err := describe(ctx, r, MediaTypeJar, location)
	if err != nil {
		return nil, err
	}
	return []ocispec.Descriptor{desc}, nil
}

// describe digests everything r yields.
func describe(ctx context.Context, r io.Reader, mediaType, title string) (ocispec.Descriptor, error) {
	digester := digest.Canonical.Digester()
	n, err := file.CopyWithContext(ctx, digester.Hash(), r, make([]byte, 32<<10))
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	return ocispec.Descriptor{
		MediaType:   mediaType,
		Digest:      digester.Digest(),
		Size:        n,
		Annotations: map[string]string{ocispec.AnnotationTitle: title},
	}, nil
}
