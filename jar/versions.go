package jar

import (
	"slices"
	"strconv"
	"strings"

	"github.com/meigma/nestedjar/zipcontent"
)

// versionsInfo lists the META-INF/versions directories of a jar in
// ascending version order.
type versionsInfo struct {
	versions    []int
	directories []string
}

func (f *File) versionsInfo() (*versionsInfo, error) {
	c, err := f.content()
	if err != nil {
		return nil, err
	}
	return zipcontent.GetInfo(c, loadVersionsInfo)
}

// Versions returns the releases that have a META-INF/versions directory,
// in ascending order. Releases below BaseVersion are ignored.
func (f *File) Versions() ([]int, error) {
	vi, err := f.versionsInfo()
	if err != nil {
		return nil, err
	}
	return slices.Clone(vi.versions), nil
}

func loadVersionsInfo(c *zipcontent.Content) (*versionsInfo, error) {
	seen := make(map[int]struct{})
	for e, err := range c.Entries() {
		if err != nil {
			return nil, err
		}
		if e.IsDirectory() || !e.HasNameStartingWith(metaInfVersions) {
			continue
		}
		rest := strings.TrimPrefix(e.Name(), metaInfVersions)
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			continue
		}
		v, err := strconv.Atoi(rest[:slash])
		if err != nil || v < BaseVersion {
			continue
		}
		seen[v] = struct{}{}
	}
	vi := &versionsInfo{versions: make([]int, 0, len(seen))}
	for v := range seen {
		vi.versions = append(vi.versions, v)
	}
	slices.Sort(vi.versions)
	for _, v := range vi.versions {
		vi.directories = append(vi.directories, metaInfVersions+strconv.Itoa(v)+"/")
	}
	return vi, nil
}
