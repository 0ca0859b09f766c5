package jar

import (
	"errors"
	"path"
	"strings"

	"github.com/meigma/nestedjar/zipcontent"
)

// signersInfo maps the lookup index of each signed entry to the names of
// the signers whose signature file lists it.
type signersInfo struct {
	signers map[int][]string
}

func (f *File) signersInfo() (*signersInfo, error) {
	c, err := f.content()
	if err != nil {
		return nil, err
	}
	if !c.HasJarSignatureFile() {
		return &signersInfo{}, nil
	}
	return zipcontent.GetInfo(c, f.loadSignersInfo)
}

// isSignatureFileName reports whether name is a META-INF/*.SF file.
func isSignatureFileName(name string) bool {
	if !strings.HasPrefix(name, metaInf) || strings.Contains(name[len(metaInf):], "/") {
		return false
	}
	return strings.EqualFold(path.Ext(name), ".SF")
}

func (f *File) loadSignersInfo(c *zipcontent.Content) (*signersInfo, error) {
	si := &signersInfo{signers: make(map[int][]string)}
	for sf, err := range c.Entries() {
		if err != nil {
			return nil, err
		}
		if sf.IsDirectory() || !isSignatureFileName(sf.Name()) {
			continue
		}
		data, err := f.readContentEntry(sf, sf.Name())
		if err != nil {
			return nil, err
		}
		m, err := ParseManifest(data)
		if err != nil {
			return nil, err
		}
		signer := strings.TrimSuffix(path.Base(sf.Name()), path.Ext(sf.Name()))
		for _, name := range m.Sections() {
			ce, err := c.Entry(name)
			if errors.Is(err, zipcontent.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			si.signers[ce.LookupIndex()] = append(si.signers[ce.LookupIndex()], signer)
		}
	}
	f.log().Debug("loaded jar signers", "name", f.name, "signed", len(si.signers))
	return si, nil
}
