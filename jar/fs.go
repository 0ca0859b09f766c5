package jar

import (
	"errors"
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/meigma/nestedjar/internal/file"
	"github.com/meigma/nestedjar/internal/pathutil"
	"github.com/meigma/nestedjar/zipcontent"
)

// FS is a read-only fs.FS view of a File.
//
// Directories are those stored in the jar plus the parents of every entry.
// Files resolve through File.Entry, so multi-release entries are served
// at their base name. Content is checked against its CRC-32 at the end of
// each read; a mismatch is reported as ErrChecksum.
type FS struct {
	f *File
}

// FS returns the fs.FS view of f. It is valid until f is closed.
func (f *File) FS() *FS {
	return &FS{f: f}
}

var (
	_ fs.FS         = (*FS)(nil)
	_ fs.StatFS     = (*FS)(nil)
	_ fs.ReadFileFS = (*FS)(nil)
	_ fs.ReadDirFS  = (*FS)(nil)
)

// dirTree holds the directory structure of a zip content.
type dirTree struct {
	dirs  map[string]*treeDir
	files map[string]struct{}
}

type treeDir struct {
	modTime  time.Time
	children []treeNode
}

type treeNode struct {
	name string
	dir  bool
}

func loadDirTree(c *zipcontent.Content) (*dirTree, error) {
	t := &dirTree{
		dirs:  map[string]*treeDir{".": {}},
		files: make(map[string]struct{}),
	}
	for e, err := range c.Entries() {
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(e.Name(), "/")
		if name == "" || !fs.ValidPath(name) {
			continue
		}
		if e.IsDirectory() {
			t.addDir(name).modTime = e.Modified()
			continue
		}
		if _, ok := t.dirs[name]; ok {
			continue
		}
		if _, ok := t.files[name]; ok {
			continue
		}
		t.files[name] = struct{}{}
		t.link(name, false)
	}
	for _, d := range t.dirs {
		slices.SortFunc(d.children, func(a, b treeNode) int {
			return strings.Compare(a.name, b.name)
		})
	}
	return t, nil
}

func (t *dirTree) addDir(name string) *treeDir {
	if d, ok := t.dirs[name]; ok {
		return d
	}
	d := &treeDir{}
	t.dirs[name] = d
	t.link(name, true)
	return d
}

func (t *dirTree) link(name string, dir bool) {
	parent, base := pathutil.Split(name)
	p := t.addDir(parent)
	p.children = append(p.children, treeNode{name: base, dir: dir})
}

func (fsys *FS) tree() (*dirTree, error) {
	c, err := fsys.f.content()
	if err != nil {
		return nil, err
	}
	return zipcontent.GetInfo(c, loadDirTree)
}

// entry returns the file entry for name, or nil if name is not a file.
func (fsys *FS) entry(name string) (*Entry, error) {
	e, err := fsys.f.Entry(name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil //nolint:nilnil // not a file
	}
	if err != nil {
		return nil, err
	}
	if e.IsDirectory() {
		return nil, nil //nolint:nilnil // not a file
	}
	return e, nil
}

func entryInfo(e *Entry, name string) fs.FileInfo {
	return file.NewInfo(pathutil.Base(name), e.Size(), e.Modified())
}

func dirInfo(name string, d *treeDir) fs.FileInfo {
	if name != "." {
		name = pathutil.Base(name)
	}
	return file.NewDirInfo(name, d.modTime)
}

// Open implements fs.FS.
func (fsys *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	t, err := fsys.tree()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if d, ok := t.dirs[name]; ok {
		return &openDir{fsys: fsys, tree: t, name: name, dir: d}, nil
	}
	e, err := fsys.entry(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if e == nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	r, err := fsys.f.Open(e)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &openFile{
		name:    name,
		info:    entryInfo(e, name),
		r:       r,
		checked: file.NewCheckedReader(r, e.Size(), e.CRC32()),
	}, nil
}

// Stat implements fs.StatFS.
func (fsys *FS) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	t, err := fsys.tree()
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	if d, ok := t.dirs[name]; ok {
		return dirInfo(name, d), nil
	}
	e, err := fsys.entry(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	if e == nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return entryInfo(e, name), nil
}

// ReadFile implements fs.ReadFileFS.
func (fsys *FS) ReadFile(name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) {
			pe.Op = "readfile"
		}
		return nil, err
	}
	defer f.Close()
	if _, ok := f.(*openDir); ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

// ReadDir implements fs.ReadDirFS. Entries are sorted by name.
func (fsys *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	t, err := fsys.tree()
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	d, ok := t.dirs[name]
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return fsys.dirEntries(t, name, d.children)
}

func (fsys *FS) dirEntries(t *dirTree, dir string, nodes []treeNode) ([]fs.DirEntry, error) {
	prefix := pathutil.DirPrefix(dir)
	entries := make([]fs.DirEntry, 0, len(nodes))
	for _, n := range nodes {
		full := prefix + n.name
		if n.dir {
			entries = append(entries, file.NewDirEntry(dirInfo(full, t.dirs[full])))
			continue
		}
		e, err := fsys.entry(full)
		if err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: dir, Err: err}
		}
		if e == nil {
			continue
		}
		entries = append(entries, file.NewDirEntry(entryInfo(e, full)))
	}
	return entries, nil
}

// openFile is an open regular file of an FS.
type openFile struct {
	name    string
	info    fs.FileInfo
	r       *EntryReader
	checked *file.CheckedReader
}

func (f *openFile) Stat() (fs.FileInfo, error) {
	return f.info, nil
}

func (f *openFile) Read(p []byte) (int, error) {
	n, err := f.checked.Read(p)
	if err != nil && err != io.EOF {
		return n, &fs.PathError{Op: "read", Path: f.name, Err: err}
	}
	return n, err
}

func (f *openFile) Close() error {
	return f.r.Close()
}

// openDir is an open directory of an FS.
type openDir struct {
	fsys   *FS
	tree   *dirTree
	name   string
	dir    *treeDir
	offset int
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	return dirInfo(d.name, d.dir), nil
}

func (d *openDir) Close() error {
	return nil
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	nodes := d.dir.children[d.offset:]
	if n > 0 && len(nodes) == 0 {
		return nil, io.EOF
	}
	if n > 0 && len(nodes) > n {
		nodes = nodes[:n]
	}
	d.offset += len(nodes)
	return d.fsys.dirEntries(d.tree, d.name, nodes)
}
