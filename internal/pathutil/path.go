// Package pathutil handles the slash-separated names used inside archives,
// where "." names the root.
package pathutil

import "strings"

// Split returns the parent directory and last element of name. Top-level
// names have parent ".". A trailing slash is ignored.
func Split(name string) (parent, base string) {
	name = strings.TrimSuffix(name, "/")
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return ".", name
	}
	return name[:i], name[i+1:]
}

// Base returns the last element of name, or "." for the root.
func Base(name string) string {
	if name == "" || name == "." {
		return "."
	}
	_, base := Split(name)
	return base
}

// DirPrefix returns the prefix shared by every entry below dir.
func DirPrefix(dir string) string {
	if dir == "." || dir == "" {
		return ""
	}
	return strings.TrimSuffix(dir, "/") + "/"
}
