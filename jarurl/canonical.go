package jarurl

import "strings"

// CanonicalizeAfter canonicalizes the part of path from pos on, leaving the
// prefix untouched. Paths without "./" that do not end in '.' are returned
// as is.
func CanonicalizeAfter(path string, pos int) string {
	if pos < 0 || pos >= len(path) {
		return path
	}
	after := path[pos:]
	if !strings.Contains(after, "./") && !strings.HasSuffix(path, ".") {
		return path
	}
	return path[:pos] + Canonicalize(after)
}

// Canonicalize removes "." and ".." segments from a slash separated path.
// A ".." with nothing before it is dropped rather than reported.
func Canonicalize(path string) string {
	path = removeEmbeddedSlashDotDotSlash(path)
	path = removeEmbeddedSlashDotSlash(path)
	path = removeTrailingSlashDotDot(path)
	path = removeTrailingSlashDot(path)
	return path
}

func removeEmbeddedSlashDotDotSlash(path string) string {
	for {
		i := strings.Index(path, "/../")
		if i < 0 {
			return path
		}
		after := path[i+3:]
		if prior := strings.LastIndexByte(path[:i], '/'); prior >= 0 {
			path = path[:prior] + after
		} else {
			path = after
		}
	}
}

func removeEmbeddedSlashDotSlash(path string) string {
	for {
		i := strings.Index(path, "/./")
		if i < 0 {
			return path
		}
		path = path[:i] + path[i+2:]
	}
}

func removeTrailingSlashDotDot(path string) string {
	for strings.HasSuffix(path, "/..") {
		i := strings.Index(path, "/..")
		if prior := strings.LastIndexByte(path[:i], '/'); prior >= 0 {
			path = path[:prior+1]
		} else {
			path = path[:i]
		}
	}
	return path
}

func removeTrailingSlashDot(path string) string {
	if strings.HasSuffix(path, "/.") {
		return path[:len(path)-1]
	}
	return path
}
