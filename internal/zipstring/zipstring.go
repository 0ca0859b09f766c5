// Package zipstring hashes and compares zip entry names as stored in an archive.
//
// Hashes fold UTF-16 code units the same way java.lang.String.hashCode does,
// so hashes computed from query strings and from raw UTF-8 name bytes agree.
package zipstring

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/meigma/nestedjar/datablock"
	"github.com/meigma/nestedjar/internal/ziperr"
)

const (
	emptyHash      int32 = 0
	emptySlashHash int32 = '/'
)

// Hash folds s into initial. When addEndSlash is set and s does not already
// end with '/', a trailing '/' is folded in as well so that "dir" and "dir/"
// hash identically.
//
// An empty s hashes to the hash of "" or "/" regardless of initial.
func Hash(initial int32, s string, addEndSlash bool) int32 {
	if s == "" {
		return emptyOrSlash(addEndSlash)
	}
	h := initial
	for _, r := range s {
		h = foldRune(h, r)
	}
	if addEndSlash && s[len(s)-1] != '/' {
		h = 31*h + '/'
	}
	return h
}

// HashBytes hashes raw UTF-8 name bytes as Hash(0, string(name), addEndSlash) would.
func HashBytes(name []byte, addEndSlash bool) int32 {
	if len(name) == 0 {
		return emptyOrSlash(addEndSlash)
	}
	var h int32
	last := rune(0)
	for len(name) > 0 {
		r, size := utf8.DecodeRune(name)
		h = foldRune(h, r)
		last = r
		name = name[size:]
	}
	if addEndSlash && last != '/' {
		h = 31*h + '/'
	}
	return h
}

func foldRune(h int32, r rune) int32 {
	if r > 0xFFFF {
		hi, lo := utf16.EncodeRune(r)
		h = 31*h + hi
		return 31*h + lo
	}
	return 31*h + r
}

func emptyOrSlash(addEndSlash bool) int32 {
	if addEndSlash {
		return emptySlashHash
	}
	return emptyHash
}

// Matches reports whether name equals query. With addSlash, name may also
// equal query followed by '/'. An empty query matches every name.
func Matches(name []byte, query string, addSlash bool) bool {
	if query == "" {
		return true
	}
	if string(name) == query {
		return true
	}
	return addSlash && !strings.HasSuffix(query, "/") &&
		len(name) == len(query)+1 && name[len(name)-1] == '/' && string(name[:len(query)]) == query
}

// StartsWith returns the number of name bytes consumed by prefix, or -1 if
// name does not start with prefix.
func StartsWith(name []byte, prefix string) int {
	if !bytes.HasPrefix(name, []byte(prefix)) {
		return -1
	}
	return len(prefix)
}

// ReadName reads length name bytes at pos.
func ReadName(b datablock.DataBlock, pos int64, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: negative name length %d", ziperr.ErrInvalidArgument, length)
	}
	buf := make([]byte, length)
	if err := datablock.ReadFully(b, buf, pos); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadString reads length bytes at pos as a string.
func ReadString(b datablock.DataBlock, pos, length int64) (string, error) {
	if length > math.MaxInt32 {
		return "", fmt.Errorf("%w: string is too long to read", ziperr.ErrSizeOverflow)
	}
	buf, err := ReadName(b, pos, int(length))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
