package nested

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// DecodeURL decodes percent escapes in s. The decoded bytes must be valid
// UTF-8. Other characters, including '+', are kept as is.
func DecodeURL(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if !utf8.ValidString(decoded) {
		return "", fmt.Errorf("%w: error decoding percent encoded characters in %q", ErrInvalidArgument, s)
	}
	return decoded, nil
}
