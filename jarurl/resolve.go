package jarurl

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/meigma/nestedjar/nested"
)

// Resolve resolves spec against the jar URL context and returns the
// resulting jar URL.
//
// An absolute spec starts with "jar:", must contain "!/" and must carry a
// well formed inner URL; context is ignored for it. A spec of only a
// fragment keeps the path of context. A spec starting with '/' replaces
// everything after the separator of context, and any other spec replaces
// the last segment of context. Relative results are canonicalized after
// the separator.
func Resolve(context, spec string) (string, error) {
	path, fragment, hasFragment := strings.Cut(spec, "#")
	if rest, ok := cutScheme(path); ok {
		resolved, err := resolveAbsolute(spec, rest)
		if err != nil {
			return "", err
		}
		return withFragment(resolved, fragment, hasFragment), nil
	}

	contextPath, ok := cutScheme(context)
	if !ok {
		return "", fmt.Errorf("%w: context %q is not a %s url", ErrInvalidArgument, context, Scheme)
	}
	contextPath, _, _ = strings.Cut(contextPath, "#")

	var resolved string
	switch {
	case path == "" && hasFragment:
		resolved = contextPath
	case strings.HasPrefix(path, "/"):
		i := IndexOfSeparator(contextPath)
		if i < 0 {
			return "", fmt.Errorf("%w: malformed context url %q: no %s", ErrInvalidArgument, context, Separator)
		}
		resolved = contextPath[:i+1] + path
	default:
		i := strings.LastIndexByte(contextPath, '/')
		if i < 0 {
			return "", fmt.Errorf("%w: malformed context url %q", ErrInvalidArgument, context)
		}
		resolved = contextPath[:i+1] + path
	}
	resolved = CanonicalizeAfter(resolved, IndexOfSeparator(resolved)+1)
	return withFragment(resolved, fragment, hasFragment), nil
}

func resolveAbsolute(spec, rest string) (string, error) {
	if _, ok := cutScheme(rest); ok {
		return "", fmt.Errorf("%w: nested jar urls are not supported: %q", ErrUnsupported, spec)
	}
	i := IndexOfSeparator(rest)
	if i < 0 {
		return "", fmt.Errorf("%w: no %s in spec %q", ErrInvalidArgument, Separator, spec)
	}
	if err := checkInnerURL(rest[:i]); err != nil {
		return "", fmt.Errorf("invalid url %q: %w", spec, err)
	}
	return rest, nil
}

func checkInnerURL(inner string) error {
	if _, err := trimNestedScheme(inner); err == nil {
		_, err := nested.FromURL(inner)
		return err
	}
	u, err := url.Parse(inner)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: inner url %q has no scheme", ErrInvalidArgument, inner)
	}
	return nil
}

func withFragment(path, fragment string, hasFragment bool) string {
	s := schemePrefix + path
	if hasFragment {
		s += "#" + fragment
	}
	return s
}
