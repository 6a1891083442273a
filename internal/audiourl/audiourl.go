// Package audiourl turns audio references into fetchable absolute URLs.
package audiourl

import (
	"net/url"
	"path"
	"strings"
	"unicode/utf8"
)

// IsAbsolute reports whether ref is already a hosted http(s) URL.
func IsAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Resolve normalizes an audio reference against the site base URL.
//
// Absolute references are assumed to be correctly encoded already and are
// returned untouched. Site-relative references are joined with siteBaseURL and
// every path segment is decoded then re-encoded, so already-escaped segments are
// not escaped twice. "." and ".." segments are collapsed as a browser would. If the joined URL cannot be taken apart the unencoded join
// is returned instead of failing.
func Resolve(ref, siteBaseURL string) string {
	if IsAbsolute(ref) {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		return ref
	}

	joined := strings.TrimRight(siteBaseURL, "/") + ref

	schemeEnd := strings.Index(joined, "://")
	if schemeEnd < 0 {
		return joined
	}
	pathStart := strings.Index(joined[schemeEnd+3:], "/")
	if pathStart < 0 {
		return joined
	}
	pathStart += schemeEnd + 3

	origin := joined[:pathStart]
	if _, err := url.Parse(origin); err != nil {
		return joined
	}

	rest := joined[pathStart:]
	suffix := ""
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest, suffix = rest[:i], rest[i:]
	}

	segments := removeDotSegments(strings.Split(rest, "/"))
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		segments[i] = encodeSegment(seg)
	}

	return origin + strings.Join(segments, "/") + suffix
}

// BaseName returns the file name of a reference without its extension.
func BaseName(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(p)
	if base == "/" || base == "." {
		return ""
	}
	name := strings.TrimSuffix(base, path.Ext(base))
	if name == "" {
		return base
	}
	return name
}

// removeDotSegments drops "." and applies ".." to a path split on "/".
// segments[0] is the empty root and is never removed; a trailing dot segment
// leaves a trailing slash.
func removeDotSegments(segments []string) []string {
	out := make([]string, 0, len(segments))
	for i, seg := range segments {
		last := i == len(segments)-1
		switch seg {
		case ".":
		case "..":
			if len(out) > 1 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
			continue
		}
		if last {
			out = append(out, "")
		}
	}
	return out
}

func encodeSegment(seg string) string {
	decoded, err := url.PathUnescape(seg)
	if err != nil || !utf8.ValidString(decoded) {
		return escapeComponent(seg)
	}
	return escapeComponent(decoded)
}

// escapeComponent percent-encodes everything except the URI component
// unreserved set: A-Z a-z 0-9 - _ . ! ~ * ' ( )
func escapeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
