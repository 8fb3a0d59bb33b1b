package engine

import "strings"

// MatchURLPattern reports whether url matches pattern, where "*" in the
// pattern matches any run of characters including none. Matching is anchored
// at both ends and case sensitive.
func MatchURLPattern(pattern, url string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == url
	}

	if !strings.HasPrefix(url, parts[0]) {
		return false
	}
	rest := url[len(parts[0]):]

	last := parts[len(parts)-1]
	for _, mid := range parts[1 : len(parts)-1] {
		if mid == "" {
			continue
		}
		idx := strings.Index(rest, mid)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(mid):]
	}

	if last == "" {
		return true
	}
	return strings.HasSuffix(rest, last)
}
