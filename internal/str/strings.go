package str

import (
	"strings"
)

// SanitizeLabel reduces a free-form chat handle to something safe to use as
// a backend sub-account label: lowercase, [a-z0-9._-] only, runs of other
// characters collapsed to a single dash.
func SanitizeLabel(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// TruncateLabel cuts s to at most n bytes, trimming a trailing dash.
func TruncateLabel(s string, n int) string {
	if len(s) > n {
		s = s[:n]
	}
	return strings.TrimSuffix(s, "-")
}
