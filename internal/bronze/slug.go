package bronze

import (
	"regexp"
	"strings"
	"time"
)

var slugRe = regexp.MustCompile(`[^a-z0-9_-]+`)

// TimestampLayout is RFC 3339 UTC at second precision with ":" replaced by "-".
const TimestampLayout = "2006-01-02T15-04-05Z"

// Slug lowercases s and replaces every run of characters outside [a-z0-9_-]
// with a single underscore.
func Slug(s string) string {
	s = slugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// TimestampFolder returns the extracted_at=<ts> path segment for t.
func TimestampFolder(t time.Time) string {
	return "extracted_at=" + t.UTC().Format(TimestampLayout)
}

// ParseTimestampFolder reverses TimestampFolder.
func ParseTimestampFolder(segment string) (time.Time, bool) {
	v, ok := strings.CutPrefix(segment, "extracted_at=")
	if !ok {
		return time.Time{}, false
	}
	v = strings.TrimSuffix(v, ".yml")
	t, err := time.Parse(TimestampLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NormalizeExtension returns ext lowercased without the leading dot ("bin" when empty).
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return "bin"
	}
	return slugRe.ReplaceAllString(ext, "")
}
