package util

import (
	"strconv"
	"strings"
	"time"
)

// layouts accepted for timestamps, tried in order. Zone-less layouts are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime tries the supported layouts and unix seconds. Returns (t, true) if any worked.
// The result is always in UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseOptionalTime returns nil for an empty string, the parsed instant otherwise,
// and ok=false when s is non-empty but unparseable.
func ParseOptionalTime(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	t, ok := ParseTime(s)
	if !ok {
		return nil, false
	}
	return &t, true
}
