package util

import (
	"strconv"
	"strings"
)

// ParseInt parses a base-10 int, tolerating surrounding whitespace.
func ParseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// ParseInt64 parses a base-10 int64, tolerating surrounding whitespace.
func ParseInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
