package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSince turns a --since value into an absolute lower bound. It accepts
// relative ages ("90m", "24h", "7d", "2w"), dates ("2025-06-01") and
// RFC 3339 timestamps. An empty value yields the zero time.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t, nil
	}

	var unit time.Duration
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}
	if unit > 0 {
		n, err := strconv.Atoi(strings.TrimSpace(s[:len(s)-1]))
		if err != nil || n < 0 {
			return time.Time{}, fmt.Errorf("invalid since %q", s)
		}
		return now.Add(-time.Duration(n) * unit), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q: want a duration like 7d, a date or an RFC 3339 time", s)
	}
	return now.Add(-d), nil
}
