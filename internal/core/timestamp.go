package core

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for server timestamps, tried in order after any
// missing zone has been filled in.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02Z07:00",
}

// ParseTimestamp parses a server timestamp. Values without a timezone
// suffix are treated as UTC. An empty string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	if !hasZone(s) {
		s += "Z"
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, lastErr)
}

// hasZone reports whether s ends in Z or a numeric offset after the time part.
func hasZone(s string) bool {
	if strings.HasSuffix(s, "Z") {
		return true
	}
	sep := strings.IndexAny(s, "T ")
	if sep < 0 {
		return false
	}
	clock := s[sep+1:]
	return strings.ContainsAny(clock, "+-")
}
