package utils

import (
	"strings"
	"time"
)

// expiryLayouts are the accepted textual forms for an expiration
// instant. RFC3339 is canonical; the two date(-time) forms match what
// HTML date inputs submit.
var expiryLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseExpiration parses an expiration string into a UTC instant.
// Past instants are accepted; deciding whether they are meaningful is
// the caller's business. Returns ErrInvalidExpiry when no layout
// matches.
func ParseExpiration(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingField
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidExpiry
}
