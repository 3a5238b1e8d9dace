package table

import (
	"strings"
	"time"
)

// DateLayouts are tried in order by ParseDate. Day-first patterns come before
// month-first ones, so ambiguous dates such as 05/03/2024 resolve to 5 March.
var DateLayouts = []string{
	"2006-1-2",
	"2-1-2006",
	"1-2-2006",
	"2006/1/2",
	"2/1/2006",
	"1/2/2006",
	"2006.1.2",
	"2.1.2006",
	"1.2.2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006-1-2 15:04:05",
	"2.1.2006 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// ParseDate parses s with the first matching layout in DateLayouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
