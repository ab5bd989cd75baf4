// Package localtime handles the zone-less wall-clock timestamps exchanged
// with API callers ("2006-01-02T15:04:05"). Values are carried as time.Time
// in UTC so that arithmetic never crosses a DST transition.
package localtime

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical wire format.
const Layout = "2006-01-02T15:04:05"

// DateLayout formats calendar days.
const DateLayout = "2006-01-02"

var inputLayouts = []string{
	Layout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// Parse accepts the canonical layout, the same without seconds, a space
// instead of "T", or a bare date (midnight). Zone offsets and fractional
// seconds are rejected.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inputLayouts {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q: expected YYYY-MM-DDTHH:MM:SS", s)
}

// Format renders t in the canonical layout.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Naive re-labels the wall clock of t as UTC, dropping its zone.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Now is the current local wall-clock time, truncated to the second.
func Now() time.Time {
	return Naive(time.Now()).Truncate(time.Second)
}

// Day returns midnight of t's calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CeilMinute rounds t up to the next whole minute unless it already is one.
func CeilMinute(t time.Time) time.Time {
	if f := t.Truncate(time.Minute); !f.Equal(t) {
		return f.Add(time.Minute)
	}
	return t
}

// Time is a time.Time that marshals in the canonical layout.
type Time struct {
	time.Time
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + Format(t.Time) + `"`), nil
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
