// Package dates parses the ISO-8601 strings that cross the storage boundary
// and computes calendar-day differences between them.
package dates

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// DayMillis is one day in milliseconds.
	DayMillis int64 = 24 * 60 * 60 * 1000
	// OneWeek is the minimum width of a progression time axis, in milliseconds.
	OneWeek int64 = 7 * DayMillis
)

var ErrInvalidDate = errors.New("invalid date")

// isoMillis is the updatedAt wire format: UTC with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

var layouts = []string{
	time.DateOnly,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDate accepts date-only strings (UTC midnight) and RFC 3339 timestamps.
// Zone-less date-times are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// ParseTimestamp parses an updatedAt value. It accepts the same inputs as ParseDate.
func ParseTimestamp(s string) (time.Time, error) {
	return ParseDate(s)
}

// Millis returns t as Unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// DaysBetween returns ceil((a - b) / 1 day). Positive means a is later than b.
func DaysBetween(a, b string) (int, error) {
	ta, err := ParseDate(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseDate(b)
	if err != nil {
		return 0, err
	}
	diff := Millis(ta) - Millis(tb)
	return int(math.Ceil(float64(diff) / float64(DayMillis))), nil
}

// FormatISO renders t the way updatedAt is stored.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
