package sensor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidFilter marks a malformed filter supplied by a caller
var ErrInvalidFilter = errors.New("invalid filter")

// DateLayout is the accepted calendar date format
const DateLayout = "2006-01-02"

// DateFilter restricts readings to one calendar day in UTC
type DateFilter struct {
	Day time.Time // midnight UTC
}

// ParseDateFilter parses a YYYY-MM-DD date. An empty string yields a nil
// filter and no error.
func ParseDateFilter(s string) (*DateFilter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	day, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q must be formatted as YYYY-MM-DD", ErrInvalidFilter, s)
	}
	return &DateFilter{Day: day.UTC()}, nil
}

// NewDateFilter returns the filter for the UTC day containing t
func NewDateFilter(t time.Time) *DateFilter {
	t = t.UTC()
	return &DateFilter{Day: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// Range returns the half-open interval [start, end) covered by the filter
func (f *DateFilter) Range() (start, end time.Time) {
	return f.Day, f.Day.AddDate(0, 0, 1)
}

// Contains reports whether t falls on the filter's day
func (f *DateFilter) Contains(t time.Time) bool {
	start, end := f.Range()
	return !t.Before(start) && t.Before(end)
}

func (f *DateFilter) String() string {
	if f == nil {
		return ""
	}
	return f.Day.Format(DateLayout)
}
