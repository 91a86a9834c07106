// Package daterange turns calendar dates into millisecond query bounds.
package daterange

import (
	"time"
	_ "time/tzdata"

	"github.com/pkg/errors"
)

const (
	dateLayout = "2006-01-02"

	// DefaultTimezone zone the dashboard dates are interpreted in.
	DefaultTimezone = "Asia/Dubai"
)

// ErrInvertedRange is returned when the end date precedes the start date.
var ErrInvertedRange = errors.New("end date is before start date")

// Range inclusive time interval covering whole calendar days.
type Range struct {
	Start time.Time
	End   time.Time
}

// LoadLocation resolves a zone name, falling back to DefaultTimezone when empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown timezone %s", name)
	}
	return loc, nil
}

// Parse builds the range from midnight of startDate to the last millisecond
// of endDate, both YYYY-MM-DD in loc. A nil loc means UTC.
func Parse(startDate, endDate string, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}

	start, err := time.ParseInLocation(dateLayout, startDate, loc)
	if err != nil {
		return Range{}, errors.Wrapf(err, "invalid start date %q, expected YYYY-MM-DD", startDate)
	}
	end, err := time.ParseInLocation(dateLayout, endDate, loc)
	if err != nil {
		return Range{}, errors.Wrapf(err, "invalid end date %q, expected YYYY-MM-DD", endDate)
	}
	if end.Before(start) {
		return Range{}, errors.Wrapf(ErrInvertedRange, "%s > %s", startDate, endDate)
	}

	return Range{
		Start: start,
		End:   end.AddDate(0, 0, 1).Add(-time.Millisecond),
	}, nil
}

// StartMillis returns the range start in epoch milliseconds.
func (r Range) StartMillis() int64 {
	return r.Start.UnixMilli()
}

// EndMillis returns the range end in epoch milliseconds.
func (r Range) EndMillis() int64 {
	return r.End.UnixMilli()
}

// Days returns the number of calendar days covered.
func (r Range) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start)/(24*time.Hour)) + 1
}

// Contains reports whether ts (epoch ms) lies in the range.
func (r Range) Contains(ts int64) bool {
	return ts >= r.StartMillis() && ts <= r.EndMillis()
}
