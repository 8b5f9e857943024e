package appointment

import (
	"fmt"
	"time"
)

// SlotDuration is the fixed slot length in minutes.
const SlotDuration Clock = 30

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock parses a 24-hour "HH:MM" value.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return NewClock(t.Hour(), t.Minute()), nil
}

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) Add(d Clock) Clock { return c + d }

// OnGrid reports whether c falls on a slot boundary.
func (c Clock) OnGrid() bool {
	return c%SlotDuration == 0
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Duration converts c to an offset from midnight.
func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

// ParseDate parses a "YYYY-MM-DD" calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}

// ISOWeekday maps a date to 1 (Monday) .. 7 (Sunday).
func ISOWeekday(d time.Time) int {
	wd := int(d.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func truncateDate(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}
