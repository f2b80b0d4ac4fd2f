package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Timestamp is a point on the campaign timeline, measured in calendar ticks.
// What a tick means (a minute, a day, a round) is up to the Calendar that
// interprets it. Timestamps are totally ordered and compared by value.
type Timestamp int64

// Duration is the distance between two timestamps, in ticks.
type Duration int64

// Compare returns -1, 0 or +1 depending on whether t is before, equal to or
// after u.
func (t Timestamp) Compare(u Timestamp) int {
	switch {
	case t < u:
		return -1
	case t > u:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly earlier than u.
func (t Timestamp) Before(u Timestamp) bool { return t < u }

// After reports whether t is strictly later than u.
func (t Timestamp) After(u Timestamp) bool { return t > u }

// Sub returns the duration t-u.
func (t Timestamp) Sub(u Timestamp) Duration { return Duration(t - u) }

// Add returns t+d. Use a negative duration to move backwards.
func (t Timestamp) Add(d Duration) Timestamp { return t + Timestamp(d) }

// String formats the timestamp as a plain tick count.
func (t Timestamp) String() string { return strconv.FormatInt(int64(t), 10) }

// String formats the duration as a plain tick count.
func (d Duration) String() string { return strconv.FormatInt(int64(d), 10) }

// Calendar converts between timestamps and their human-readable form.
type Calendar interface {
	// Parse reads a timestamp written in the calendar's notation.
	Parse(s string) (Timestamp, error)

	// Format writes t in the calendar's notation.
	Format(t Timestamp) string
}

// TickCalendar is the identity calendar: timestamps are written as plain
// integers.
type TickCalendar struct{}

// Parse reads a decimal tick count.
func (TickCalendar) Parse(s string) (Timestamp, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %q: %v", ErrInvalidEvent, s, err)
	}
	return Timestamp(v), nil
}

// Format writes t as a decimal tick count.
func (TickCalendar) Format(t Timestamp) string { return t.String() }
