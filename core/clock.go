package core

import "time"

// Clock provides the current instant. Business code never calls time.Now directly.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c).UTC() }

// Today returns the calendar date of clock's current instant in loc.
func Today(clock Clock, loc *time.Location) Date {
	return DateOf(clock.Now(), loc)
}
