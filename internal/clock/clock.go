// Package clock provides the "now" source used by every calculator entry point.
package clock

import "time"

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant. Tests use it to pin "now".
type Fixed time.Time

// Now returns the pinned instant.
func (f Fixed) Now() time.Time { return time.Time(f) }
