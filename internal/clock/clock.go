package clock

import "time"

// Clock abstracts wall-clock reads so auth skew checks and persistence
// timestamps can be pinned in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Fixed returns a Clock frozen at the given instant.
func Fixed(at time.Time) Clock { return fixedClock{at: at} }

type fixedClock struct{ at time.Time }

func (f fixedClock) Now() time.Time { return f.at }
