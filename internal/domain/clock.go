package domain

import "time"

// Clock is the engine's sole source of wall-clock time. Tests substitute a
// controllable implementation to drive deadline passage without waiting.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
