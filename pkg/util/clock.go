package util

import "time"

// Clock abstracts time for block pacing and tests.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// FakeClock is a manually advanced clock for deterministic tests.
type FakeClock struct {
	Current time.Time
}

func (f *FakeClock) Now() time.Time { return f.Current }

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.Current.Add(d)
	return ch
}

// Advance moves the clock forward.
func (f *FakeClock) Advance(d time.Duration) { f.Current = f.Current.Add(d) }
