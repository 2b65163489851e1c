package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads and sleeps so polling loops can be
// driven by a fake in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the process wall clock.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manually advanced clock. Sleep advances the current time
// instead of blocking, then invokes OnSleep (if set) so tests can mutate
// the world between polls.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	slept   time.Duration
	OnSleep func(now time.Time)
}

func NewFake(start time.Time) *Fake { return &Fake{now: start} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	if d < 0 {
		d = 0
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.slept += d
	now := f.now
	hook := f.OnSleep
	f.mu.Unlock()
	if hook != nil {
		hook(now)
	}
}

// Advance moves the clock forward without triggering OnSleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Slept returns the total duration passed to Sleep.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}
