package control

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/loykin/launchcheck/internal/clock"
)

// ErrCancelled is returned when a run stops because the user cancelled it.
var ErrCancelled = errors.New("testing cancelled by user")

// DefaultPausePoll is how often a paused worker re-checks the flags.
const DefaultPausePoll = time.Second

// RunControl carries the cooperative pause/cancel flags shared between the
// test worker and whatever drives it (API, signal handler, CLI).
// The zero value is ready to use.
type RunControl struct {
	paused    atomic.Bool
	cancelled atomic.Bool
}

func New() *RunControl { return &RunControl{} }

func (c *RunControl) Pause()  { c.paused.Store(true) }
func (c *RunControl) Resume() { c.paused.Store(false) }
func (c *RunControl) Cancel() { c.cancelled.Store(true) }

// Toggle flips the paused flag and reports the new value.
func (c *RunControl) Toggle() bool {
	for {
		old := c.paused.Load()
		if c.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (c *RunControl) Paused() bool    { return c.paused.Load() }
func (c *RunControl) Cancelled() bool { return c.cancelled.Load() }

// Reset clears both flags before a new batch starts.
func (c *RunControl) Reset() {
	c.paused.Store(false)
	c.cancelled.Store(false)
}

// WaitWhilePaused busy-waits with sleep while paused. It returns early when
// the run is cancelled and reports how much clock time was spent paused.
func (c *RunControl) WaitWhilePaused(clk clock.Clock, poll time.Duration) time.Duration {
	if !c.Paused() {
		return 0
	}
	if poll <= 0 {
		poll = DefaultPausePoll
	}
	start := clk.Now()
	for c.Paused() && !c.Cancelled() {
		clk.Sleep(poll)
	}
	return clk.Now().Sub(start)
}
