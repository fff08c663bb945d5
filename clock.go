package instrumentz

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Clock is the time source used by the engine.
type Clock = clockz.Clock

// RealClock is the production clock.
var RealClock Clock = clockz.RealClock

// Tick is the unit spans are measured in. One second is 10,000 ticks.
const Tick = 100 * time.Microsecond

// Ticks converts a duration into span time units, truncating.
func Ticks(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / Tick)
}

// VirtualClock is a controllable clock for deterministic timing.
// While frozen, Now returns the same instant until advanced.
// While running, it follows its base clock plus any accumulated skips.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for readability
type VirtualClock struct {
	clockz.Clock
	frozenAt time.Time
	skew     time.Duration
	last     time.Time
	frozen   bool
	mu       sync.Mutex
}

// NewVirtualClock wraps base in a controllable clock. A nil base uses the real clock.
func NewVirtualClock(base clockz.Clock) *VirtualClock {
	if base == nil {
		base = clockz.RealClock
	}
	return &VirtualClock{Clock: base}
}

// Now returns the current virtual time. It never goes backwards.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *VirtualClock) nowLocked() time.Time {
	var now time.Time
	if c.frozen {
		now = c.frozenAt
	} else {
		now = c.Clock.Now().Add(c.skew)
	}
	if now.Before(c.last) {
		now = c.last
	}
	c.last = now
	return now
}

// Since returns the virtual time elapsed since t.
func (c *VirtualClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Freeze stops time at the current instant.
func (c *VirtualClock) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return
	}
	c.frozenAt = c.nowLocked()
	c.frozen = true
}

// Unfreeze resumes time from the frozen instant.
func (c *VirtualClock) Unfreeze() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.frozen {
		return
	}
	c.skew = c.frozenAt.Sub(c.Clock.Now())
	c.frozen = false
}

// Frozen reports whether the clock is frozen.
func (c *VirtualClock) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// Advance moves virtual time forward by d. Negative values are ignored.
func (c *VirtualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		c.frozenAt = c.frozenAt.Add(d)
		return
	}
	c.skew += d
}

// Skip is an alias for Advance.
func (c *VirtualClock) Skip(d time.Duration) {
	c.Advance(d)
}
