// Package sim owns virtual time and drives propagation and scoring at
// independent cadences, decoupled from the presentation frame rate.
package sim

import "time"

// Time multiplier bounds. Changes outside this range clamp rather than error.
const (
	MinMultiplier = 0.1
	MaxMultiplier = 100.0
)

// Clock is the simulation clock: virtual time advanced by real elapsed time
// scaled by the multiplier. Owned exclusively by the Engine and mutated only
// on the control path.
type Clock struct {
	virtual    time.Time
	lastWall   time.Time
	multiplier float64
	started    bool
}

// NewClock creates a clock with the given multiplier (clamped).
func NewClock(multiplier float64) Clock {
	c := Clock{}
	c.SetMultiplier(multiplier)
	return c
}

// Advance moves virtual time forward by (now - lastWall) * multiplier and
// returns the new virtual time. The first call after construction or Reset
// anchors virtual time to now.
func (c *Clock) Advance(now time.Time) time.Time {
	if !c.started {
		c.virtual = now
		c.lastWall = now
		c.started = true
		return c.virtual
	}

	elapsed := now.Sub(c.lastWall)
	if elapsed < 0 {
		elapsed = 0 // wall clock must be monotonic; guard against misuse
	}
	c.virtual = c.virtual.Add(time.Duration(float64(elapsed) * c.multiplier))
	c.lastWall = now
	return c.virtual
}

// Virtual returns the current virtual time.
func (c *Clock) Virtual() time.Time {
	return c.virtual
}

// Multiplier returns the current time acceleration factor.
func (c *Clock) Multiplier() float64 {
	return c.multiplier
}

// SetMultiplier sets the acceleration factor, clamped to
// [MinMultiplier, MaxMultiplier], and returns the applied value. Takes
// effect on the next Advance; elapsed accumulators are not reset.
func (c *Clock) SetMultiplier(v float64) float64 {
	if v < MinMultiplier {
		v = MinMultiplier
	} else if v > MaxMultiplier {
		v = MaxMultiplier
	}
	c.multiplier = v
	return v
}

// Reset clears the clock for a new tracking session. The next Advance
// re-anchors virtual time.
func (c *Clock) Reset() {
	c.virtual = time.Time{}
	c.lastWall = time.Time{}
	c.started = false
}
