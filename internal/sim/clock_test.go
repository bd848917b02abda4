package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockAdvance(t *testing.T) {
	c := NewClock(1)

	t0 := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	v := c.Advance(t0)
	assert.Equal(t, t0, v, "first advance anchors virtual time")

	v = c.Advance(t0.Add(time.Second))
	assert.Equal(t, t0.Add(time.Second), v)
}

func TestClockMultiplierScalesElapsed(t *testing.T) {
	c := NewClock(10)

	t0 := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	c.Advance(t0)
	v := c.Advance(t0.Add(time.Second))

	assert.Equal(t, t0.Add(10*time.Second), v)
}

func TestClockSetMultiplierClamps(t *testing.T) {
	c := NewClock(1)

	assert.InDelta(t, 0.1, c.SetMultiplier(0.05), 1e-12)
	assert.InDelta(t, 100.0, c.SetMultiplier(500), 1e-12)
	assert.InDelta(t, 2.5, c.SetMultiplier(2.5), 1e-12)
}

// TestClockMultiplierChangeMidStream verifies a multiplier change applies to
// the next delta only, without resetting accumulated virtual time.
func TestClockMultiplierChangeMidStream(t *testing.T) {
	c := NewClock(1)

	t0 := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	c.Advance(t0)
	c.Advance(t0.Add(time.Second)) // virtual: t0+1s

	c.SetMultiplier(5)
	v := c.Advance(t0.Add(2 * time.Second)) // +1s real at 5x

	assert.Equal(t, t0.Add(6*time.Second), v)
}

func TestClockNonMonotonicWallGuard(t *testing.T) {
	c := NewClock(1)

	t0 := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	c.Advance(t0)
	v := c.Advance(t0.Add(-time.Hour))

	assert.Equal(t, t0, v, "backwards wall clock must not rewind virtual time")
}

func TestClockReset(t *testing.T) {
	c := NewClock(4)

	t0 := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	c.Advance(t0)
	c.Advance(t0.Add(time.Minute))

	c.Reset()
	assert.True(t, c.Virtual().IsZero())
	assert.InDelta(t, 4.0, c.Multiplier(), 1e-12, "reset keeps the multiplier")

	t1 := t0.Add(time.Hour)
	assert.Equal(t, t1, c.Advance(t1), "advance after reset re-anchors")
}
