package beat

import (
	"math"
	"time"
)

// boundaryEpsilon absorbs binary rounding in the accumulated phase.
// Twenty 50ms steps at 60 bpm sum to 1.0 mathematically but may land a few
// ulps below it in float64.
const boundaryEpsilon = 1e-9

// PhaseClock accumulates beat phase for one participant.
//
// Phase grows by dt*bpm/60 on every Advance. When it reaches 1 the clock
// reports a trigger and drops the integer part, so after a trigger the
// phase is always in [0, 1).
//
// Crossing several boundaries in one Advance (coarse steps, high bpm)
// yields a single trigger. Beats are not queued.
type PhaseClock struct {
	phase float64
}

// NewPhaseClock returns a clock at phase 0.
func NewPhaseClock() *PhaseClock {
	return &PhaseClock{}
}

// Advance moves the clock forward by dt at the given heart rate and reports
// whether a beat boundary was crossed.
//
// Non-positive dt and negative, NaN or infinite bpm leave the phase
// untouched and never trigger.
func (c *PhaseClock) Advance(dt time.Duration, bpm float64) bool {
	if dt <= 0 || !(bpm > 0) || math.IsInf(bpm, 0) {
		return false
	}

	c.phase += dt.Seconds() * bpm / 60
	if c.phase < 1-boundaryEpsilon {
		return false
	}

	c.phase -= math.Floor(c.phase + boundaryEpsilon)
	if c.phase < 0 {
		c.phase = 0
	}
	return true
}

// Phase returns the current fractional progress toward the next beat.
func (c *PhaseClock) Phase() float64 {
	return c.phase
}
