package beat

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseClock_StartsAtZero(t *testing.T) {
	c := NewPhaseClock()
	assert.Equal(t, 0.0, c.Phase())
}

func TestPhaseClock_OneBeatPerSecondAt60BPM(t *testing.T) {
	c := NewPhaseClock()

	triggers := 0
	for i := 0; i < 20; i++ {
		if c.Advance(50*time.Millisecond, 60) {
			triggers++
			assert.Equal(t, 19, i, "trigger should land on the 20th step")
		}
	}

	assert.Equal(t, 1, triggers)
	assert.GreaterOrEqual(t, c.Phase(), 0.0)
	assert.Less(t, c.Phase(), 1.0)
}

func TestPhaseClock_CumulativeOneBeatTriggersOnce(t *testing.T) {
	tests := []struct {
		name  string
		bpm   float64
		step  time.Duration
		steps int
	}{
		{"60bpm_50ms", 60, 50 * time.Millisecond, 20},
		{"120bpm_50ms", 120, 50 * time.Millisecond, 10},
		{"75bpm_100ms", 75, 100 * time.Millisecond, 8},
		{"30bpm_250ms", 30, 250 * time.Millisecond, 8},
		{"600bpm_10ms", 600, 10 * time.Millisecond, 10},
		{"60bpm_single_second", 60, time.Second, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPhaseClock()
			triggers := 0
			for i := 0; i < tt.steps; i++ {
				if c.Advance(tt.step, tt.bpm) {
					triggers++
				}
			}
			assert.Equal(t, 1, triggers)
			assert.GreaterOrEqual(t, c.Phase(), 0.0)
			assert.Less(t, c.Phase(), 1.0)
		})
	}
}

func TestPhaseClock_ZeroBPMNeverTriggers(t *testing.T) {
	c := NewPhaseClock()
	for i := 0; i < 10000; i++ {
		require.False(t, c.Advance(time.Second, 0))
	}
	assert.Equal(t, 0.0, c.Phase())
}

func TestPhaseClock_InvalidInputsAreIgnored(t *testing.T) {
	c := NewPhaseClock()
	assert.False(t, c.Advance(0, 60))
	assert.False(t, c.Advance(-time.Second, 60))
	assert.False(t, c.Advance(time.Second, -60))
	assert.False(t, c.Advance(time.Second, math.NaN()))
	assert.False(t, c.Advance(time.Second, math.Inf(1)))
	assert.Equal(t, 0.0, c.Phase())
}

func TestPhaseClock_MultipleCrossingsCollapse(t *testing.T) {
	c := NewPhaseClock()

	// 2.5 beats in a single call: one trigger, fractional part kept.
	assert.True(t, c.Advance(time.Second, 150))
	assert.InDelta(t, 0.5, c.Phase(), 1e-12)

	// Next half beat completes the boundary.
	assert.True(t, c.Advance(200*time.Millisecond, 150))
	assert.InDelta(t, 0.0, c.Phase(), 1e-9)
}

func TestPhaseClock_PhaseOnlyIncreasesBetweenTriggers(t *testing.T) {
	c := NewPhaseClock()
	prev := c.Phase()
	for i := 0; i < 200; i++ {
		fired := c.Advance(30*time.Millisecond, 72)
		if !fired {
			assert.Greater(t, c.Phase(), prev)
		}
		assert.Less(t, c.Phase(), 1.0)
		prev = c.Phase()
	}
}
