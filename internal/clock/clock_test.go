package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClock(t *testing.T) *Clock {
	c, err := New(48000, 30)
	require.NoError(t, err)
	return c
}

func TestNew_InvalidArguments(t *testing.T) {
	_, err := New(0, 30)
	assert.Error(t, err)

	_, err = New(48000, 0)
	assert.Error(t, err)
}

func TestProject_UnityRate(t *testing.T) {
	c := newTestClock(t)
	c.Reset(100, 0)

	assert.Equal(t, int64(100), c.Project(0))
	assert.Equal(t, int64(101), c.Project(1600))
	assert.Equal(t, int64(130), c.Project(48000))
}

func TestProject_ScaledAndReverseRates(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		pos  int64
		want int64
	}{
		{"double speed", 2, 48000, 160},
		{"half speed", 0.5, 48000, 115},
		{"reverse", -1, 48000, 70},
		{"reverse double", -2, 24000, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClock(t)
			c.Reset(100, 0)
			c.SetRate(tt.rate, 0)
			assert.Equal(t, tt.want, c.Project(tt.pos))
		})
	}
}

func TestSetRate_DoesNotJump(t *testing.T) {
	c := newTestClock(t)
	c.Reset(0, 0)

	before := c.Project(48000)
	c.SetRate(2, 48000)
	assert.Equal(t, before, c.Project(48000), "rate change must keep the position")
	assert.Equal(t, before+60, c.Project(96000))
	assert.Equal(t, 2.0, c.Rate())
}

func TestReset_KeepsRate(t *testing.T) {
	c := newTestClock(t)
	c.SetRate(-1, 0)
	c.Reset(500, 9600)

	assert.Equal(t, -1.0, c.Rate())
	assert.Equal(t, int64(494), c.Project(19200))
	assert.Equal(t, Checkpoint{TimelineFrame: 500, DevicePosition: 9600, Rate: -1}, c.Checkpoint())
}

func TestClamp_Monotonic(t *testing.T) {
	positions := []int64{0, 800, 1600, 1500, 3200, 3100, 4800, 4800, 6400}

	for _, rate := range []float64{1, -1} {
		c := newTestClock(t)
		c.Reset(1000, 0)
		c.SetRate(rate, 0)

		prev := c.Project(0)
		for _, pos := range positions {
			cur := Clamp(prev, c.Project(pos), rate)
			if rate > 0 {
				assert.GreaterOrEqual(t, cur, prev)
			} else {
				assert.LessOrEqual(t, cur, prev)
			}
			prev = cur
		}
	}
}

func TestClamp_AbsorbsJitter(t *testing.T) {
	assert.Equal(t, int64(10), Clamp(10, 9, 1))
	assert.Equal(t, int64(11), Clamp(10, 11, 1))
	assert.Equal(t, int64(10), Clamp(10, 11, -1))
	assert.Equal(t, int64(9), Clamp(10, 9, -1))
	assert.Equal(t, int64(9), Clamp(10, 9, 0))
}
