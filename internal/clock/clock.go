package clock

import (
	"fmt"
	"math"
)

// Checkpoint pairs a timeline frame with the device position it was observed at.
type Checkpoint struct {
	TimelineFrame  int64
	DevicePosition int64
	Rate           float64
}

// Clock maps device frame positions to timeline frames under a playback rate.
type Clock struct {
	anchor     Checkpoint
	sampleRate float64
	fps        float64
}

// New creates a clock anchored at timeline frame 0, device position 0, rate 1.
func New(sampleRate int, fps float64) (*Clock, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("invalid fps: %v", fps)
	}
	return &Clock{
		anchor:     Checkpoint{Rate: 1},
		sampleRate: float64(sampleRate),
		fps:        fps,
	}, nil
}

// Reset re-anchors the clock after a seek. The rate is kept.
func (c *Clock) Reset(timelineFrame, devicePosition int64) {
	c.anchor.TimelineFrame = timelineFrame
	c.anchor.DevicePosition = devicePosition
}

// SetRate changes the playback rate without moving the perceived position:
// the anchor is first advanced to where the old rate puts devicePosition.
func (c *Clock) SetRate(rate float64, devicePosition int64) {
	c.anchor.TimelineFrame = c.Project(devicePosition)
	c.anchor.DevicePosition = devicePosition
	c.anchor.Rate = rate
}

// Project returns the timeline frame corresponding to devicePosition.
func (c *Clock) Project(devicePosition int64) int64 {
	elapsed := float64(devicePosition-c.anchor.DevicePosition) / c.sampleRate
	delta := math.Round(elapsed * c.fps * c.anchor.Rate)
	return c.anchor.TimelineFrame + int64(delta)
}

// Rate returns the current playback rate.
func (c *Clock) Rate() float64 {
	return c.anchor.Rate
}

// Checkpoint returns the current anchor.
func (c *Clock) Checkpoint() Checkpoint {
	return c.anchor
}

// Clamp enforces monotonic progress in the direction of travel: a candidate that
// moves backwards relative to prev (device jitter) is replaced by prev.
func Clamp(prev, candidate int64, rate float64) int64 {
	switch {
	case rate > 0 && candidate < prev:
		return prev
	case rate < 0 && candidate > prev:
		return prev
	}
	return candidate
}
