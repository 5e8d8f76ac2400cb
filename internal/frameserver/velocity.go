package frameserver

import (
	"sync"
	"time"
)

// velocityTracker keeps an exponential moving average of how fast requested
// frames change, in frames per millisecond.
type velocityTracker struct {
	mu        sync.Mutex
	now       func() time.Time
	alpha     float64
	last      int64
	lastAt    time.Time
	seen      bool
	value     float64
	direction int64
}

func newVelocityTracker(alpha float64, now func() time.Time) *velocityTracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	if now == nil {
		now = time.Now
	}
	return &velocityTracker{alpha: alpha, now: now, direction: 1}
}

// Observe records a request for frame and returns the updated velocity.
func (v *velocityTracker) Observe(frame int64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	at := v.now()
	if !v.seen {
		v.seen = true
		v.last, v.lastAt = frame, at
		return v.value
	}

	delta := frame - v.last
	if delta > 0 {
		v.direction = 1
	} else if delta < 0 {
		v.direction = -1
	}

	// Bursts within the same millisecond are measured over one millisecond.
	ms := max(float64(at.Sub(v.lastAt))/float64(time.Millisecond), 1)
	instant := float64(distance(frame, v.last)) / ms
	v.value = v.alpha*instant + (1-v.alpha)*v.value
	v.last, v.lastAt = frame, at
	return v.value
}

// Value returns the current smoothed velocity.
func (v *velocityTracker) Value() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Direction returns +1 or -1 for the direction of the most recent movement.
func (v *velocityTracker) Direction() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.direction
}

// Reset forgets the request history.
func (v *velocityTracker) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen = false
	v.value = 0
	v.direction = 1
}
