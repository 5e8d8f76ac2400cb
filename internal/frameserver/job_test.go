package frameserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reelcut/playback/internal/queue"
)

func TestLessJob_CloserFrameWins(t *testing.T) {
	current := renderJob{frame: 100, seq: 1}
	prefetch := renderJob{frame: 105, prefetch: true, seq: 2}

	assert.True(t, lessJob(100, current, prefetch))
	assert.False(t, lessJob(100, prefetch, current))
}

func TestLessJob_RequestBeatsPrefetchAtSameDistance(t *testing.T) {
	req := renderJob{frame: 98, seq: 1}
	pre := renderJob{frame: 102, prefetch: true, seq: 2}

	assert.True(t, lessJob(100, req, pre))
	assert.False(t, lessJob(100, pre, req))
}

func TestLessJob_LaterSubmissionWins(t *testing.T) {
	older := renderJob{frame: 100, seq: 1}
	newer := renderJob{frame: 100, seq: 2}

	assert.True(t, lessJob(100, newer, older))
	assert.False(t, lessJob(100, older, newer))
}

func TestLessJob_FollowsMovingTarget(t *testing.T) {
	q := queue.New[renderJob]()
	q.Push(
		renderJob{frame: 10, seq: 1},
		renderJob{frame: 50, seq: 2},
		renderJob{frame: 90, seq: 3},
	)

	target := int64(48)
	less := func(a, b renderJob) bool { return lessJob(target, a, b) }

	job, _ := q.PopBest(less)
	assert.Equal(t, int64(50), job.frame)

	target = 85
	job, _ = q.PopBest(less)
	assert.Equal(t, int64(90), job.frame)
}

func TestVelocityTracker(t *testing.T) {
	clk := &fakeClock{at: time.Unix(0, 0), step: 10 * time.Millisecond}
	v := newVelocityTracker(0.5, clk.Now)

	assert.Equal(t, 0.0, v.Observe(0), "first request has no history")

	// 20 frames in 10ms is 2 frames/ms; half of it goes into the average.
	assert.InDelta(t, 1.0, v.Observe(20), 1e-9)
	assert.Equal(t, int64(1), v.Direction())

	// Holding still decays the average.
	assert.InDelta(t, 0.5, v.Observe(20), 1e-9)
	assert.Equal(t, int64(1), v.Direction(), "no movement keeps direction")

	v.Observe(10)
	assert.Equal(t, int64(-1), v.Direction())

	v.Reset()
	assert.Equal(t, 0.0, v.Value())
	assert.Equal(t, int64(1), v.Direction())
}

func TestVelocityTracker_SameInstant(t *testing.T) {
	clk := &fakeClock{at: time.Unix(0, 0)}
	v := newVelocityTracker(1, clk.Now)

	v.Observe(0)
	assert.Equal(t, 5.0, v.Observe(5), "zero elapsed time counts as one millisecond")
}
