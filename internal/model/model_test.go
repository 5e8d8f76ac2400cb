package model

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "playback_sessions", (&PlaybackSession{}).TableName())
	assert.Equal(t, "performance_samples", (&PerformanceSample{}).TableName())
	assert.Len(t, DatabaseModels, 2)
}

func TestPlaybackSession_Ended(t *testing.T) {
	s := PlaybackSession{ID: "s"}
	assert.False(t, s.Ended())

	s.EndedAt = sql.NullTime{Time: time.Now(), Valid: true}
	assert.True(t, s.Ended())
}

func TestFrameCounters_HitRatio(t *testing.T) {
	assert.Zero(t, FrameCounters{}.HitRatio())
	assert.InDelta(t, 0.75, FrameCounters{CacheHits: 3, CacheMisses: 1}.HitRatio(), 1e-9)
}
