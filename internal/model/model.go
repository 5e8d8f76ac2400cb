package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// DatabaseModels lists every table, in migration order.
var DatabaseModels = []interface{}{
	&PlaybackSession{},
	&PerformanceSample{},
}

// PlaybackSession is one engine lifetime.
type PlaybackSession struct {
	ID         string              `json:"id" gorm:"primaryKey;size:36"`
	Project    string              `json:"project" gorm:"size:512"`
	Properties datatypes.JSON      `json:"properties"`
	Config     datatypes.JSON      `json:"config"`
	StartedAt  time.Time           `json:"startedAt" gorm:"index"`
	EndedAt    sql.NullTime        `json:"endedAt"`
	Samples    []PerformanceSample `json:"-" gorm:"foreignKey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*PlaybackSession) TableName() string {
	return "playback_sessions"
}

// Ended reports whether the session was closed cleanly.
func (s *PlaybackSession) Ended() bool {
	return s.EndedAt.Valid
}

// PerformanceSample is one monitor reading of the engine.
type PerformanceSample struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement"`
	Time      time.Time `json:"time" gorm:"index:idx_perf_session_time,priority:2"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_perf_session_time,priority:1"`

	Playhead int64   `json:"playhead"`
	Rate     float64 `json:"rate"`
	Playing  bool    `json:"playing"`
	Owner    string  `json:"owner" gorm:"size:16"`
	Revision uint64  `json:"revision"`

	Frames FrameCounters `json:"frames" gorm:"embedded;embeddedPrefix:frames_"`
	Audio  AudioCounters `json:"audio" gorm:"embedded;embeddedPrefix:audio_"`
}

func (*PerformanceSample) TableName() string {
	return "performance_samples"
}

// FrameCounters is the frame server part of a sample.
type FrameCounters struct {
	Displayed      int64   `json:"displayed"`
	CacheFrames    int     `json:"cacheFrames"`
	Queued         int     `json:"queued"`
	Busy           int     `json:"busy"`
	Velocity       float64 `json:"velocity"`
	Rendered       uint64  `json:"rendered"`
	Stale          uint64  `json:"stale"`
	CacheHits      uint64  `json:"cacheHits"`
	CacheMisses    uint64  `json:"cacheMisses"`
	DecodeFailures uint64  `json:"decodeFailures"`
}

// AudioCounters is the audio server part of a sample.
type AudioCounters struct {
	ChunksWritten uint64  `json:"chunksWritten"`
	WriteErrors   uint64  `json:"writeErrors"`
	TicksDropped  uint64  `json:"ticksDropped"`
	PeakLeft      float64 `json:"peakLeft"`
	PeakRight     float64 `json:"peakRight"`
}

// HitRatio is the share of frame requests served from cache, or 0 before the
// first request.
func (f FrameCounters) HitRatio() float64 {
	total := f.CacheHits + f.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(f.CacheHits) / float64(total)
}
