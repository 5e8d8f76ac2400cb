package timeline

import (
	"math"
	"sync/atomic"
)

// Owner identifies who may advance the playhead.
type Owner int32

const (
	// OwnerUI means scrubbing: the UI moves the playhead and requests frames.
	OwnerUI Owner = iota
	// OwnerAudio means playback: the audio loop is the clock.
	OwnerAudio
)

func (o Owner) String() string {
	if o == OwnerAudio {
		return "audio"
	}
	return "ui"
}

// Transport is the shared play state read by the audio loop and written by
// the UI. Every field is independently atomic.
type Transport struct {
	playhead atomic.Int64
	rate     atomic.Uint64 // math.Float64bits
	playing  atomic.Bool
	owner    atomic.Int32
	seeks    atomic.Uint64
}

// NewTransport returns a stopped transport at frame 0 and rate 1.
func NewTransport() *Transport {
	t := &Transport{}
	t.rate.Store(math.Float64bits(1))
	return t
}

// Playhead returns the current timeline frame.
func (t *Transport) Playhead() int64 {
	return t.playhead.Load()
}

// Seek moves the playhead unconditionally. Used by the UI.
func (t *Transport) Seek(frame int64) {
	t.playhead.Store(frame)
	t.seeks.Add(1)
}

// Seeks returns how many times Seek has been called.
func (t *Transport) Seeks() uint64 {
	return t.seeks.Load()
}

// AdvancePlayhead moves the playhead from one frame to another only if no
// one else moved it in between. Returns false when a concurrent Seek won.
func (t *Transport) AdvancePlayhead(from, to int64) bool {
	return t.playhead.CompareAndSwap(from, to)
}

// Rate returns the requested playback rate. Negative plays in reverse.
func (t *Transport) Rate() float64 {
	return math.Float64frombits(t.rate.Load())
}

// SetRate changes the requested playback rate.
func (t *Transport) SetRate(rate float64) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return
	}
	t.rate.Store(math.Float64bits(rate))
}

// Playing reports whether playback is requested.
func (t *Transport) Playing() bool {
	return t.playing.Load()
}

// SetPlaying starts or stops playback.
func (t *Transport) SetPlaying(playing bool) {
	t.playing.Store(playing)
}

// Owner returns who currently holds clock authority.
func (t *Transport) Owner() Owner {
	return Owner(t.owner.Load())
}

// SetOwner hands clock authority to o.
func (t *Transport) SetOwner(o Owner) {
	t.owner.Store(int32(o))
}
