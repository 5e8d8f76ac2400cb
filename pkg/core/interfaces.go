// pkg/core/interfaces.go
package core

import "image"

// Decoder is the opaque media service behind a clip. Implementations may block.
// A nil image or a non-nil error means "skip this clip for this frame".
type Decoder interface {
	// Image returns the decoded picture for a source frame.
	Image(sourceFrame int64) (image.Image, error)
	// AudioBlock returns frameCount timeline frames of interleaved stereo samples
	// at the project sample rate, starting at sourceFrame.
	AudioBlock(sourceFrame int64, frameCount int) ([]float32, error)
	// AudioSampleAt returns one stereo sample at a project-rate sample index.
	AudioSampleAt(sourceSample int64) (left, right float32, err error)
}

// Timeline is the read side of the timeline model shared by both servers.
type Timeline interface {
	// ClipsOverlapping returns snapshots of every clip covering frame.
	ClipsOverlapping(frame int64) []Clip
	TrackType(index int) TrackType
	LayoutRevision() uint64
	// BumpLayoutRevision advances the revision and returns the new value.
	BumpLayoutRevision() uint64
}

// DisplaySink presents composited frames. Publish must not block; the sink may keep
// using img until the next Publish call.
type DisplaySink interface {
	Publish(img *image.RGBA)
}

// MeterSink receives per-chunk peak levels in [0, 1]. Must not block.
type MeterSink interface {
	SetLevels(peakLeft, peakRight float64)
}
