package audioserver

import "errors"

// ErrDeviceUnavailable is reported when the output device cannot be opened.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Format describes the PCM stream written to a Device. Samples are signed
// 16-bit, interleaved by channel.
type Format struct {
	SampleRate int
	Channels   int
}

// Device is an audio output line.
type Device interface {
	// Open prepares the device for format. Opening an open device reopens it.
	Open(format Format) error
	// Write queues interleaved samples. It may block while the device buffer
	// is full.
	Write(samples []int16) error
	// Position returns the number of sample frames the hardware has played
	// since Open. It never decreases except across Open.
	Position() int64
	// Flush discards queued, unplayed samples.
	Flush() error
	Close() error
}
