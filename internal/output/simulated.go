package output

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reelcut/playback/internal/audioserver"
)

// ErrClosed is returned by writes to a device that is not open.
var ErrClosed = errors.New("output device closed")

// DefaultBufferFrames is a 100 ms ring at 48 kHz.
const DefaultBufferFrames = 4800

// Simulated models a hardware line with a fixed ring buffer. The play head
// advances with wall-clock time while there is queued audio and stalls on
// underrun. Samples are discarded once played.
type Simulated struct {
	mu sync.Mutex

	now   func() time.Time
	sleep func(time.Duration)

	bufferFrames int64
	format       audioserver.Format
	open         bool

	written   int64 // sample frames accepted since Open
	anchorPos int64 // play position at anchorAt
	anchorAt  time.Time
	rolling   bool
}

// SimulatedOption configures a Simulated device.
type SimulatedOption func(*Simulated)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time, sleep func(time.Duration)) SimulatedOption {
	return func(s *Simulated) {
		s.now = now
		s.sleep = sleep
	}
}

// WithBufferFrames sets the ring size in sample frames.
func WithBufferFrames(n int) SimulatedOption {
	return func(s *Simulated) {
		if n > 0 {
			s.bufferFrames = int64(n)
		}
	}
}

// NewSimulated creates a closed simulated device.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		now:          time.Now,
		sleep:        time.Sleep,
		bufferFrames: DefaultBufferFrames,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open resets the play head and buffer for format.
func (s *Simulated) Open(format audioserver.Format) error {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return fmt.Errorf("unsupported format: %d Hz, %d channels", format.SampleRate, format.Channels)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	s.open = true
	s.written, s.anchorPos, s.rolling = 0, 0, false
	return nil
}

// Write queues samples, blocking while the ring is full.
func (s *Simulated) Write(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrClosed
	}
	if len(samples)%s.format.Channels != 0 {
		return fmt.Errorf("%d samples do not fill whole frames of %d channels", len(samples), s.format.Channels)
	}
	n := int64(len(samples) / s.format.Channels)

	for {
		queued := s.written - s.positionLocked()
		over := queued + n - s.bufferFrames
		if over <= 0 || queued == 0 {
			break
		}
		wait := time.Duration(over * int64(time.Second) / int64(s.format.SampleRate))
		s.mu.Unlock()
		s.sleep(max(wait, time.Millisecond))
		s.mu.Lock()
		if !s.open {
			return ErrClosed
		}
	}

	if !s.rolling {
		s.anchorPos = s.positionLocked()
		s.anchorAt = s.now()
		s.rolling = true
	}
	s.written += n
	return nil
}

// Position returns the sample frames played since Open.
func (s *Simulated) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

// Buffered returns the sample frames queued but not yet played.
func (s *Simulated) Buffered() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written - s.positionLocked()
}

// Flush drops queued samples. The play head stops where it is.
func (s *Simulated) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = s.positionLocked()
	s.anchorPos = s.written
	s.rolling = false
	return nil
}

// Close stops the device. Writes fail until the next Open.
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionLocked()
	s.open = false
	s.rolling = false
	return nil
}

func (s *Simulated) positionLocked() int64 {
	if !s.rolling {
		return s.anchorPos
	}
	pos := s.anchorPos + framesIn(s.now().Sub(s.anchorAt), s.format.SampleRate)
	if pos >= s.written {
		// Underrun: the line stalls until more audio arrives.
		s.anchorPos = s.written
		s.rolling = false
		return s.written
	}
	return pos
}

// framesIn converts d to whole sample frames without overflowing on long runs.
func framesIn(d time.Duration, sampleRate int) int64 {
	if d <= 0 {
		return 0
	}
	sr := int64(sampleRate)
	secs, rem := int64(d/time.Second), int64(d%time.Second)
	return secs*sr + rem*sr/int64(time.Second)
}
