package output

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/reelcut/playback/internal/audioserver"
)

// WAV is a paced device that also records every accepted chunk to a 16-bit
// PCM WAV file. Audio dropped by Flush stays in the recording.
type WAV struct {
	*Simulated

	path string

	mu     sync.Mutex
	file   *os.File
	enc    *wav.Encoder
	format audioserver.Format
	buf    *audio.IntBuffer
	frames int64
}

// NewWAV creates a recording device writing to path on Open.
func NewWAV(path string, opts ...SimulatedOption) *WAV {
	return &WAV{Simulated: NewSimulated(opts...), path: path}
}

// Open starts the line. A format change, or reopening after Close, starts a
// new recording.
func (w *WAV) Open(format audioserver.Format) error {
	if err := w.Simulated.Open(format); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc != nil && w.format == format {
		return nil
	}
	if err := w.finishLocked(); err != nil {
		return err
	}

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("creating recording: %w", err)
	}
	w.file = f
	w.enc = wav.NewEncoder(f, format.SampleRate, 16, format.Channels, 1)
	w.format = format
	w.frames = 0
	w.buf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		SourceBitDepth: 16,
	}
	return nil
}

// Write plays samples and appends them to the recording.
func (w *WAV) Write(samples []int16) error {
	if err := w.Simulated.Write(samples); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return ErrClosed
	}
	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, v := range samples {
		w.buf.Data[i] = int(v)
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("recording chunk: %w", err)
	}
	w.frames += int64(len(samples) / w.format.Channels)
	return nil
}

// Recorded returns the sample frames written to the file.
func (w *WAV) Recorded() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close stops the line and finalizes the file header.
func (w *WAV) Close() error {
	if err := w.Simulated.Close(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finishLocked()
}

func (w *WAV) finishLocked() error {
	if w.enc == nil {
		return nil
	}
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	w.enc, w.file = nil, nil
	if encErr != nil {
		return fmt.Errorf("finalizing recording: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("closing recording: %w", fileErr)
	}
	return nil
}
