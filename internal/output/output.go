package output

import (
	"fmt"

	"github.com/reelcut/playback/internal/audioserver"
)

// Config selects the audio device. Device is "simulated" or "wav".
type Config struct {
	Device       string `json:"device" mapstructure:"device"`
	WAVPath      string `json:"wavPath" mapstructure:"wavPath"`
	BufferFrames int    `json:"bufferFrames" mapstructure:"bufferFrames"`
}

// New builds the configured device. An empty Device is "simulated".
func New(cfg Config, opts ...SimulatedOption) (audioserver.Device, error) {
	if cfg.BufferFrames > 0 {
		opts = append([]SimulatedOption{WithBufferFrames(cfg.BufferFrames)}, opts...)
	}
	switch cfg.Device {
	case "", "simulated":
		return NewSimulated(opts...), nil
	case "wav":
		if cfg.WAVPath == "" {
			return nil, fmt.Errorf("wav output needs a path")
		}
		return NewWAV(cfg.WAVPath, opts...), nil
	default:
		return nil, fmt.Errorf("unknown output device %q", cfg.Device)
	}
}
