// pkg/core/properties.go
package core

import (
	"errors"
	"math"
)

// Properties is the read-only project snapshot consumed by both servers.
type Properties struct {
	FPS          float64 `json:"fps" mapstructure:"fps" yaml:"fps"`
	SampleRate   int     `json:"sampleRate" mapstructure:"sampleRate" yaml:"sampleRate"`
	Width        int     `json:"width" mapstructure:"width" yaml:"width"`
	Height       int     `json:"height" mapstructure:"height" yaml:"height"`
	PreviewScale float64 `json:"previewScale" mapstructure:"previewScale" yaml:"previewScale"` // 0 < scale <= 1; canvas size multiplier for preview renders
	ToneMapping  bool    `json:"toneMapping" mapstructure:"toneMapping" yaml:"toneMapping"`
}

// DefaultProperties is a 1080p30 stereo 48kHz project.
func DefaultProperties() Properties {
	return Properties{
		FPS:          30,
		SampleRate:   48000,
		Width:        1920,
		Height:       1080,
		PreviewScale: 0.5,
	}
}

// Validate reports inconsistent properties.
func (p Properties) Validate() error {
	var errs []error
	if p.FPS <= 0 || math.IsNaN(p.FPS) || math.IsInf(p.FPS, 0) {
		errs = append(errs, errors.New("fps must be positive"))
	}
	if p.SampleRate <= 0 {
		errs = append(errs, errors.New("sample rate must be positive"))
	}
	if p.Width <= 0 || p.Height <= 0 {
		errs = append(errs, errors.New("canvas size must be positive"))
	}
	if p.PreviewScale <= 0 || p.PreviewScale > 1 {
		errs = append(errs, errors.New("preview scale must be in (0, 1]"))
	}
	return errors.Join(errs...)
}

// SamplesPerFrame is the number of audio frames (one sample per channel) in one timeline frame.
func (p Properties) SamplesPerFrame() float64 {
	return float64(p.SampleRate) / p.FPS
}

// FrameAt converts seconds to the nearest timeline frame.
func (p Properties) FrameAt(seconds float64) int64 {
	return int64(math.Round(seconds * p.FPS))
}

// SecondsAt converts a timeline frame to seconds.
func (p Properties) SecondsAt(frame int64) float64 {
	return float64(frame) / p.FPS
}

// PreviewSize is the canvas the frame server renders into: the project size
// times PreviewScale, at least 1x1. An out-of-range scale renders full size.
func (p Properties) PreviewSize() (int, int) {
	scale := p.PreviewScale
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	w := max(int(math.Round(float64(p.Width)*scale)), 1)
	h := max(int(math.Round(float64(p.Height)*scale)), 1)
	return w, h
}
