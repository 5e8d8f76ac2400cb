package media

import (
	"fmt"
	"image"
	"math"

	"github.com/reelcut/playback/pkg/core"
)

const stereo = 2

// PCM is decoded stereo audio held in memory at the project sample rate.
type PCM struct {
	samples []float32 // interleaved left/right
	spf     float64
}

// NewPCM converts interleaved samples recorded at sampleRate with the given
// channel count to stereo at the project rate. Mono is duplicated to both
// channels; channels past the second are dropped.
func NewPCM(samples []float32, channels, sampleRate int, props core.Properties) (*PCM, error) {
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid pcm layout: %d channels at %d Hz", channels, sampleRate)
	}
	if err := props.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project properties: %w", err)
	}

	frames := len(samples) / channels
	st := make([]float32, frames*stereo)
	for i := 0; i < frames; i++ {
		l := samples[i*channels]
		r := l
		if channels > 1 {
			r = samples[i*channels+1]
		}
		st[i*stereo], st[i*stereo+1] = l, r
	}
	if sampleRate != props.SampleRate {
		st = resample(st, sampleRate, props.SampleRate)
	}
	return &PCM{samples: st, spf: props.SamplesPerFrame()}, nil
}

// Frames returns the length in sample frames.
func (p *PCM) Frames() int64 {
	return int64(len(p.samples) / stereo)
}

// Duration returns the length in whole timeline frames.
func (p *PCM) Duration() int64 {
	return int64(math.Floor(float64(p.Frames()) / p.spf))
}

// Image always fails; PCM carries no pictures.
func (p *PCM) Image(int64) (image.Image, error) {
	return nil, ErrNoVideo
}

// AudioBlock returns the samples for frameCount timeline frames starting at
// sourceFrame. The block is shorter near the end of the media. Callers must
// not modify it.
func (p *PCM) AudioBlock(sourceFrame int64, frameCount int) ([]float32, error) {
	start := int64(math.Round(float64(sourceFrame) * p.spf))
	count := int64(math.Round(float64(frameCount) * p.spf))
	if start < 0 || start >= p.Frames() || count <= 0 {
		return nil, ErrOutOfRange
	}
	end := min(start+count, p.Frames())
	return p.samples[start*stereo : end*stereo], nil
}

// AudioSampleAt returns the stereo sample at a project-rate index.
func (p *PCM) AudioSampleAt(sourceSample int64) (float32, float32, error) {
	if sourceSample < 0 || sourceSample >= p.Frames() {
		return 0, 0, ErrOutOfRange
	}
	i := sourceSample * stereo
	return p.samples[i], p.samples[i+1], nil
}

// resample converts interleaved stereo between rates by linear interpolation.
func resample(in []float32, from, to int) []float32 {
	frames := len(in) / stereo
	if frames == 0 {
		return nil
	}
	outFrames := int(int64(frames) * int64(to) / int64(from))
	out := make([]float32, outFrames*stereo)
	ratio := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		frac := float32(pos - float64(j))
		k := min(j+1, frames-1)
		for c := 0; c < stereo; c++ {
			a, b := in[j*stereo+c], in[k*stereo+c]
			out[i*stereo+c] = a + (b-a)*frac
		}
	}
	return out
}
