package audioserver

import (
	"math"

	"github.com/reelcut/playback/internal/temporal"
	"github.com/reelcut/playback/internal/util"
	"github.com/reelcut/playback/pkg/core"
)

const (
	channels = 2
	// silentRate is the playback rate below which a chunk is written as silence.
	silentRate = 1e-3
)

// Mixer sums the audio clips under the playhead into device-ready chunks.
// Buffers are reused between calls, so a Mixer belongs to one goroutine.
type Mixer struct {
	timeline core.Timeline
	props    core.Properties
	gain     float64

	mix []float32
	out []int16
}

// NewMixer creates a mixer for props with the given master gain.
func NewMixer(tl core.Timeline, props core.Properties, masterGain float64) *Mixer {
	return &Mixer{timeline: tl, props: props, gain: masterGain}
}

// SetProperties changes the project rates used to locate samples.
func (m *Mixer) SetProperties(props core.Properties) {
	m.props = props
}

// MixChunk renders samples sample frames of audio starting at the fractional
// timeline frame position and advancing rate timeline frames over the chunk.
// It returns the converted chunk and the per-channel peaks after master gain.
// The returned slice is valid until the next call.
func (m *Mixer) MixChunk(frame, rate float64, samples int) ([]int16, float64, float64) {
	n := samples * channels
	if cap(m.mix) < n {
		m.mix = make([]float32, n)
		m.out = make([]int16, n)
	}
	m.mix, m.out = m.mix[:n], m.out[:n]
	clear(m.mix)

	if math.Abs(rate) >= silentRate && samples > 0 {
		for _, c := range m.clipsUnder(frame, rate) {
			m.mixClip(c, frame, rate, samples)
		}
	}

	var peakL, peakR float64
	for i := 0; i < n; i += channels {
		l := float64(m.mix[i]) * m.gain
		r := float64(m.mix[i+1]) * m.gain
		peakL = max(peakL, math.Abs(l))
		peakR = max(peakR, math.Abs(r))
		m.out[i] = util.ToPCM16(l)
		m.out[i+1] = util.ToPCM16(r)
	}
	return m.out, peakL, peakR
}

// clipsUnder returns the audio clips covering either end of the chunk.
func (m *Mixer) clipsUnder(frame, rate float64) []core.Clip {
	first := int64(math.Floor(frame))
	last := int64(math.Floor(frame + rate))
	if rate > 0 && float64(last) == frame+rate {
		last--
	}

	clips := m.timeline.ClipsOverlapping(first)
	if last != first {
		for _, c := range m.timeline.ClipsOverlapping(last) {
			if !containsClip(clips, c.ID) {
				clips = append(clips, c)
			}
		}
	}

	out := clips[:0]
	for _, c := range clips {
		if c.Source != nil && m.timeline.TrackType(c.Track) == core.TrackAudio {
			out = append(out, c)
		}
	}
	return out
}

func (m *Mixer) mixClip(c core.Clip, frame, rate float64, samples int) {
	spf := m.props.SamplesPerFrame()
	local := frame - float64(c.Start)
	step := rate / float64(samples)

	if rate == 1 && len(c.Retime) == 0 && local == math.Trunc(local) && local >= 0 {
		if m.mixBlock(c, int64(local), samples, spf) {
			return
		}
	}

	for i := 0; i < samples; i++ {
		pos := local + step*float64(i)
		if pos < 0 || pos >= float64(c.Duration) {
			continue
		}
		src := int64(math.Round(temporal.SourcePosition(c.Retime, pos) * spf))
		l, r, err := c.Source.AudioSampleAt(src)
		if err != nil {
			return
		}
		vol := float32(temporal.EnvelopeAt(c, pos) * c.Gain)
		m.mix[i*channels] += l * vol
		m.mix[i*channels+1] += r * vol
	}
}

// mixBlock is the unity-rate path: one contiguous read aligned to the clip
// frame. It reports false when the decoder has no block to offer.
func (m *Mixer) mixBlock(c core.Clip, local int64, samples int, spf float64) bool {
	frames := max(int(math.Ceil(float64(samples)/spf)), 1)
	block, err := c.Source.AudioBlock(local, frames)
	if err != nil || len(block) == 0 {
		return false
	}

	avail := min(len(block)/channels, samples)
	step := 1 / float64(samples)
	for i := 0; i < avail; i++ {
		pos := float64(local) + step*float64(i)
		if pos >= float64(c.Duration) {
			break
		}
		vol := float32(temporal.EnvelopeAt(c, pos) * c.Gain)
		m.mix[i*channels] += block[i*channels] * vol
		m.mix[i*channels+1] += block[i*channels+1] * vol
	}
	return true
}

func containsClip(clips []core.Clip, id string) bool {
	for _, c := range clips {
		if c.ID == id {
			return true
		}
	}
	return false
}
