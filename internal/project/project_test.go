package project

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelcut/playback/internal/media"
	"github.com/reelcut/playback/pkg/core"
)

const demo = `
name: Demo
properties:
  fps: 25
  width: 320
  height: 180
tracks:
  - index: 0
    type: video
  - index: 1
    type: video
  - index: 2
    type: audio
clips:
  - id: bars
    track: 0
    start: 0
    duration: 100
    source: {kind: pattern}
    fadeIn: {frames: 25, curve: smoothstep}
    retime:
      - {frame: 100, source: 200}
      - {frame: 0, source: 0}
  - id: title
    track: 1
    start: 50
    duration: 25
    source: {kind: solid, color: "#ff8000"}
    endOpacity: 0
    transforms:
      - {frame: 0, x: 10, y: 20, scaleX: 0.5}
`

func TestParse_Demo(t *testing.T) {
	p, err := Parse([]byte(demo), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "Demo", p.Name)
	assert.Equal(t, 25.0, p.Properties.FPS)
	assert.Equal(t, 48000, p.Properties.SampleRate, "defaults fill missing keys")
	assert.Equal(t, 320, p.Properties.Width)
	assert.Equal(t, core.TrackAudio, p.Timeline.TrackType(2))

	bars, ok := p.Timeline.Clip("bars")
	require.True(t, ok)
	assert.Equal(t, core.Fade{Frames: 25, Curve: core.CurveSmoothstep}, bars.FadeIn)
	require.Len(t, bars.Retime, 2)
	assert.Equal(t, int64(0), bars.Retime[0].ClipFrame, "keyframes are sorted on insert")
	assert.IsType(t, &media.Pattern{}, bars.Source)

	title, ok := p.Timeline.Clip("title")
	require.True(t, ok)
	assert.Equal(t, 1.0, title.StartOpacity)
	assert.Equal(t, 0.0, title.EndOpacity)
	assert.Equal(t, 1.0, title.Gain)
	require.Len(t, title.Transforms, 1)
	assert.Equal(t, core.Transform{X: 10, Y: 20, ScaleX: 0.5, ScaleY: 1}, title.Transforms[0].Value)

	img, err := title.Source.Image(0)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 128, 0, 255}, img.At(0, 0))

	assert.Len(t, p.Timeline.ClipsOverlapping(60), 2)
}

func TestLoad_AudioFileDuration(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "music.wav"))
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 48000, 16, 2, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 48000},
		Data:           make([]int, 48000*2),
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Music
tracks:
  - {index: 0, type: audio}
clips:
  - id: music
    track: 0
    start: 10
    source: {kind: file, path: music.wav}
    gain: 0.5
`), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	c, ok := p.Timeline.Clip("music")
	require.True(t, ok)
	assert.Equal(t, int64(30), c.Duration, "one second at 30 fps")
	assert.Equal(t, 0.5, c.Gain)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "clips: ["},
		{"bad properties", "properties: {fps: 0}"},
		{"bad track type", "tracks: [{index: 0, type: midi}]"},
		{"unknown kind", "clips: [{id: a, duration: 1, source: {kind: hologram}}]"},
		{"missing path", "clips: [{id: a, duration: 1, source: {kind: file}}]"},
		{"missing media", "clips: [{id: a, duration: 1, source: {path: nope.wav}}]"},
		{"bad color", "clips: [{id: a, duration: 1, source: {kind: solid, color: red}}]"},
		{"bad curve", "clips: [{id: a, duration: 1, source: {kind: pattern}, fadeIn: {frames: 2, curve: bouncy}}]"},
		{"negative fade", "clips: [{id: a, duration: 1, source: {kind: pattern}, fadeOut: {frames: -2}}]"},
		{"zero duration", "clips: [{id: a, source: {kind: pattern}}]"},
		{"duplicate id", "clips: [{id: a, duration: 1, source: {kind: pattern}}, {id: a, duration: 1, source: {kind: pattern}}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
