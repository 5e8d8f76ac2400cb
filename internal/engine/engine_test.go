package engine

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelcut/playback/internal/dispatcher"
	"github.com/reelcut/playback/internal/media"
	"github.com/reelcut/playback/internal/output"
	"github.com/reelcut/playback/internal/timeline"
	"github.com/reelcut/playback/pkg/core"
)

type recordingSink struct {
	mu     sync.Mutex
	pixels []color.RGBA
}

func (r *recordingSink) Publish(img *image.RGBA) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pixels = append(r.pixels, img.RGBAAt(0, 0))
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pixels)
}

func (r *recordingSink) last() color.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pixels) == 0 {
		return color.RGBA{}
	}
	return r.pixels[len(r.pixels)-1]
}

var (
	red   = color.RGBA{255, 0, 0, 255}
	black = color.RGBA{0, 0, 0, 255}
)

func testProps() core.Properties {
	return core.Properties{FPS: 30, SampleRate: 48000, Width: 16, Height: 9, PreviewScale: 1}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameServer.Workers = 2
	cfg.FrameServer.PrefetchFrames = 0
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	e, err := New(Dependencies{
		Timeline:   timeline.NewModel("test"),
		Display:    sink,
		Device:     output.NewSimulated(),
		Properties: testProps(),
	}, testConfig())
	require.NoError(t, err)
	e.Start(context.Background())
	t.Cleanup(e.Stop)
	return e, sink
}

func addRedClip(t *testing.T, m *timeline.Model, start, duration int64) {
	t.Helper()
	_, err := m.AddClip(core.NewClip("", 0, start, duration, media.NewSolid(red, 16, 9)))
	require.NoError(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Dependencies{Display: &recordingSink{}, Device: output.NewSimulated(), Properties: testProps()}, testConfig())
	assert.Error(t, err)

	_, err = New(Dependencies{Timeline: timeline.NewModel("x"), Device: output.NewSimulated(), Properties: testProps()}, testConfig())
	assert.Error(t, err)

	_, err = New(Dependencies{Timeline: timeline.NewModel("x"), Display: &recordingSink{}, Properties: testProps()}, testConfig())
	assert.Error(t, err)

	e, err := New(Dependencies{
		Timeline:   timeline.NewModel("x"),
		Display:    &recordingSink{},
		Device:     output.NewSimulated(),
		Properties: testProps(),
	}, Config{FrameServer: testConfig().FrameServer, AudioServer: testConfig().AudioServer})
	require.NoError(t, err)
	assert.NotEmpty(t, e.Session())
	assert.Equal(t, 64, e.cfg.CommandBuffer)
}

func TestEngine_StartShowsPlayhead(t *testing.T) {
	e, sink := newTestEngine(t)
	_ = e
	require.Eventually(t, func() bool { return sink.count() > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, black, sink.last())
}

func TestEngine_ScrubWhilePaused(t *testing.T) {
	e, sink := newTestEngine(t)
	addRedClip(t, e.Timeline(), 30, 30)

	require.NoError(t, e.Scrub(45))
	assert.Equal(t, int64(45), e.Transport().Playhead())
	require.Eventually(t, func() bool { return sink.last() == red }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(45), e.Stats().Frames.Displayed)

	require.NoError(t, e.Scrub(-5))
	assert.Equal(t, int64(0), e.Transport().Playhead())
	require.Eventually(t, func() bool { return sink.last() == black }, time.Second, 5*time.Millisecond)
}

func TestEngine_EditRepaints(t *testing.T) {
	e, sink := newTestEngine(t)
	require.Eventually(t, func() bool { return sink.count() > 0 }, time.Second, 5*time.Millisecond)
	rev := e.Timeline().LayoutRevision()

	require.NoError(t, e.Edit(func(m *timeline.Model) error {
		addRedClip(t, m, 0, 30)
		return nil
	}))

	assert.Greater(t, e.Timeline().LayoutRevision(), rev)
	require.Eventually(t, func() bool { return sink.last() == red }, time.Second, 5*time.Millisecond)
}

func TestEngine_EditErrorStillInvalidates(t *testing.T) {
	e, _ := newTestEngine(t)
	rev := e.Timeline().LayoutRevision()

	err := e.Edit(func(m *timeline.Model) error {
		return m.RemoveClip("missing")
	})
	assert.ErrorIs(t, err, timeline.ErrClipNotFound)
	assert.Greater(t, e.Timeline().LayoutRevision(), rev)
}

func TestEngine_RequestFrameForce(t *testing.T) {
	e, sink := newTestEngine(t)
	addRedClip(t, e.Timeline(), 0, 90)

	require.NoError(t, e.RequestFrame(1, true))
	require.Eventually(t, func() bool {
		return sink.last() == red && e.Stats().Frames.Displayed == 30
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_BadPayloads(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.dispatcher.Dispatch(dispatcher.Event{Command: CmdFrameRequest, Payload: "soon"})
	assert.Error(t, err)
	_, err = e.dispatcher.Dispatch(dispatcher.Event{Command: CmdPropertiesSet, Payload: 30})
	assert.Error(t, err)
	_, err = e.handleClockTick(dispatcher.Event{Payload: "tick"})
	assert.Error(t, err)
}

func TestEngine_SetProperties(t *testing.T) {
	e, _ := newTestEngine(t)

	assert.Error(t, e.SetProperties(core.Properties{}))

	props := testProps()
	props.FPS = 25
	require.NoError(t, e.SetProperties(props))
	assert.Equal(t, 25.0, e.Properties().FPS)
}

func TestEngine_PlaybackDrivesPlayhead(t *testing.T) {
	e, sink := newTestEngine(t)
	addRedClip(t, e.Timeline(), 0, 300)

	var mu sync.Mutex
	var ticks []float64
	e.OnClockTick(func(seconds float64) {
		mu.Lock()
		ticks = append(ticks, seconds)
		mu.Unlock()
	})

	require.NoError(t, e.StartPlayback())
	require.Eventually(t, func() bool {
		return e.Transport().Playhead() >= 3
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, timeline.OwnerAudio, e.Transport().Owner())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ticks) >= 2
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return sink.last() == red }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.StopPlayback())
	require.Eventually(t, func() bool {
		return e.Transport().Owner() == timeline.OwnerUI
	}, time.Second, 5*time.Millisecond)

	stats := e.Stats()
	assert.False(t, stats.Playing)
	assert.Positive(t, stats.Audio.ChunksWritten)
	assert.Positive(t, stats.Frames.Published)
	assert.Positive(t, stats.Commands[CmdClockTick].Handled)
	assert.Equal(t, uint64(1), stats.Commands[CmdPlaybackStart].Handled)
}

func TestEngine_LogContext(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Transport().Seek(12)

	attrs := e.LogContext()
	got := map[string]any{}
	for _, a := range attrs {
		got[a.Key] = a.Value.Any()
	}
	assert.Equal(t, e.Session(), got["session"])
	assert.Equal(t, int64(12), got["playhead"])
	assert.Contains(t, got, "rate")
	assert.Contains(t, got, "revision")
}

func TestEngine_StopIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Stop()
	e.Stop()
	assert.ErrorIs(t, e.RequestFrame(0, false), dispatcher.ErrClosed)
}
