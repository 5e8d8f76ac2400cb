package output

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelcut/playback/internal/audioserver"
)

type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.slept += d
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var stereo1k = audioserver.Format{SampleRate: 1000, Channels: 2}

func frames(n int) []int16 {
	return make([]int16, n*2)
}

func newTestDevice(t *testing.T, bufferFrames int) (*Simulated, *fakeClock) {
	t.Helper()
	c := newFakeClock()
	d := NewSimulated(WithClock(c.now, c.sleep), WithBufferFrames(bufferFrames))
	require.NoError(t, d.Open(stereo1k))
	return d, c
}

func TestSimulated_WriteBeforeOpen(t *testing.T) {
	d := NewSimulated()
	assert.ErrorIs(t, d.Write(frames(1)), ErrClosed)
}

func TestSimulated_OpenRejectsBadFormat(t *testing.T) {
	d := NewSimulated()
	assert.Error(t, d.Open(audioserver.Format{SampleRate: 0, Channels: 2}))
	assert.Error(t, d.Open(audioserver.Format{SampleRate: 48000}))
}

func TestSimulated_PartialFrameRejected(t *testing.T) {
	d, _ := newTestDevice(t, 100)
	assert.Error(t, d.Write(make([]int16, 3)))
}

func TestSimulated_PositionFollowsWallClock(t *testing.T) {
	d, c := newTestDevice(t, 1000)

	require.NoError(t, d.Write(frames(100)))
	assert.Equal(t, int64(0), d.Position())
	assert.Equal(t, int64(100), d.Buffered())

	c.advance(40 * time.Millisecond)
	assert.Equal(t, int64(40), d.Position())
	assert.Equal(t, int64(60), d.Buffered())
}

func TestSimulated_StallsOnUnderrun(t *testing.T) {
	d, c := newTestDevice(t, 1000)

	require.NoError(t, d.Write(frames(50)))
	c.advance(200 * time.Millisecond)
	assert.Equal(t, int64(50), d.Position())

	// The line resumes from where it stalled, not from wall time.
	require.NoError(t, d.Write(frames(50)))
	c.advance(10 * time.Millisecond)
	assert.Equal(t, int64(60), d.Position())
}

func TestSimulated_WriteBlocksWhileFull(t *testing.T) {
	d, c := newTestDevice(t, 100)

	require.NoError(t, d.Write(frames(100)))
	require.NoError(t, d.Write(frames(30)))

	assert.GreaterOrEqual(t, c.slept, 30*time.Millisecond)
	assert.LessOrEqual(t, d.Buffered(), int64(100))
	assert.GreaterOrEqual(t, d.Position(), int64(30))
}

func TestSimulated_OversizedWriteDoesNotDeadlock(t *testing.T) {
	d, _ := newTestDevice(t, 10)
	require.NoError(t, d.Write(frames(50)))
	require.NoError(t, d.Write(frames(50)))
	assert.Equal(t, int64(50), d.Buffered())
}

func TestSimulated_FlushKeepsPosition(t *testing.T) {
	d, c := newTestDevice(t, 1000)

	require.NoError(t, d.Write(frames(100)))
	c.advance(25 * time.Millisecond)
	require.NoError(t, d.Flush())

	assert.Equal(t, int64(25), d.Position())
	assert.Equal(t, int64(0), d.Buffered())

	c.advance(time.Second)
	assert.Equal(t, int64(25), d.Position())
}

func TestSimulated_OpenResets(t *testing.T) {
	d, c := newTestDevice(t, 1000)
	require.NoError(t, d.Write(frames(100)))
	c.advance(50 * time.Millisecond)

	require.NoError(t, d.Open(stereo1k))
	assert.Equal(t, int64(0), d.Position())
	assert.Equal(t, int64(0), d.Buffered())
}

func TestSimulated_Close(t *testing.T) {
	d, _ := newTestDevice(t, 1000)
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Write(frames(1)), ErrClosed)
}

func TestWAV_RecordsChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")
	c := newFakeClock()
	w := NewWAV(path, WithClock(c.now, c.sleep), WithBufferFrames(1000))

	require.NoError(t, w.Open(stereo1k))
	chunk := []int16{100, -100, 200, -200, 300, -300}
	require.NoError(t, w.Write(chunk))
	require.NoError(t, w.Write(chunk))
	assert.Equal(t, int64(6), w.Recorded())
	assert.Equal(t, int64(6), w.Buffered())
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Equal(t, 1000, buf.Format.SampleRate)
	assert.Equal(t, []int{100, -100, 200, -200, 300, -300, 100, -100, 200, -200, 300, -300}, buf.Data)
}

func TestWAV_SameFormatKeepsRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")
	w := NewWAV(path)

	require.NoError(t, w.Open(stereo1k))
	require.NoError(t, w.Write(frames(2)))
	require.NoError(t, w.Open(stereo1k))
	require.NoError(t, w.Write(frames(2)))
	assert.Equal(t, int64(4), w.Recorded())

	require.NoError(t, w.Open(audioserver.Format{SampleRate: 2000, Channels: 2}))
	assert.Equal(t, int64(0), w.Recorded())
	require.NoError(t, w.Close())
}

func TestWAV_CreateFailure(t *testing.T) {
	w := NewWAV(filepath.Join(t.TempDir(), "missing", "capture.wav"))
	assert.Error(t, w.Open(stereo1k))
}

func TestNew(t *testing.T) {
	dev, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Simulated{}, dev)

	dev, err = New(Config{Device: "simulated", BufferFrames: 960})
	require.NoError(t, err)
	assert.Equal(t, int64(960), dev.(*Simulated).bufferFrames)

	dev, err = New(Config{Device: "wav", WAVPath: filepath.Join(t.TempDir(), "out.wav")})
	require.NoError(t, err)
	assert.IsType(t, &WAV{}, dev)

	_, err = New(Config{Device: "wav"})
	assert.Error(t, err)
	_, err = New(Config{Device: "alsa"})
	assert.Error(t, err)
}
