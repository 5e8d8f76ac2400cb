// Package audioserver runs the real-time audio loop. While playing it is the
// master clock: it mixes and writes audio, advances the shared playhead from
// the device position and emits sync ticks for the frame server.
package audioserver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelcut/playback/internal/clock"
	"github.com/reelcut/playback/internal/timeline"
	"github.com/reelcut/playback/pkg/core"
)

// Logger is the subset of *slog.Logger the server uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds audio loop tunables.
type Config struct {
	JumpThresholdFrames int64         `json:"jumpThresholdFrames" mapstructure:"jumpThresholdFrames"`
	ReadAheadFrames     int64         `json:"readAheadFrames" mapstructure:"readAheadFrames"`
	PrimeChunks         int           `json:"primeChunks" mapstructure:"primeChunks"`
	LatencyCompensation time.Duration `json:"latencyCompensation" mapstructure:"latencyCompensation"`
	IdleSleep           time.Duration `json:"idleSleep" mapstructure:"idleSleep"`
	PollSleep           time.Duration `json:"pollSleep" mapstructure:"pollSleep"`
	MasterGain          float64       `json:"masterGain" mapstructure:"masterGain"`
	TickBuffer          int           `json:"tickBuffer" mapstructure:"tickBuffer"`
}

// DefaultConfig returns the tunables used when none are configured.
func DefaultConfig() Config {
	return Config{
		JumpThresholdFrames: 10,
		ReadAheadFrames:     10,
		PrimeChunks:         5,
		LatencyCompensation: 40 * time.Millisecond,
		IdleSleep:           10 * time.Millisecond,
		PollSleep:           2 * time.Millisecond,
		MasterGain:          1,
		TickBuffer:          4,
	}
}

// Dependencies holds the collaborators of a Server.
type Dependencies struct {
	Timeline  core.Timeline
	Transport *timeline.Transport
	Device    Device
	// Meter is optional.
	Meter  core.MeterSink
	Logger Logger
}

// Stats is a snapshot of audio loop activity.
type Stats struct {
	Playing       bool    `json:"playing"`
	DeviceOpen    bool    `json:"deviceOpen"`
	LastFrame     int64   `json:"lastFrame"`
	Rate          float64 `json:"rate"`
	ChunksWritten uint64  `json:"chunksWritten"`
	WriteErrors   uint64  `json:"writeErrors"`
	Primes        uint64  `json:"primes"`
	Ticks         uint64  `json:"ticks"`
	TicksDropped  uint64  `json:"ticksDropped"`
	PeakLeft      float64 `json:"peakLeft"`
	PeakRight     float64 `json:"peakRight"`
}

// loopState is owned by the loop goroutine.
type loopState struct {
	props      core.Properties
	clock      *clock.Clock
	mixer      *Mixer
	deviceOpen bool
	playing    bool
	synced     bool // false until the clock is anchored for this play run
	lastFrame  int64
	lastRate   float64
	cursor     float64 // timeline position of the next chunk to mix
	carry      float64 // fractional sample frames owed to the next chunk
	written    int64   // sample frames written since the last flush
	flushedAt  int64   // device position at the last flush
	failing    bool    // inside a streak of write errors
}

// Server is the audio engine.
type Server struct {
	cfg  Config
	deps Dependencies

	pendingProps atomic.Pointer[core.Properties]
	state        loopState

	ticks  chan float64
	onTick func(seconds float64)

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	stats struct {
		deviceOpen atomic.Bool
		lastFrame  atomic.Int64
		chunks     atomic.Uint64
		writeErrs  atomic.Uint64
		primes     atomic.Uint64
		ticks      atomic.Uint64
		dropped    atomic.Uint64
		peakL      atomic.Uint64
		peakR      atomic.Uint64
	}
	metrics *metrics
}

// New creates an audio server for props. The device is opened by the loop.
func New(deps Dependencies, cfg Config, props core.Properties) (*Server, error) {
	if deps.Timeline == nil || deps.Transport == nil || deps.Device == nil {
		return nil, fmt.Errorf("audio server requires a timeline, a transport and a device")
	}
	if err := props.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project properties: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.TickBuffer <= 0 {
		cfg.TickBuffer = def.TickBuffer
	}
	if cfg.PrimeChunks < 0 {
		cfg.PrimeChunks = 0
	}

	s := &Server{
		cfg:   cfg,
		deps:  deps,
		ticks: make(chan float64, cfg.TickBuffer),
	}
	s.pendingProps.Store(&props)
	s.state.mixer = NewMixer(deps.Timeline, props, cfg.MasterGain)

	var err error
	s.metrics, err = newMetrics()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OnClockTick registers the sync callback. Ticks are delivered in order on a
// single goroutine; when the callback falls behind the oldest ticks are
// dropped. Must be called before Start.
func (s *Server) OnClockTick(fn func(seconds float64)) {
	s.onTick = fn
}

// Ticks exposes the tick channel for callers that pump it themselves instead
// of registering a callback.
func (s *Server) Ticks() <-chan float64 {
	return s.ticks
}

// Start launches the audio loop and, if registered, the tick pump.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)

	if s.onTick != nil {
		s.wg.Add(1)
		go s.pump(ctx)
	}
	s.deps.Logger.Info("audio server started")
}

// Stop halts the loop and closes the device.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	if s.state.deviceOpen {
		if err := s.deps.Device.Close(); err != nil {
			s.deps.Logger.Warn("closing audio device", "error", err)
		}
		s.state.deviceOpen = false
		s.stats.deviceOpen.Store(false)
	}
	s.deps.Logger.Info("audio server stopped", "chunks", s.stats.chunks.Load())
}

// StartPlayback asks the loop to become the clock.
func (s *Server) StartPlayback() {
	s.deps.Transport.SetPlaying(true)
}

// StopPlayback asks the loop to flush, silence the meters and release the
// clock.
func (s *Server) StopPlayback() {
	s.deps.Transport.SetPlaying(false)
}

// SetProperties reopens the device and clock with new rates. It also
// re-enables a device that failed to open.
func (s *Server) SetProperties(props core.Properties) error {
	if err := props.Validate(); err != nil {
		return fmt.Errorf("invalid project properties: %w", err)
	}
	s.pendingProps.Store(&props)
	return nil
}

// Stats returns a snapshot of loop counters.
func (s *Server) Stats() Stats {
	return Stats{
		Playing:       s.deps.Transport.Playing(),
		DeviceOpen:    s.stats.deviceOpen.Load(),
		LastFrame:     s.stats.lastFrame.Load(),
		Rate:          s.deps.Transport.Rate(),
		ChunksWritten: s.stats.chunks.Load(),
		WriteErrors:   s.stats.writeErrs.Load(),
		Primes:        s.stats.primes.Load(),
		Ticks:         s.stats.ticks.Load(),
		TicksDropped:  s.stats.dropped.Load(),
		PeakLeft:      math.Float64frombits(s.stats.peakL.Load()),
		PeakRight:     math.Float64frombits(s.stats.peakR.Load()),
	}
}

func (s *Server) loop(ctx context.Context) {
	defer s.wg.Done()
	// Keep the loop on one OS thread so scheduling priority set by the
	// platform layer sticks to it.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for ctx.Err() == nil {
		if d := s.step(); d > 0 {
			time.Sleep(d)
		}
	}
}

// step runs one iteration of the audio loop and returns how long to sleep
// before the next one.
func (s *Server) step() time.Duration {
	st := &s.state
	tr := s.deps.Transport

	if p := s.pendingProps.Swap(nil); p != nil {
		s.applyProperties(*p)
	}
	if !st.deviceOpen {
		st.synced = false
		return s.cfg.IdleSleep
	}

	if !tr.Playing() {
		if st.playing {
			s.halt()
		}
		if tr.Owner() == timeline.OwnerAudio {
			tr.SetOwner(timeline.OwnerUI)
		}
		return s.cfg.IdleSleep
	}
	st.playing = true
	tr.SetOwner(timeline.OwnerAudio)

	playhead, rate := tr.Playhead(), tr.Rate()
	switch {
	case !st.synced || distance(playhead, st.lastFrame) > s.cfg.JumpThresholdFrames:
		s.sync(playhead, rate)
	case rate != st.lastRate:
		st.clock.SetRate(rate, s.deps.Device.Position())
		st.lastRate = rate
	}

	candidate := clock.Clamp(st.lastFrame, st.clock.Project(s.deps.Device.Position()), rate)
	if candidate != st.lastFrame {
		if !tr.AdvancePlayhead(st.lastFrame, candidate) {
			// A seek landed in between.
			st.synced = false
			return 0
		}
		st.lastFrame = candidate
		s.stats.lastFrame.Store(candidate)
		s.tick(candidate)
	}

	if s.needsAudio(candidate, rate) {
		s.writeChunk(rate)
		return 0
	}
	return s.cfg.PollSleep
}

// sync anchors the clock at playhead after a start or a seek and primes the
// device.
func (s *Server) sync(playhead int64, rate float64) {
	st := &s.state
	s.flush()
	pos := s.deps.Device.Position()
	st.clock.Reset(playhead, pos)
	st.clock.SetRate(rate, pos)
	st.synced = true
	st.lastFrame = playhead
	st.lastRate = rate
	st.cursor = float64(playhead)
	s.stats.lastFrame.Store(playhead)

	for i := 0; i < s.cfg.PrimeChunks; i++ {
		s.writeChunk(rate)
	}
	s.stats.primes.Add(1)
	s.metrics.primes.Add(context.Background(), 1)
	s.tick(playhead)
	s.deps.Logger.Debug("audio clock anchored", "frame", playhead, "rate", rate, "position", pos)
}

// needsAudio reports whether the mix cursor is inside the read-ahead window.
func (s *Server) needsAudio(candidate int64, rate float64) bool {
	st := &s.state
	if math.Abs(rate) < silentRate {
		// Paused in place: keep the device fed with silence.
		buffered := st.written - (s.deps.Device.Position() - st.flushedAt)
		return float64(buffered) < float64(s.cfg.ReadAheadFrames)*st.props.SamplesPerFrame()
	}
	ahead := (st.cursor - float64(candidate)) * math.Copysign(1, rate)
	return ahead < float64(s.cfg.ReadAheadFrames)
}

// writeChunk mixes one timeline frame's worth of device time at the cursor.
func (s *Server) writeChunk(rate float64) {
	st := &s.state
	ctx := context.Background()

	st.carry += st.props.SamplesPerFrame()
	n := int(st.carry)
	st.carry -= float64(n)

	samples, peakL, peakR := st.mixer.MixChunk(st.cursor, rate, n)
	st.cursor += rate
	s.meter(peakL, peakR)

	if err := s.deps.Device.Write(samples); err != nil {
		s.stats.writeErrs.Add(1)
		s.metrics.writeErrors.Add(ctx, 1)
		if !st.failing {
			st.failing = true
			s.deps.Logger.Warn("audio write failed, continuing", "error", err)
		}
		return
	}
	if st.failing {
		st.failing = false
		s.deps.Logger.Info("audio writes recovered")
	}
	st.written += int64(n)
	s.stats.chunks.Add(1)
	s.metrics.chunks.Add(ctx, 1)
}

func (s *Server) applyProperties(props core.Properties) {
	st := &s.state
	changed := !st.deviceOpen || props.SampleRate != st.props.SampleRate || props.FPS != st.props.FPS
	st.props = props
	st.mixer.SetProperties(props)
	st.synced = false
	if !changed {
		return
	}

	c, err := clock.New(props.SampleRate, props.FPS)
	if err != nil {
		s.disable(err)
		return
	}
	st.clock = c
	st.carry = 0

	if err := s.deps.Device.Open(Format{SampleRate: props.SampleRate, Channels: channels}); err != nil {
		s.disable(fmt.Errorf("%w: %w", ErrDeviceUnavailable, err))
		return
	}
	st.deviceOpen = true
	st.written, st.flushedAt = 0, s.deps.Device.Position()
	s.stats.deviceOpen.Store(true)
	s.deps.Logger.Info("audio device opened", "sampleRate", props.SampleRate, "fps", props.FPS)
}

// disable turns audio off until the next SetProperties.
func (s *Server) disable(err error) {
	s.state.deviceOpen = false
	s.stats.deviceOpen.Store(false)
	s.metrics.deviceFailures.Add(context.Background(), 1)
	s.deps.Logger.Error("audio disabled until properties change", "error", err)
}

// halt handles the transition out of playback.
func (s *Server) halt() {
	st := &s.state
	st.playing = false
	st.synced = false
	s.flush()
	s.meter(0, 0)
}

func (s *Server) flush() {
	st := &s.state
	if err := s.deps.Device.Flush(); err != nil {
		s.deps.Logger.Debug("audio flush failed", "error", err)
	}
	st.written, st.flushedAt = 0, s.deps.Device.Position()
	st.carry = 0
}

func (s *Server) meter(peakL, peakR float64) {
	peakL, peakR = min(peakL, 1), min(peakR, 1)
	s.stats.peakL.Store(math.Float64bits(peakL))
	s.stats.peakR.Store(math.Float64bits(peakR))
	if s.deps.Meter != nil {
		s.deps.Meter.SetLevels(peakL, peakR)
	}
}

// tick queues a sync tick for frame, dropping the oldest when full.
func (s *Server) tick(frame int64) {
	seconds := s.state.props.SecondsAt(frame) + s.cfg.LatencyCompensation.Seconds()
	s.stats.ticks.Add(1)
	for {
		select {
		case s.ticks <- seconds:
			return
		default:
		}
		select {
		case <-s.ticks:
			s.stats.dropped.Add(1)
		default:
		}
	}
}

func (s *Server) pump(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case seconds := <-s.ticks:
			s.onTick(seconds)
		}
	}
}

func distance(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
