// Package engine wires the timeline, the frame server and the audio server
// into one playback engine and exposes the surface the editor UI drives.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/reelcut/playback/internal/audioserver"
	"github.com/reelcut/playback/internal/dispatcher"
	"github.com/reelcut/playback/internal/frameserver"
	"github.com/reelcut/playback/internal/timeline"
	"github.com/reelcut/playback/pkg/core"
)

// Config groups the tunables of both servers.
type Config struct {
	FrameServer frameserver.Config `json:"frameServer" mapstructure:"frameServer"`
	AudioServer audioserver.Config `json:"audio" mapstructure:"audio"`
	// CommandBuffer sizes the queues of buffered commands.
	CommandBuffer int `json:"commandBuffer" mapstructure:"commandBuffer"`
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		FrameServer:   frameserver.DefaultConfig(),
		AudioServer:   audioserver.DefaultConfig(),
		CommandBuffer: 64,
	}
}

// Dependencies holds the collaborators of an Engine.
type Dependencies struct {
	Timeline *timeline.Model
	// Transport is created when nil.
	Transport  *timeline.Transport
	Display    core.DisplaySink
	Device     audioserver.Device
	Meter      core.MeterSink
	Properties core.Properties
	Logger     *slog.Logger
	// DispatcherLogger defaults to Logger.
	DispatcherLogger dispatcher.Logger
	// Session is generated when empty.
	Session string
}

// Stats is a combined snapshot of the engine.
type Stats struct {
	Session  string            `json:"session"`
	Playhead int64             `json:"playhead"`
	Rate     float64           `json:"rate"`
	Playing  bool              `json:"playing"`
	Owner    string            `json:"owner"`
	Revision uint64            `json:"revision"`
	Frames   frameserver.Stats `json:"frames"`
	Audio    audioserver.Stats `json:"audio"`

	Commands map[string]dispatcher.CommandStats `json:"commands"`
}

// Engine is the playback engine of one open project.
type Engine struct {
	cfg       Config
	session   string
	logger    *slog.Logger
	timeline  *timeline.Model
	transport *timeline.Transport

	frames     *frameserver.Server
	audio      *audioserver.Server
	dispatcher *dispatcher.Dispatcher

	listenMu  sync.RWMutex
	listeners []func(seconds float64)

	mu      sync.Mutex
	running bool
}

// New builds an engine. Nothing runs until Start.
func New(deps Dependencies, cfg Config) (*Engine, error) {
	if deps.Timeline == nil {
		return nil, fmt.Errorf("engine requires a timeline")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Transport == nil {
		deps.Transport = timeline.NewTransport()
	}
	if deps.DispatcherLogger == nil {
		deps.DispatcherLogger = deps.Logger
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultConfig().CommandBuffer
	}

	if deps.Session == "" {
		deps.Session = uuid.NewString()
	}

	e := &Engine{
		cfg:       cfg,
		session:   deps.Session,
		timeline:  deps.Timeline,
		transport: deps.Transport,
	}
	e.logger = deps.Logger.With("session", e.session)

	var err error
	e.frames, err = frameserver.New(frameserver.Dependencies{
		Timeline: deps.Timeline,
		Display:  deps.Display,
		Logger:   e.logger.With("component", "frameserver"),
	}, cfg.FrameServer, deps.Properties)
	if err != nil {
		return nil, fmt.Errorf("creating frame server: %w", err)
	}

	e.audio, err = audioserver.New(audioserver.Dependencies{
		Timeline:  deps.Timeline,
		Transport: deps.Transport,
		Device:    deps.Device,
		Meter:     deps.Meter,
		Logger:    e.logger.With("component", "audioserver"),
	}, cfg.AudioServer, deps.Properties)
	if err != nil {
		return nil, fmt.Errorf("creating audio server: %w", err)
	}

	e.dispatcher, err = dispatcher.New(deps.DispatcherLogger)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	e.RegisterHandlers(e.dispatcher)
	e.audio.OnClockTick(e.forwardTick)

	return e, nil
}

// Session returns the ID of this engine instance.
func (e *Engine) Session() string {
	return e.session
}

// Timeline returns the model the engine plays.
func (e *Engine) Timeline() *timeline.Model {
	return e.timeline
}

// Transport returns the shared playhead and play state.
func (e *Engine) Transport() *timeline.Transport {
	return e.transport
}

// Start launches the render workers and the audio loop, then shows the frame
// under the playhead.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.frames.Start(ctx)
	e.audio.Start(ctx)
	e.frames.RequestTimelineFrame(e.transport.Playhead(), false)
	e.logger.Info("playback engine started", "project", e.timeline.Name())
}

// Stop halts playback and both servers. Queued commands are drained first.
// A stopped engine cannot be started again.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	e.transport.SetPlaying(false)
	e.audio.Stop()
	e.dispatcher.Close()
	e.frames.Stop()
	e.logger.Info("playback engine stopped")
}

// OnClockTick registers fn to receive every audio sync tick after the frame
// server has been asked for the matching frame. fn runs on the tick
// goroutine and must not block.
func (e *Engine) OnClockTick(fn func(seconds float64)) {
	e.listenMu.Lock()
	defer e.listenMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// RequestFrame shows the frame at seconds, rendering it if needed.
func (e *Engine) RequestFrame(seconds float64, force bool) error {
	_, err := e.dispatcher.Dispatch(dispatcher.Event{
		Command: CmdFrameRequest,
		Payload: FrameRequest{Seconds: seconds, Force: force},
	})
	return err
}

// Scrub moves the playhead from the UI and shows the frame there. During
// playback the audio loop picks the new position up instead.
func (e *Engine) Scrub(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	e.transport.Seek(frame)
	if e.transport.Playing() {
		return nil
	}
	return e.RequestFrame(e.frames.Properties().SecondsAt(frame), false)
}

// InvalidateCache drops rendered frames after a structural edit.
func (e *Engine) InvalidateCache() error {
	_, err := e.dispatcher.Dispatch(dispatcher.Event{Command: CmdCacheInvalidate})
	return err
}

// Edit applies fn to the timeline and invalidates the cache afterwards, even
// when fn fails part way.
func (e *Engine) Edit(fn func(m *timeline.Model) error) error {
	editErr := fn(e.timeline)
	if err := e.InvalidateCache(); err != nil {
		return err
	}
	return editErr
}

// StartPlayback hands the clock to the audio loop.
func (e *Engine) StartPlayback() error {
	_, err := e.dispatcher.Dispatch(dispatcher.Event{Command: CmdPlaybackStart})
	return err
}

// StopPlayback returns the clock to the UI.
func (e *Engine) StopPlayback() error {
	_, err := e.dispatcher.Dispatch(dispatcher.Event{Command: CmdPlaybackStop})
	return err
}

// SetRate changes the playback rate. Negative rates play in reverse.
func (e *Engine) SetRate(rate float64) {
	e.transport.SetRate(rate)
}

// SetProperties applies new project properties to both servers.
func (e *Engine) SetProperties(props core.Properties) error {
	_, err := e.dispatcher.Dispatch(dispatcher.Event{Command: CmdPropertiesSet, Payload: props})
	return err
}

// Properties returns the current project properties.
func (e *Engine) Properties() core.Properties {
	return e.frames.Properties()
}

// Stats returns a combined snapshot.
func (e *Engine) Stats() Stats {
	return Stats{
		Session:  e.session,
		Playhead: e.transport.Playhead(),
		Rate:     e.transport.Rate(),
		Playing:  e.transport.Playing(),
		Owner:    e.transport.Owner().String(),
		Revision: e.timeline.LayoutRevision(),
		Frames:   e.frames.Stats(),
		Audio:    e.audio.Stats(),
		Commands: e.dispatcher.Stats(),
	}
}

// LogContext returns the attributes attached to every log record while the
// engine runs. It is a logging.ContextProvider.
func (e *Engine) LogContext() []slog.Attr {
	return []slog.Attr{
		slog.String("session", e.session),
		slog.Int64("playhead", e.transport.Playhead()),
		slog.Float64("rate", e.transport.Rate()),
		slog.Uint64("revision", e.timeline.LayoutRevision()),
	}
}

// forwardTick moves an audio tick onto the dispatcher so the audio pump
// never waits on the frame server.
func (e *Engine) forwardTick(seconds float64) {
	_, _ = e.dispatcher.Dispatch(dispatcher.Event{Command: CmdClockTick, Payload: seconds})
}
