package engine

import (
	"fmt"

	"github.com/reelcut/playback/internal/dispatcher"
	"github.com/reelcut/playback/pkg/core"
)

// Commands understood by the engine's dispatcher.
const (
	CmdFrameRequest    = ":FRAME:REQUEST:"
	CmdCacheInvalidate = ":CACHE:INVALIDATE:"
	CmdPlaybackStart   = ":PLAYBACK:START:"
	CmdPlaybackStop    = ":PLAYBACK:STOP:"
	CmdPropertiesSet   = ":PROPERTIES:SET:"
	CmdClockTick       = ":CLOCK:TICK:"
)

// FrameRequest is the payload of CmdFrameRequest.
type FrameRequest struct {
	Seconds float64
	Force   bool
}

// RegisterHandlers registers the engine commands with d.
func (e *Engine) RegisterHandlers(d *dispatcher.Dispatcher) {
	// UI commands - sync, the caller is the UI thread
	d.Register(CmdFrameRequest, e.handleFrameRequest)
	d.Register(CmdCacheInvalidate, e.handleCacheInvalidate, dispatcher.Logged())
	d.Register(CmdPlaybackStart, e.handlePlaybackStart, dispatcher.Logged())
	d.Register(CmdPlaybackStop, e.handlePlaybackStop, dispatcher.Logged())
	d.Register(CmdPropertiesSet, e.handlePropertiesSet, dispatcher.Logged())

	// Audio clock - buffered, only the newest ticks matter
	d.Register(CmdClockTick, e.handleClockTick,
		dispatcher.Buffered(max(e.cfg.AudioServer.TickBuffer, 1)), dispatcher.DropOldest())
}

func (e *Engine) handleFrameRequest(ev dispatcher.Event) (any, error) {
	req, ok := ev.Payload.(FrameRequest)
	if !ok {
		return nil, fmt.Errorf("frame request payload is %T", ev.Payload)
	}
	e.frames.RequestFrame(req.Seconds, req.Force)
	return nil, nil
}

func (e *Engine) handleCacheInvalidate(dispatcher.Event) (any, error) {
	e.frames.InvalidateCache()
	if !e.transport.Playing() {
		// Repaint the now blank screen from the edited timeline.
		e.frames.RequestTimelineFrame(e.transport.Playhead(), false)
	}
	return nil, nil
}

func (e *Engine) handlePlaybackStart(dispatcher.Event) (any, error) {
	e.audio.StartPlayback()
	return nil, nil
}

func (e *Engine) handlePlaybackStop(dispatcher.Event) (any, error) {
	e.audio.StopPlayback()
	e.frames.RequestTimelineFrame(e.transport.Playhead(), false)
	return nil, nil
}

func (e *Engine) handlePropertiesSet(ev dispatcher.Event) (any, error) {
	props, ok := ev.Payload.(core.Properties)
	if !ok {
		return nil, fmt.Errorf("properties payload is %T", ev.Payload)
	}
	if err := e.frames.SetProperties(props); err != nil {
		return nil, err
	}
	if err := e.audio.SetProperties(props); err != nil {
		return nil, err
	}
	e.frames.RequestTimelineFrame(e.transport.Playhead(), false)
	return nil, nil
}

// handleClockTick is the audio sync path. It asks for the frame directly and
// never invalidates.
func (e *Engine) handleClockTick(ev dispatcher.Event) (any, error) {
	seconds, ok := ev.Payload.(float64)
	if !ok {
		return nil, fmt.Errorf("clock tick payload is %T", ev.Payload)
	}
	e.frames.RequestFrame(seconds, false)

	e.listenMu.RLock()
	defer e.listenMu.RUnlock()
	for _, fn := range e.listeners {
		fn(seconds)
	}
	return nil, nil
}
