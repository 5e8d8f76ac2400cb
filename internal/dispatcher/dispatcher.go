// Package dispatcher routes engine commands from the UI thread and the audio
// clock to their handlers. A command runs either inline on the caller or on a
// dedicated worker behind a bounded queue.
package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrUnknownCommand is returned for commands nobody registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a rejecting queue has no room.
	ErrQueueFull = errors.New("command queue full")
)

// Queued is the result of a queued command once it has been accepted.
const Queued = "queued"

// Event is one command with its payload.
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is satisfied by *slog.Logger and logging.DispatcherLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type overflow int

const (
	overflowReject overflow = iota
	overflowBlock
	overflowDropOldest
)

// Option configures a command route.
type Option func(*route)

// Buffered runs the handler on its own worker behind a queue of size
// events. A full queue rejects new events unless Blocking or DropOldest is
// also given.
func Buffered(size int) Option {
	return func(r *route) { r.size = size }
}

// Blocking makes the sender wait for room in a full queue.
func Blocking() Option {
	return func(r *route) { r.overflow = overflowBlock }
}

// DropOldest discards the oldest queued event to make room, so the newest
// event is always accepted.
func DropOldest() Option {
	return func(r *route) { r.overflow = overflowDropOldest }
}

// Logged logs every event at debug level and failures at error level.
func Logged() Option {
	return func(r *route) { r.logged = true }
}

// CommandStats counts what happened to one command.
type CommandStats struct {
	Handled uint64 `json:"handled"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	Queued  int    `json:"queued"`
}

type route struct {
	command  string
	handle   HandlerFunc
	size     int
	overflow overflow
	logged   bool
	queue    chan Event

	handled atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger Logger
	inst   *instruments

	mu     sync.RWMutex
	routes map[string]*route
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter provider.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}
	inst, err := newInstruments(d)
	if err != nil {
		return nil, err
	}
	d.inst = inst
	return d, nil
}

// Register routes command to h. Registering a command again replaces the
// earlier route and shuts its worker down.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	r := &route{command: command, handle: h}
	for _, opt := range opts {
		opt(r)
	}
	if r.size > 0 {
		r.queue = make(chan Event, r.size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.routes[command]; ok && old.queue != nil && !d.closed {
		close(old.queue)
	}
	d.routes[command] = r
	if r.queue != nil {
		d.wg.Add(1)
		go d.work(r)
	}
}

// Handles reports whether command has a route.
func (d *Dispatcher) Handles(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Dispatch runs or queues e. Queued commands return Queued once accepted.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrClosed
	}
	r, ok := d.routes[e.Command]
	if !ok {
		d.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if r.queue == nil {
		d.mu.RUnlock()
		return d.run(r, e)
	}
	// The read lock stays held across the send so Close cannot close the
	// queue under us.
	defer d.mu.RUnlock()
	return d.enqueue(r, e)
}

// Stats returns per command counters.
func (d *Dispatcher) Stats() map[string]CommandStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]CommandStats, len(d.routes))
	for cmd, r := range d.routes {
		out[cmd] = CommandStats{
			Handled: r.handled.Load(),
			Failed:  r.failed.Load(),
			Dropped: r.dropped.Load(),
			Queued:  len(r.queue),
		}
	}
	return out
}

// Close rejects further events and waits for every worker to finish the
// events already queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.queue != nil {
			close(r.queue)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) enqueue(r *route, e Event) (any, error) {
	switch r.overflow {
	case overflowBlock:
		r.queue <- e
		return Queued, nil
	case overflowDropOldest:
		for {
			select {
			case r.queue <- e:
				return Queued, nil
			default:
			}
			select {
			case <-r.queue:
				d.drop(r)
			default:
			}
		}
	default:
		select {
		case r.queue <- e:
			return Queued, nil
		default:
			d.drop(r)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, r.command)
		}
	}
}

func (d *Dispatcher) drop(r *route) {
	r.dropped.Add(1)
	d.inst.dropped(r.command)
}

func (d *Dispatcher) work(r *route) {
	defer d.wg.Done()
	for e := range r.queue {
		d.runQueued(r, e)
	}
}

// runQueued keeps the worker alive when a handler panics.
func (d *Dispatcher) runQueued(r *route, e Event) {
	defer func() {
		if p := recover(); p != nil {
			r.failed.Add(1)
			d.inst.processed(r.command, false)
			d.logger.Error("command handler panicked", "command", r.command, "panic", p)
		}
	}()
	if _, err := d.run(r, e); err != nil && !r.logged {
		d.logger.Warn("queued command failed", "command", r.command, "error", err)
	}
}

func (d *Dispatcher) run(r *route, e Event) (any, error) {
	var start time.Time
	if r.logged {
		start = time.Now()
		d.logger.Debug("handling command", "command", r.command, "payload", fmt.Sprintf("%T", e.Payload))
	}

	result, err := r.handle(e)

	r.handled.Add(1)
	if err != nil {
		r.failed.Add(1)
	}
	d.inst.processed(r.command, err == nil)

	if r.logged {
		if err != nil {
			d.logger.Error("command failed", "command", r.command, "took", time.Since(start), "error", err)
		} else {
			d.logger.Debug("command done", "command", r.command, "took", time.Since(start))
		}
	}
	return result, err
}
