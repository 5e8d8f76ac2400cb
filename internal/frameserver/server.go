// Package frameserver answers "what does the canvas look like at timeline
// frame N" using a shared priority queue of render jobs, a bounded frame
// cache and cooperative cancellation through the layout revision.
package frameserver

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/reelcut/playback/internal/cache"
	"github.com/reelcut/playback/internal/queue"
	"github.com/reelcut/playback/internal/worker"
	"github.com/reelcut/playback/pkg/core"
)

// Logger is the subset of *slog.Logger the server uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds frame server tunables.
type Config struct {
	CacheMB               int     `json:"cacheMB" mapstructure:"cacheMB"`
	Workers               int     `json:"workers" mapstructure:"workers"`
	PublishDriftTolerance int64   `json:"publishDriftTolerance" mapstructure:"publishDriftTolerance"`
	FastScrubVelocity     float64 `json:"fastScrubVelocity" mapstructure:"fastScrubVelocity"`
	PrefetchMaxVelocity   float64 `json:"prefetchMaxVelocity" mapstructure:"prefetchMaxVelocity"`
	VelocitySmoothing     float64 `json:"velocitySmoothing" mapstructure:"velocitySmoothing"`
	PrefetchFrames        int     `json:"prefetchFrames" mapstructure:"prefetchFrames"`
	MaxQueuedJobs         int     `json:"maxQueuedJobs" mapstructure:"maxQueuedJobs"`
	PoolPerSize           int     `json:"poolPerSize" mapstructure:"poolPerSize"`
}

// DefaultConfig returns the tunables used when none are configured.
func DefaultConfig() Config {
	return Config{
		CacheMB:               512,
		PublishDriftTolerance: 1,
		FastScrubVelocity:     0.5,
		PrefetchMaxVelocity:   1.0,
		VelocitySmoothing:     0.3,
		PrefetchFrames:        8,
		MaxQueuedJobs:         256,
		PoolPerSize:           8,
	}
}

// Dependencies holds the collaborators of a Server.
type Dependencies struct {
	Timeline core.Timeline
	Display  core.DisplaySink
	Logger   Logger
	// Now is used for scrub velocity; defaults to time.Now.
	Now func() time.Time
}

// Stats is a snapshot of frame server activity.
type Stats struct {
	Target         int64   `json:"target"`
	Displayed      int64   `json:"displayed"`
	CacheFrames    int     `json:"cacheFrames"`
	CacheBudget    int     `json:"cacheBudget"`
	Queued         int     `json:"queued"`
	Busy           int     `json:"busy"`
	Velocity       float64 `json:"velocity"`
	Rendered       uint64  `json:"rendered"`
	Stale          uint64  `json:"stale"`
	CacheHits      uint64  `json:"cacheHits"`
	CacheMisses    uint64  `json:"cacheMisses"`
	Published      uint64  `json:"published"`
	DecodeFailures uint64  `json:"decodeFailures"`
	PoolHits       uint64  `json:"poolHits"`
	PoolMisses     uint64  `json:"poolMisses"`
}

type counters struct {
	rendered       atomic.Uint64
	stale          atomic.Uint64
	hits           atomic.Uint64
	misses         atomic.Uint64
	published      atomic.Uint64
	decodeFailures atomic.Uint64
}

// Server renders and publishes timeline frames.
type Server struct {
	cfg  Config
	deps Dependencies

	props    atomic.Pointer[core.Properties]
	target   atomic.Int64
	seq      atomic.Uint64
	velocity *velocityTracker

	frames  *cache.FrameCache
	pool    *cache.BufferPool
	jobs    *queue.Queue[renderJob]
	workers *worker.Pool[renderJob]

	// pending holds frames with a queued or running prefetch job.
	pendMu  sync.Mutex
	pending map[int64]struct{}

	// publishMu serializes every cache mutation with publishing, so a
	// revision check followed by insert and publish is atomic with respect
	// to InvalidateCache.
	publishMu      sync.Mutex
	displayed      *image.RGBA
	displayedFrame int64

	stats   counters
	metrics *metrics
}

// New creates a frame server for props. Call Start to launch the workers.
func New(deps Dependencies, cfg Config, props core.Properties) (*Server, error) {
	if deps.Timeline == nil {
		return nil, fmt.Errorf("frame server requires a timeline")
	}
	if deps.Display == nil {
		return nil, fmt.Errorf("frame server requires a display sink")
	}
	if err := props.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project properties: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.CacheMB <= 0 {
		cfg.CacheMB = DefaultConfig().CacheMB
	}
	if cfg.MaxQueuedJobs <= 0 {
		cfg.MaxQueuedJobs = DefaultConfig().MaxQueuedJobs
	}
	if cfg.PoolPerSize <= 0 {
		cfg.PoolPerSize = DefaultConfig().PoolPerSize
	}

	w, h := canvasSize(props)
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		velocity: newVelocityTracker(cfg.VelocitySmoothing, deps.Now),
		frames:   cache.NewFrameCache(cache.BudgetFrames(cfg.CacheMB, w, h)),
		pool:     cache.NewBufferPool(cfg.PoolPerSize),
		jobs:     queue.New[renderJob](),
		pending:  make(map[int64]struct{}),
	}
	s.props.Store(&props)
	s.target.Store(-1)
	s.displayedFrame = -1

	var err error
	s.workers, err = worker.NewPool(worker.Dependencies[renderJob]{
		Queue:  s.jobs,
		Less:   s.less,
		Run:    s.run,
		Logger: deps.Logger,
	}, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("creating render workers: %w", err)
	}

	s.metrics, err = newMetrics(
		func() int64 { return int64(s.jobs.Len()) },
		func() int64 { return int64(s.frames.Len()) },
	)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Start launches the render workers.
func (s *Server) Start(ctx context.Context) {
	s.workers.Start(ctx)
	s.deps.Logger.Info("frame server started",
		"workers", s.workers.Size(), "cacheFrames", s.frames.Budget())
}

// Stop halts the workers and drops queued jobs.
func (s *Server) Stop() {
	s.workers.Stop()
	s.jobs.Clear()
	s.pendMu.Lock()
	clear(s.pending)
	s.pendMu.Unlock()
	s.deps.Logger.Info("frame server stopped", "rendered", s.stats.rendered.Load())
}

// Properties returns the current project properties.
func (s *Server) Properties() core.Properties {
	return *s.props.Load()
}

// Target returns the frame the user is currently looking for.
func (s *Server) Target() int64 {
	return s.target.Load()
}

// RequestFrame asks for the canvas at a timeline time in seconds. With force
// the cached copy of that frame is dropped and re-rendered. Never blocks on
// rendering.
func (s *Server) RequestFrame(seconds float64, force bool) {
	s.RequestTimelineFrame(s.props.Load().FrameAt(seconds), force)
}

// RequestTimelineFrame is RequestFrame addressed by frame number.
func (s *Server) RequestTimelineFrame(frame int64, force bool) {
	ctx := context.Background()
	s.target.Store(frame)
	velocity := s.velocity.Observe(frame)
	revision := s.deps.Timeline.LayoutRevision()

	s.publishMu.Lock()
	if force {
		s.recycleLocked(s.frames.Remove(frame))
	} else if img, ok := s.frames.Get(frame); ok {
		s.publishLocked(frame, img)
		s.publishMu.Unlock()

		s.stats.hits.Add(1)
		s.metrics.hits.Add(ctx, 1)
		if velocity <= s.cfg.PrefetchMaxVelocity {
			s.prefetch(frame, revision)
		}
		return
	}
	s.publishMu.Unlock()

	s.stats.misses.Add(1)
	s.metrics.misses.Add(ctx, 1)
	s.submit(renderJob{frame: frame, revision: revision})
	if velocity <= s.cfg.PrefetchMaxVelocity {
		s.prefetch(frame, revision)
	}
}

// InvalidateCache drops every cached frame after a structural edit. The frame
// on screen is painted black in place and republished, and the layout
// revision is bumped so in-flight jobs discard themselves.
func (s *Server) InvalidateCache() {
	s.publishMu.Lock()
	for _, img := range s.frames.Clear(s.displayed) {
		s.pool.Put(img)
	}
	if s.displayed != nil {
		draw.Draw(s.displayed, s.displayed.Bounds(), image.Black, image.Point{}, draw.Src)
		s.deps.Display.Publish(s.displayed)
	}
	revision := s.deps.Timeline.BumpLayoutRevision()
	s.publishMu.Unlock()

	s.dropJobs(func(j renderJob) bool { return j.revision < revision })
	s.deps.Logger.Debug("frame cache invalidated", "revision", revision)
}

// SetProperties applies new project properties, resizes the cache budget and
// invalidates every cached frame.
func (s *Server) SetProperties(props core.Properties) error {
	if err := props.Validate(); err != nil {
		return fmt.Errorf("invalid project properties: %w", err)
	}
	s.props.Store(&props)
	w, h := canvasSize(props)
	s.frames.SetBudget(cache.BudgetFrames(s.cfg.CacheMB, w, h))
	s.velocity.Reset()
	s.InvalidateCache()
	return nil
}

// Stats returns a snapshot of server counters.
func (s *Server) Stats() Stats {
	poolHits, poolMisses := s.pool.Stats()
	s.publishMu.Lock()
	displayed := s.displayedFrame
	s.publishMu.Unlock()
	return Stats{
		Target:         s.target.Load(),
		Displayed:      displayed,
		CacheFrames:    s.frames.Len(),
		CacheBudget:    s.frames.Budget(),
		Queued:         s.jobs.Len(),
		Busy:           s.workers.Busy(),
		Velocity:       s.velocity.Value(),
		Rendered:       s.stats.rendered.Load(),
		Stale:          s.stats.stale.Load(),
		CacheHits:      s.stats.hits.Load(),
		CacheMisses:    s.stats.misses.Load(),
		Published:      s.stats.published.Load(),
		DecodeFailures: s.stats.decodeFailures.Load(),
		PoolHits:       poolHits,
		PoolMisses:     poolMisses,
	}
}

func (s *Server) less(a, b renderJob) bool {
	return lessJob(s.target.Load(), a, b)
}

func (s *Server) submit(job renderJob) {
	if s.jobs.Len() >= s.cfg.MaxQueuedJobs {
		// Drop work that would discard itself anyway, then prefetch.
		revision := s.deps.Timeline.LayoutRevision()
		target := s.target.Load()
		s.dropJobs(func(j renderJob) bool {
			return j.revision < revision || (!j.prefetch && j.frame != target)
		})
		if s.jobs.Len() >= s.cfg.MaxQueuedJobs {
			s.dropJobs(func(j renderJob) bool { return j.prefetch })
		}
	}
	job.seq = s.seq.Add(1)
	s.jobs.Push(job)
}

func (s *Server) prefetch(frame int64, revision uint64) {
	dir := s.velocity.Direction()
	for i := 1; i <= s.cfg.PrefetchFrames; i++ {
		f := frame + dir*int64(i)
		if f < 0 || s.frames.Contains(f) {
			continue
		}
		s.pendMu.Lock()
		_, queued := s.pending[f]
		if !queued {
			s.pending[f] = struct{}{}
		}
		s.pendMu.Unlock()
		if !queued {
			s.submit(renderJob{frame: f, prefetch: true, revision: revision})
		}
	}
}

func (s *Server) dropJobs(match func(renderJob) bool) {
	removed := s.jobs.RemoveFunc(match)
	if len(removed) == 0 {
		return
	}
	s.pendMu.Lock()
	for _, j := range removed {
		if j.prefetch {
			delete(s.pending, j.frame)
		}
	}
	s.pendMu.Unlock()
}

// abandoned reports whether a job's result can no longer be used.
func (s *Server) abandoned(job renderJob) bool {
	if s.deps.Timeline.LayoutRevision() > job.revision {
		return true
	}
	return !job.prefetch && s.target.Load() != job.frame
}

// run executes one render job on a worker.
func (s *Server) run(ctx context.Context, job renderJob) {
	if job.prefetch {
		defer func() {
			s.pendMu.Lock()
			delete(s.pending, job.frame)
			s.pendMu.Unlock()
		}()
		if s.frames.Contains(job.frame) {
			return
		}
	}

	if s.abandoned(job) {
		s.discard(nil)
		return
	}

	fast := s.velocity.Value() > s.cfg.FastScrubVelocity
	img, ok := s.render(job, *s.props.Load(), fast)
	if !ok {
		s.discard(nil)
		return
	}
	if ctx.Err() != nil {
		s.pool.Put(img)
		return
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	target := s.target.Load()
	if s.deps.Timeline.LayoutRevision() > job.revision ||
		(!job.prefetch && distance(target, job.frame) > s.cfg.PublishDriftTolerance) {
		s.discard(img)
		return
	}

	s.recycleLocked(s.frames.Put(job.frame, img))
	s.stats.rendered.Add(1)
	s.metrics.rendered.Add(ctx, 1)
	if !job.prefetch {
		s.publishLocked(job.frame, img)
	}
	for _, old := range s.frames.Evict(target) {
		s.recycleLocked(old)
	}
}

func (s *Server) discard(img *image.RGBA) {
	if img != nil {
		s.pool.Put(img)
	}
	s.stats.stale.Add(1)
	s.metrics.stale.Add(context.Background(), 1)
}

// publishLocked shows img and recycles the previous screen buffer once the
// cache no longer holds it. Caller holds publishMu.
func (s *Server) publishLocked(frame int64, img *image.RGBA) {
	prev, prevFrame := s.displayed, s.displayedFrame
	s.displayed, s.displayedFrame = img, frame
	s.frames.SetDisplayed(frame)
	s.deps.Display.Publish(img)
	s.stats.published.Add(1)
	s.metrics.published.Add(context.Background(), 1)

	if prev != nil && prev != img {
		if cached, ok := s.frames.Get(prevFrame); !ok || cached != prev {
			s.pool.Put(prev)
		}
	}
}

// recycleLocked returns a buffer dropped from the cache to the pool unless it
// is on screen. Caller holds publishMu.
func (s *Server) recycleLocked(img *image.RGBA) {
	if img != nil && img != s.displayed {
		s.pool.Put(img)
	}
}
