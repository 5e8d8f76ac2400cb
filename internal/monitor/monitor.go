package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/reelcut/playback/internal/database"
	"github.com/reelcut/playback/internal/engine"
	"github.com/reelcut/playback/internal/influx"
	"github.com/reelcut/playback/internal/model"
)

// Measurement is the Influx measurement of engine samples.
const Measurement = "engine"

// Config controls the sampler.
type Config struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// StatsSource is implemented by *engine.Engine.
type StatsSource interface {
	Stats() engine.Stats
}

// Dependencies holds the sinks. Nil sinks are skipped.
type Dependencies struct {
	Engine StatsSource
	DB     *database.Manager
	Influx *influx.Manager
	Logger *slog.Logger
}

// Status is the document written to the status file.
type Status struct {
	Time     time.Time    `json:"time"`
	Stats    engine.Stats `json:"stats"`
	HitRatio float64      `json:"hitRatio"`
}

// Service manages status monitoring.
type Service struct {
	cfg  Config
	deps Dependencies
	now  func() time.Time

	mu        sync.RWMutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	last      model.PerformanceSample
	samples   uint64
}

// NewService creates a stopped monitor. A non-positive interval is one second.
func NewService(cfg Config, deps Dependencies) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{cfg: cfg, deps: deps, now: time.Now}
}

// IsRunning reports whether the sampling goroutine is active.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Last returns the most recent sample and how many have been taken.
func (s *Service) Last() (model.PerformanceSample, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.samples
}

// Start launches the sampling goroutine. Starting a running service is a
// no-op.
func (s *Service) Start(ctx context.Context) error {
	if s.deps.Engine == nil {
		return errors.New("monitor needs an engine")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.isRunning = true

	go s.run(ctx, s.done)
	return nil
}

func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	logger := s.deps.Logger
	logger.Debug("status monitor started", "interval", s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Collect(); err != nil {
				logger.Warn("status sample incomplete", "error", err)
			}
		}
	}
}

// Stop cancels the goroutine and waits for it.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Collect takes one sample and writes it to every configured sink. Sink
// failures are joined; a failing sink does not skip the others.
func (s *Service) Collect() error {
	stats := s.deps.Engine.Stats()
	at := s.now()
	sample := SampleFromStats(stats, at)

	s.mu.Lock()
	s.last = sample
	s.samples++
	s.mu.Unlock()

	var errs []error
	if s.cfg.StatusFile != "" {
		status := Status{Time: at, Stats: stats, HitRatio: sample.Frames.HitRatio()}
		if err := writeStatus(s.cfg.StatusFile, status); err != nil {
			errs = append(errs, err)
		}
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(s.deps.Influx.Bucket(), Point(sample)); err != nil {
			errs = append(errs, fmt.Errorf("influx: %w", err))
		}
	}
	if s.deps.DB != nil && s.deps.DB.IsValid {
		if err := s.deps.DB.RecordSample(&sample); err != nil {
			errs = append(errs, fmt.Errorf("db: %w", err))
		}
	}
	return errors.Join(errs...)
}

// SampleFromStats flattens engine stats into a table row.
func SampleFromStats(st engine.Stats, at time.Time) model.PerformanceSample {
	return model.PerformanceSample{
		Time:      at,
		SessionID: st.Session,
		Playhead:  st.Playhead,
		Rate:      st.Rate,
		Playing:   st.Playing,
		Owner:     st.Owner,
		Revision:  st.Revision,
		Frames: model.FrameCounters{
			Displayed:      st.Frames.Displayed,
			CacheFrames:    st.Frames.CacheFrames,
			Queued:         st.Frames.Queued,
			Busy:           st.Frames.Busy,
			Velocity:       st.Frames.Velocity,
			Rendered:       st.Frames.Rendered,
			Stale:          st.Frames.Stale,
			CacheHits:      st.Frames.CacheHits,
			CacheMisses:    st.Frames.CacheMisses,
			DecodeFailures: st.Frames.DecodeFailures,
		},
		Audio: model.AudioCounters{
			ChunksWritten: st.Audio.ChunksWritten,
			WriteErrors:   st.Audio.WriteErrors,
			TicksDropped:  st.Audio.TicksDropped,
			PeakLeft:      st.Audio.PeakLeft,
			PeakRight:     st.Audio.PeakRight,
		},
	}
}

// Point converts a sample to an Influx point tagged with session and owner.
func Point(s model.PerformanceSample) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(Measurement,
		map[string]string{
			"session": s.SessionID,
			"owner":   s.Owner,
		},
		map[string]interface{}{
			"playhead":       s.Playhead,
			"rate":           s.Rate,
			"playing":        s.Playing,
			"revision":       int64(s.Revision),
			"displayed":      s.Frames.Displayed,
			"cacheFrames":    s.Frames.CacheFrames,
			"queued":         s.Frames.Queued,
			"busy":           s.Frames.Busy,
			"velocity":       s.Frames.Velocity,
			"rendered":       int64(s.Frames.Rendered),
			"stale":          int64(s.Frames.Stale),
			"hitRatio":       s.Frames.HitRatio(),
			"decodeFailures": int64(s.Frames.DecodeFailures),
			"chunksWritten":  int64(s.Audio.ChunksWritten),
			"writeErrors":    int64(s.Audio.WriteErrors),
			"ticksDropped":   int64(s.Audio.TicksDropped),
			"peakLeft":       s.Audio.PeakLeft,
			"peakRight":      s.Audio.PeakRight,
		},
		s.Time,
	)
}

// writeStatus replaces path through a temp file so readers never see a
// partial document.
func writeStatus(path string, status Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating status dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	return os.Rename(tmp, path)
}
