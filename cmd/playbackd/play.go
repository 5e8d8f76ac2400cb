package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/reelcut/playback/internal/config"
	"github.com/reelcut/playback/internal/engine"
	"github.com/reelcut/playback/internal/logging"
	"github.com/reelcut/playback/internal/output"
	"github.com/reelcut/playback/internal/preview"
	"github.com/reelcut/playback/internal/project"
	"github.com/reelcut/playback/pkg/core"
)

type playOptions struct {
	project  string
	duration time.Duration
	rate     float64
	seek     float64
	wav      string
	preview  string
	snapshot string
}

func newPlayCmd(root *rootOptions) *cobra.Command {
	opts := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a project and report engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPlay(ctx, root, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.project, "project", "p", "", "YAML project file")
	f.DurationVarP(&opts.duration, "duration", "d", 0, "How long to play (0 plays to the end of the timeline)")
	f.Float64VarP(&opts.rate, "rate", "r", 1, "Playback rate; negative plays backwards")
	f.Float64Var(&opts.seek, "seek", 0, "Start position in seconds")
	f.StringVar(&opts.wav, "wav", "", "Record the device output to this WAV file")
	f.StringVar(&opts.preview, "preview", "", "Stream frames to this websocket URL")
	f.StringVar(&opts.snapshot, "snapshot", "", "Write the last displayed frame to this PNG file")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func runPlay(ctx context.Context, root *rootOptions, opts *playOptions, out io.Writer) error {
	start := time.Now()
	if opts.rate == 0 || math.IsNaN(opts.rate) || math.IsInf(opts.rate, 0) {
		return fmt.Errorf("rate must be a finite non-zero number")
	}
	if err := config.Load(root.configDir); err != nil {
		config.LoadDefaults()
		fmt.Fprintf(out, "using default configuration: %v\n", err)
	}

	logsDir := root.logsDir
	if logsDir == "" {
		logsDir = config.GetString("logsDir")
	}
	level := root.logLevel
	if level == "" {
		level = config.GetString("logLevel")
	}

	var current atomic.Pointer[engine.Engine]
	logs, err := setupLogging(ctx, logsDir, level, start, func() []slog.Attr {
		e := current.Load()
		if e == nil {
			return nil
		}
		return engineAttrs(e)
	})
	if err != nil {
		return err
	}
	defer logs.Close(context.Background())

	session := uuid.NewString()
	logger := logs.Logger().With("session", session)

	proj, err := project.Load(opts.project)
	if err != nil {
		return err
	}
	props := proj.Properties

	engCfg, err := config.GetEngineConfig()
	if err != nil {
		return err
	}

	outCfg := config.GetOutputConfig()
	if opts.wav != "" {
		outCfg.Device, outCfg.WAVPath = "wav", opts.wav
	}
	device, err := output.New(outCfg)
	if err != nil {
		return err
	}

	snap := &snapshotDisplay{}
	display := fanoutDisplay{snap}
	prevCfg := config.GetPreviewConfig()
	if opts.preview != "" {
		prevCfg.Enabled, prevCfg.URL = true, opts.preview
	}
	var sink *preview.Sink
	if prevCfg.Enabled {
		w, h := props.PreviewSize()
		sink, err = preview.New(prevCfg, session, w, h, logger.With("component", "preview"))
		if err == nil {
			err = sink.Dial()
		}
		if err != nil {
			logger.Warn("remote preview unavailable", "url", prevCfg.URL, "error", err)
			sink = nil
		} else {
			display = append(display, sink)
			defer sink.Close()
		}
	}

	meter := &peakMeter{}
	eng, err := engine.New(engine.Dependencies{
		Timeline:         proj.Timeline,
		Display:          display,
		Device:           device,
		Meter:            meter,
		Properties:       props,
		Logger:           logger,
		DispatcherLogger: logging.NewDispatcherLogger(logs.zerolog),
		Session:          session,
	}, engCfg)
	if err != nil {
		return err
	}
	current.Store(eng)
	defer current.Store(nil)

	svc := startServices(ctx, eng, opts.project, props, engCfg, logs.zerolog, logger)

	eng.Start(ctx)
	startFrame := max(props.FrameAt(opts.seek), 0)
	if err := eng.Scrub(startFrame); err != nil {
		logger.Warn("seek failed", "frame", startFrame, "error", err)
	}
	eng.SetRate(opts.rate)

	runFor := opts.duration
	if runFor <= 0 {
		runFor = remaining(props, proj.Timeline.Duration(), startFrame, opts.rate)
	}
	logger.Info("playing", "project", proj.Name, "from", startFrame, "rate", opts.rate, "for", runFor)

	if err := eng.StartPlayback(); err != nil {
		eng.Stop()
		_ = svc.close()
		return fmt.Errorf("starting playback: %w", err)
	}

	timer := time.NewTimer(runFor)
	select {
	case <-ctx.Done():
		logger.Info("interrupted")
	case <-timer.C:
	}
	timer.Stop()

	if err := eng.StopPlayback(); err != nil {
		logger.Warn("stopping playback", "error", err)
	}
	stats := eng.Stats()
	eng.Stop()
	if err := svc.close(); err != nil {
		logger.Warn("closing recorders", "error", err)
	}

	var errs []error
	if opts.snapshot != "" {
		if err := snap.Save(opts.snapshot); err != nil {
			errs = append(errs, fmt.Errorf("snapshot: %w", err))
		}
	}

	left, right := meter.Peaks()
	fmt.Fprintf(out, "session %s: played to frame %d (%.3fs), %d frames shown, %d rendered, %d stale, %d audio chunks, peak L %.2f R %.2f\n",
		stats.Session, stats.Playhead, props.SecondsAt(stats.Playhead), snap.published.Load(),
		stats.Frames.Rendered, stats.Frames.Stale, stats.Audio.ChunksWritten, left, right)
	if sink != nil {
		ps := sink.Stats()
		fmt.Fprintf(out, "preview: %d sent, %d dropped, %d errors\n", ps.Sent, ps.Dropped, ps.Errors)
	}
	return errors.Join(errs...)
}

// engineAttrs is the engine's log context without the session, which the
// logger already carries.
func engineAttrs(e *engine.Engine) []slog.Attr {
	attrs := e.LogContext()
	out := attrs[:0:0]
	for _, a := range attrs {
		if a.Key != "session" {
			out = append(out, a)
		}
	}
	return out
}

// remaining is the wall time to play from frame to the timeline edge in the
// direction of rate.
func remaining(props core.Properties, duration, frame int64, rate float64) time.Duration {
	frames := duration - frame
	if rate < 0 {
		frames = frame
	}
	if frames <= 0 {
		return 0
	}
	seconds := props.SecondsAt(frames) / math.Abs(rate)
	return time.Duration(seconds * float64(time.Second))
}
