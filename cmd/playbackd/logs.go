package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelcut/playback/internal/config"
	"github.com/reelcut/playback/internal/logging"
	"github.com/reelcut/playback/internal/otel"
)

// logSetup owns everything opened for logging during one run.
type logSetup struct {
	manager  *logging.SlogManager
	otel     *otel.Provider
	zerolog  zerolog.Logger
	files    []*os.File
	warnings []string
}

// setupLogging opens the session log under logsDir (stdout when empty), the
// OTel pipeline and the optional GELF sink.
func setupLogging(ctx context.Context, logsDir, level string, start time.Time, attrs logging.ContextProvider) (*logSetup, error) {
	ls := &logSetup{manager: logging.NewSlogManager()}

	var out io.Writer = os.Stdout
	var file io.Writer
	if logsDir != "" {
		f, err := logging.OpenLogFile(logsDir, "playbackd", start)
		if err != nil {
			return nil, err
		}
		ls.files = append(ls.files, f)
		out, file = f, f
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled && logsDir != "" {
		f, err := logging.OpenLogFile(logsDir, "playbackd.otel", start)
		if err != nil {
			ls.Close(ctx)
			return nil, err
		}
		ls.files = append(ls.files, f)
		otelCfg.LogWriter = f
	}
	provider, err := otel.New(ctx, otelCfg)
	if err != nil {
		ls.warnings = append(ls.warnings, "otel disabled: "+err.Error())
		provider, _ = otel.New(ctx, otel.Config{})
	}
	ls.otel = provider

	opts := []logging.SetupOption{
		logging.WithServiceName(provider.ServiceName()),
		logging.WithContext(attrs),
	}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.DialGraylog(gl.Address)
		if err != nil {
			ls.warnings = append(ls.warnings, "graylog disabled: "+err.Error())
		} else {
			opts = append(opts, logging.WithGraylog(w))
		}
	}

	ls.manager.Setup(file, level, provider.LoggerProvider(), opts...)
	ls.zerolog = logging.NewZerolog(out, level)

	for _, w := range ls.warnings {
		ls.manager.Logger().Warn(w)
	}
	return ls, nil
}

// Logger is the process slog logger.
func (ls *logSetup) Logger() *slog.Logger {
	return ls.manager.Logger()
}

// Close flushes the OTel pipeline and closes the log files.
func (ls *logSetup) Close(ctx context.Context) error {
	var errs []error
	if ls.otel != nil {
		errs = append(errs, ls.manager.Flush(ctx), ls.otel.Shutdown(ctx))
	}
	for _, f := range ls.files {
		errs = append(errs, f.Close())
	}
	ls.files = nil
	return errors.Join(errs...)
}
