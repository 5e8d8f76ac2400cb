package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelcut/playback/internal/config"
	"github.com/reelcut/playback/internal/database"
	"github.com/reelcut/playback/internal/engine"
	"github.com/reelcut/playback/internal/influx"
	"github.com/reelcut/playback/internal/model"
	"github.com/reelcut/playback/internal/monitor"
	"github.com/reelcut/playback/pkg/core"
)

// services are the optional recorders around an engine. Each one that fails
// to come up is logged and left nil.
type services struct {
	logger  *slog.Logger
	session string
	db      *database.Manager
	influx  *influx.Manager
	monitor *monitor.Service
}

func startServices(ctx context.Context, eng *engine.Engine, projectPath string, props core.Properties,
	engCfg engine.Config, zl zerolog.Logger, logger *slog.Logger) *services {
	s := &services{logger: logger, session: eng.Session()}

	if dbCfg := config.GetDatabaseConfig(); dbCfg.Enabled {
		db := database.NewManager(dbCfg, zl.With().Str("component", "database").Logger())
		err := db.Connect()
		if err == nil {
			err = db.Setup()
		}
		if err == nil {
			err = db.BeginSession(newSessionRow(eng.Session(), projectPath, props, engCfg))
		}
		if err != nil {
			logger.Warn("session database unavailable", "error", err)
			_ = db.Close()
		} else {
			s.db = db
		}
	}

	if inCfg := config.GetInfluxConfig(); inCfg.Enabled {
		in := influx.NewManager(inCfg, zl.With().Str("component", "influx").Logger())
		if err := in.Connect(ctx); err != nil {
			logger.Warn("influx unavailable", "error", err)
			_ = in.Close()
		} else {
			s.influx = in
		}
	}

	if monCfg := config.GetMonitorConfig(); monCfg.Enabled {
		s.monitor = monitor.NewService(monCfg, monitor.Dependencies{
			Engine: eng,
			DB:     s.db,
			Influx: s.influx,
			Logger: logger.With("component", "monitor"),
		})
		if err := s.monitor.Start(ctx); err != nil {
			logger.Warn("status monitor not started", "error", err)
			s.monitor = nil
		}
	}
	return s
}

func newSessionRow(id, projectPath string, props core.Properties, engCfg engine.Config) *model.PlaybackSession {
	propsJSON, _ := json.Marshal(props)
	cfgJSON, _ := json.Marshal(engCfg)
	return &model.PlaybackSession{
		ID:         id,
		Project:    projectPath,
		Properties: propsJSON,
		Config:     cfgJSON,
		StartedAt:  time.Now(),
	}
}

// close takes a final sample, ends the session row and releases the sinks.
func (s *services) close() error {
	var errs []error
	if s.monitor != nil {
		s.monitor.Stop()
		errs = append(errs, s.monitor.Collect())
	}
	if s.db != nil {
		errs = append(errs, s.db.EndSession(s.session, time.Now()))
		errs = append(errs, s.db.Close())
	}
	if s.influx != nil {
		errs = append(errs, s.influx.Close())
	}
	return errors.Join(errs...)
}
