// Package logging sets up the slog pipeline used by playbackd: a text log
// file (or stdout), the OpenTelemetry bridge and an optional Graylog sink,
// with dynamic engine attributes on every record.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogFilePath names the log file of one session.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")))
}

// OpenLogFile creates logsDir if needed and opens a fresh session log.
func OpenLogFile(logsDir, name string, sessionStart time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	path := LogFilePath(logsDir, name, sessionStart)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// normalizeLevel maps config spellings onto debug, info, warn and error.
func normalizeLevel(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "debug", "info", "error":
		return l
	case "warn", "warning":
		return "warn"
	default:
		return "info"
	}
}
