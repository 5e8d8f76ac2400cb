package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// DefaultBucket receives engine performance points.
const DefaultBucket = "playback_performance"

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx disabled")

// Config addresses the InfluxDB server.
type Config struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	Protocol      string `json:"protocol" mapstructure:"protocol"`
	Host          string `json:"host" mapstructure:"host"`
	Port          string `json:"port" mapstructure:"port"`
	Token         string `json:"token" mapstructure:"token"`
	Org           string `json:"org" mapstructure:"org"`
	Bucket        string `json:"bucket" mapstructure:"bucket"`
	RetentionDays int    `json:"retentionDays" mapstructure:"retentionDays"`
	BackupPath    string `json:"backupPath" mapstructure:"backupPath"`
}

// URL is the server base URL.
func (c Config) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// Manager handles the client, one write API per bucket and the backup spool.
type Manager struct {
	cfg    Config
	Logger zerolog.Logger

	mu           sync.Mutex
	client       influxdb2.Client
	writers      map[string]influxdb2_api.WriteAPI
	backupFile   *os.File
	backupWriter *gzip.Writer
	valid        bool
}

// NewManager creates an unconnected manager. An empty bucket falls back to
// DefaultBucket.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	return &Manager{
		cfg:     cfg,
		Logger:  log,
		writers: make(map[string]influxdb2_api.WriteAPI),
	}
}

// Bucket is the configured bucket name.
func (m *Manager) Bucket() string {
	return m.cfg.Bucket
}

// IsValid reports whether points go to the server rather than the spool.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// Connect pings the server and prepares the org and bucket. When the server
// does not answer, points are spooled to BackupPath instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = influxdb2.NewClientWithOptions(m.cfg.URL(), m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.valid = false
		m.Logger.Warn().Err(err).Str("url", m.cfg.URL()).Str("backupPath", m.cfg.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackupLocked()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriterLocked(m.cfg.Bucket)
	m.valid = true
	m.Logger.Info().Str("url", m.cfg.URL()).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackupLocked() error {
	if m.backupWriter != nil {
		return nil
	}
	if m.cfg.BackupPath == "" {
		return errors.New("influx unreachable and no backup path configured")
	}
	f, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = f
	m.backupWriter = gzip.NewWriter(f)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating organization %s: %w", m.cfg.Org, err)
		}
	}

	if _, err := m.client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")

	days := m.cfg.RetentionDays
	if days <= 0 {
		days = 30
	}
	rule := domain.RetentionRuleTypeExpire
	_, err = m.client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: int64(days) * 24 * 60 * 60,
	})
	if err != nil {
		return fmt.Errorf("creating bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

func (m *Manager) createWriterLocked(bucket string) {
	w := m.client.WriteAPI(m.cfg.Org, bucket)
	m.writers[bucket] = w

	go func(errs <-chan error) {
		for err := range errs {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error sending data to InfluxDB")
		}
	}(w.Errors())
}

// WritePoint queues point for bucket, or spools it when the server is down.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		w, ok := m.writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	if m.backupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := m.backupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending points and closes the client and the spool.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.writers {
		w.Flush()
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.valid = false

	var errs []error
	if m.backupWriter != nil {
		errs = append(errs, m.backupWriter.Close())
		errs = append(errs, m.backupFile.Close())
		m.backupWriter = nil
		m.backupFile = nil
	}
	return errors.Join(errs...)
}
