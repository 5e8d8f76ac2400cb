// Package database records playback sessions and performance samples with
// gorm, on Postgres when reachable and on SQLite otherwise.
package database

import (
	"cmp"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/reelcut/playback/internal/model"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotConnected is returned by writes before a successful Connect.
var ErrNotConnected = errors.New("database not connected")

// Config selects and addresses the backend. Driver is "postgres" (falls back
// to SQLite on failure) or "sqlite". An empty SQLitePath keeps SQLite in
// memory.
type Config struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Driver     string `json:"driver" mapstructure:"driver"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Username   string `json:"username" mapstructure:"username"`
	Password   string `json:"password" mapstructure:"password"`
	Database   string `json:"database" mapstructure:"database"`
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`
}

// DSN is the Postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// Manager handles the connection and the session tables.
type Manager struct {
	DB          *gorm.DB
	SqlDB       *sql.DB
	IsValid     bool
	UsingSQLite bool
	cfg         Config
	Logger      zerolog.Logger
}

// NewManager creates an unconnected manager.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, Logger: log}
}

// Connect opens the configured backend, falling back to SQLite when Postgres
// cannot be opened or pinged.
func (m *Manager) Connect() error {
	if m.cfg.Driver != "sqlite" {
		err := m.use(m.openPostgres())
		if err == nil {
			m.SqlDB.SetMaxOpenConns(10)
			m.Logger.Info().Str("host", m.cfg.Host).Str("database", m.cfg.Database).Msg("session store on postgres")
			return nil
		}
		m.Logger.Warn().Err(err).Str("host", m.cfg.Host).Msg("postgres unavailable, falling back to sqlite")
	}

	if err := m.use(m.openSQLite(m.cfg.SQLitePath)); err != nil {
		return fmt.Errorf("opening sqlite session store: %w", err)
	}
	m.UsingSQLite = true
	return nil
}

// use adopts db once its pool answers a ping.
func (m *Manager) use(db *gorm.DB, err error) error {
	m.IsValid = false
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("ping: %w", err)
	}
	m.DB, m.SqlDB, m.IsValid = db, sqlDB, true
	return nil
}

func gormConfig(batch int) *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        batch,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

func (m *Manager) openPostgres() (*gorm.DB, error) {
	dialector := postgres.New(postgres.Config{DSN: m.cfg.DSN(), PreferSimpleProtocol: true})
	return gorm.Open(dialector, gormConfig(1000))
}

// sqlitePragmas favour durable samples over raw insert speed; a session is
// a few rows a second.
var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

func (m *Manager) openSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	cfg := gormConfig(500)
	cfg.PrepareStmt = true
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	m.Logger.Info().Str("path", cmp.Or(path, ":memory:")).Msg("session store on sqlite")
	return db, nil
}

// Setup migrates the schema.
func (m *Manager) Setup() error {
	if m.DB == nil {
		return ErrNotConnected
	}
	m.Logger.Info().Msg("Migrating schema")
	if err := m.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// BeginSession inserts the session row.
func (m *Manager) BeginSession(s *model.PlaybackSession) error {
	if !m.IsValid {
		return ErrNotConnected
	}
	if err := m.DB.Create(s).Error; err != nil {
		return fmt.Errorf("inserting session %s: %w", s.ID, err)
	}
	return nil
}

// EndSession stamps the session's end time.
func (m *Manager) EndSession(id string, at time.Time) error {
	if !m.IsValid {
		return ErrNotConnected
	}
	res := m.DB.Model(&model.PlaybackSession{}).Where("id = ?", id).
		Update("ended_at", sql.NullTime{Time: at, Valid: true})
	if res.Error != nil {
		return fmt.Errorf("ending session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ending session %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// RecordSample inserts one performance sample.
func (m *Manager) RecordSample(s *model.PerformanceSample) error {
	if !m.IsValid {
		return ErrNotConnected
	}
	return m.DB.Create(s).Error
}

// Samples returns a session's samples in time order.
func (m *Manager) Samples(sessionID string) ([]model.PerformanceSample, error) {
	if !m.IsValid {
		return nil, ErrNotConnected
	}
	var out []model.PerformanceSample
	err := m.DB.Where("session_id = ?", sessionID).Order("time").Find(&out).Error
	return out, err
}

// DumpMemoryToDisk vacuums an in-memory SQLite database into path,
// replacing any existing file.
func (m *Manager) DumpMemoryToDisk(path string) error {
	if !m.UsingSQLite {
		return errors.New("dump requires the SQLite backend")
	}
	if path == "" {
		return errors.New("sqlite file path not set")
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("error removing existing DB file: %w", err)
		}
	}

	start := time.Now()
	if err := m.DB.Exec("VACUUM INTO '" + strings.ReplaceAll(path, "'", "''") + "'").Error; err != nil {
		return fmt.Errorf("error dumping DB to disk: %w", err)
	}
	m.Logger.Debug().Dur("duration", time.Since(start)).Str("path", path).Msg("Dumped SQLite DB to disk")
	return nil
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	m.IsValid = false
	if m.SqlDB == nil {
		return nil
	}
	return m.SqlDB.Close()
}
