package config

import (
	"fmt"
	"time"

	"github.com/reelcut/playback/internal/audioserver"
	"github.com/reelcut/playback/internal/database"
	"github.com/reelcut/playback/internal/engine"
	"github.com/reelcut/playback/internal/frameserver"
	"github.com/reelcut/playback/internal/influx"
	"github.com/reelcut/playback/internal/logging"
	"github.com/reelcut/playback/internal/monitor"
	"github.com/reelcut/playback/internal/otel"
	"github.com/reelcut/playback/internal/output"
	"github.com/reelcut/playback/internal/preview"
	"github.com/reelcut/playback/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "playback.cfg.json"

// Load reads FileName from configDir on top of the defaults.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// LoadDefaults registers the defaults without reading a file.
func LoadDefaults() {
	setDefaults()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./playbacklogs")

	viper.SetDefault("output.device", "simulated")
	viper.SetDefault("output.bufferFrames", output.DefaultBufferFrames)
	viper.SetDefault("output.wavPath", "")

	viper.SetDefault("preview.enabled", false)
	viper.SetDefault("preview.url", "ws://localhost:5000/preview")
	viper.SetDefault("preview.quality", 75)
	viper.SetDefault("preview.maxFps", 15)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "playbackd")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "reelcut")
	viper.SetDefault("influx.bucket", influx.DefaultBucket)
	viper.SetDefault("influx.retentionDays", 30)
	viper.SetDefault("influx.backupPath", "./playbacklogs/influx_backup.log.gz")

	viper.SetDefault("db.enabled", false)
	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "playback")
	viper.SetDefault("db.sqlitePath", "./playbacklogs/playback.db")

	viper.SetDefault("monitor.enabled", false)
	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "./playbacklogs/status.json")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// overlay decodes key onto out, leaving fields the file does not set alone.
func overlay(key string, out any) error {
	if !viper.IsSet(key) {
		return nil
	}
	if err := viper.UnmarshalKey(key, out); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// GetPropertiesConfig returns the default project properties overlaid with
// the "properties" section.
func GetPropertiesConfig() (core.Properties, error) {
	p := core.DefaultProperties()
	if err := overlay("properties", &p); err != nil {
		return p, err
	}
	return p, p.Validate()
}

// GetFrameServerConfig overlays the "frameServer" section on the frame server
// defaults.
func GetFrameServerConfig() (frameserver.Config, error) {
	cfg := frameserver.DefaultConfig()
	err := overlay("frameServer", &cfg)
	return cfg, err
}

// GetAudioServerConfig overlays the "audio" section on the audio server
// defaults.
func GetAudioServerConfig() (audioserver.Config, error) {
	cfg := audioserver.DefaultConfig()
	err := overlay("audio", &cfg)
	return cfg, err
}

// GetEngineConfig combines both server sections with "commandBuffer".
func GetEngineConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()
	var err error
	if cfg.FrameServer, err = GetFrameServerConfig(); err != nil {
		return cfg, err
	}
	if cfg.AudioServer, err = GetAudioServerConfig(); err != nil {
		return cfg, err
	}
	if viper.IsSet("commandBuffer") {
		cfg.CommandBuffer = viper.GetInt("commandBuffer")
	}
	return cfg, nil
}

// GetOutputConfig returns the audio output section.
func GetOutputConfig() output.Config {
	return output.Config{
		Device:       viper.GetString("output.device"),
		WAVPath:      viper.GetString("output.wavPath"),
		BufferFrames: viper.GetInt("output.bufferFrames"),
	}
}

// GetPreviewConfig returns the preview sink section.
func GetPreviewConfig() preview.Config {
	return preview.Config{
		Enabled: viper.GetBool("preview.enabled"),
		URL:     viper.GetString("preview.url"),
		Secret:  viper.GetString("preview.secret"),
		Quality: viper.GetInt("preview.quality"),
		MaxFPS:  viper.GetFloat64("preview.maxFps"),
	}
}

// GetOTelConfig returns the OTel section. LogWriter is left for the caller.
func GetOTelConfig() otel.Config {
	return otel.Config{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetGraylogConfig returns the GELF sink section.
func GetGraylogConfig() logging.GraylogConfig {
	return logging.GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetInfluxConfig returns the InfluxDB section.
func GetInfluxConfig() influx.Config {
	return influx.Config{
		Enabled:       viper.GetBool("influx.enabled"),
		Protocol:      viper.GetString("influx.protocol"),
		Host:          viper.GetString("influx.host"),
		Port:          viper.GetString("influx.port"),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		Bucket:        viper.GetString("influx.bucket"),
		RetentionDays: viper.GetInt("influx.retentionDays"),
		BackupPath:    viper.GetString("influx.backupPath"),
	}
}

// GetDatabaseConfig returns the database section.
func GetDatabaseConfig() database.Config {
	return database.Config{
		Enabled:    viper.GetBool("db.enabled"),
		Driver:     viper.GetString("db.driver"),
		Host:       viper.GetString("db.host"),
		Port:       viper.GetString("db.port"),
		Username:   viper.GetString("db.username"),
		Password:   viper.GetString("db.password"),
		Database:   viper.GetString("db.database"),
		SQLitePath: viper.GetString("db.sqlitePath"),
	}
}

// GetMonitorConfig returns the status monitor section.
func GetMonitorConfig() monitor.Config {
	return monitor.Config{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}
