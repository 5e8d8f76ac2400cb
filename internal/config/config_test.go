package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelcut/playback/internal/influx"
	"github.com/reelcut/playback/internal/output"
	"github.com/reelcut/playback/pkg/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadJSON(t *testing.T, body string) {
	t.Helper()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))
	require.NoError(t, Load(dir))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_DefaultValues(t *testing.T) {
	loadJSON(t, `{}`)

	assert.Equal(t, "info", GetString("logLevel"))
	assert.Equal(t, "./playbacklogs", GetString("logsDir"))

	assert.Equal(t, output.Config{Device: "simulated", BufferFrames: output.DefaultBufferFrames}, GetOutputConfig())

	pc := GetPreviewConfig()
	assert.False(t, pc.Enabled)
	assert.Equal(t, 75, pc.Quality)
	assert.Equal(t, 15.0, pc.MaxFPS)

	oc := GetOTelConfig()
	assert.False(t, oc.Enabled)
	assert.Equal(t, "playbackd", oc.ServiceName)
	assert.Equal(t, 5*time.Second, oc.BatchTimeout)
	assert.True(t, oc.Insecure)

	assert.Equal(t, "localhost:12201", GetGraylogConfig().Address)

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, influx.DefaultBucket, ic.Bucket)
	assert.Equal(t, "http://localhost:8086", ic.URL())

	dc := GetDatabaseConfig()
	assert.Equal(t, "sqlite", dc.Driver)
	assert.Equal(t, "playback", dc.Database)

	mc := GetMonitorConfig()
	assert.False(t, mc.Enabled)
	assert.Equal(t, time.Second, mc.Interval)
}

func TestGetPropertiesConfig(t *testing.T) {
	loadJSON(t, `{"properties": {"fps": 24, "width": 1280, "height": 720}}`)

	p, err := GetPropertiesConfig()
	require.NoError(t, err)
	want := core.DefaultProperties()
	want.FPS, want.Width, want.Height = 24, 1280, 720
	assert.Equal(t, want, p)
}

func TestGetPropertiesConfig_Defaults(t *testing.T) {
	loadJSON(t, `{}`)
	p, err := GetPropertiesConfig()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultProperties(), p)
}

func TestGetPropertiesConfig_Invalid(t *testing.T) {
	loadJSON(t, `{"properties": {"fps": 0}}`)
	_, err := GetPropertiesConfig()
	assert.Error(t, err)
}

func TestGetEngineConfig_Overlay(t *testing.T) {
	loadJSON(t, `{
		"commandBuffer": 16,
		"frameServer": {"cacheMB": 64, "workers": 2},
		"audio": {"latencyCompensation": "25ms", "masterGain": 0.5}
	}`)

	cfg, err := GetEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.CommandBuffer)
	assert.Equal(t, 64, cfg.FrameServer.CacheMB)
	assert.Equal(t, 2, cfg.FrameServer.Workers)
	assert.Equal(t, 8, cfg.FrameServer.PrefetchFrames, "unset keys keep their defaults")
	assert.Equal(t, 25*time.Millisecond, cfg.AudioServer.LatencyCompensation)
	assert.Equal(t, 0.5, cfg.AudioServer.MasterGain)
	assert.Equal(t, 5, cfg.AudioServer.PrimeChunks)
}

func TestGetEngineConfig_Defaults(t *testing.T) {
	loadJSON(t, `{}`)
	cfg, err := GetEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.CommandBuffer)
	assert.Equal(t, 512, cfg.FrameServer.CacheMB)
}

func TestOverrides(t *testing.T) {
	loadJSON(t, `{
		"output": {"device": "wav", "wavPath": "/tmp/out.wav"},
		"otel": {"enabled": true, "batchTimeout": "30s", "endpoint": "localhost:4318"},
		"db": {"enabled": true, "driver": "postgres", "host": "10.0.0.1"},
		"monitor": {"enabled": true, "interval": "250ms"}
	}`)

	out := GetOutputConfig()
	assert.Equal(t, "wav", out.Device)
	assert.Equal(t, "/tmp/out.wav", out.WAVPath)
	assert.Equal(t, output.DefaultBufferFrames, out.BufferFrames)

	oc := GetOTelConfig()
	assert.True(t, oc.Enabled)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4318", oc.Endpoint)

	dc := GetDatabaseConfig()
	assert.True(t, dc.Enabled)
	assert.Equal(t, "postgres", dc.Driver)
	assert.Equal(t, "10.0.0.1", dc.Host)
	assert.Equal(t, "5432", dc.Port)

	assert.Equal(t, 250*time.Millisecond, GetMonitorConfig().Interval)
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("s", "v")
	viper.Set("i", 42)
	viper.Set("b", true)
	viper.Set("d", "2s")
	assert.Equal(t, "v", GetString("s"))
	assert.Equal(t, 42, GetInt("i"))
	assert.True(t, GetBool("b"))
	assert.Equal(t, 2*time.Second, GetDuration("d"))
}

func TestGetServerConfigs_BadValue(t *testing.T) {
	loadJSON(t, `{"audio": {"idleSleep": "soon"}, "frameServer": {"cacheMB": "lots"}}`)

	_, err := GetAudioServerConfig()
	assert.Error(t, err)
	_, err = GetFrameServerConfig()
	assert.Error(t, err)
	_, err = GetEngineConfig()
	assert.Error(t, err)
}
