package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(context.Background(), Config{})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.Equal(t, "playbackd", p.ServiceName())
	assert.NotNil(t, p.Meter("test"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutExporter(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true})
	assert.ErrorIs(t, err, ErrNoExporter)
}

func TestNew_WriterExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(context.Background(), Config{Enabled: true, ServiceName: "playbackd-test", LogWriter: &buf})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	otelslog.NewLogger("test", otelslog.WithLoggerProvider(p.LoggerProvider())).Info("frame published")

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "frame published")
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EndpointExporter(t *testing.T) {
	// The OTLP exporter does not dial until the first export.
	p, err := New(context.Background(), Config{Enabled: true, Endpoint: "127.0.0.1:4318", Insecure: true})
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Shutdown(ctx)
}
