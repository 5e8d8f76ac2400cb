package audioserver

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/reelcut/playback/internal/audioserver"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	chunks         metric.Int64Counter
	writeErrors    metric.Int64Counter
	primes         metric.Int64Counter
	deviceFailures metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := meter()
	out := &metrics{}
	var err error

	out.chunks, err = m.Int64Counter(
		"audioserver.chunks.written",
		metric.WithDescription("Audio chunks written to the device"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating chunks counter: %w", err)
	}

	out.writeErrors, err = m.Int64Counter(
		"audioserver.write.errors",
		metric.WithDescription("Audio chunk writes that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating write error counter: %w", err)
	}

	out.primes, err = m.Int64Counter(
		"audioserver.primes",
		metric.WithDescription("Clock re-anchors with device priming"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating primes counter: %w", err)
	}

	out.deviceFailures, err = m.Int64Counter(
		"audioserver.device.failures",
		metric.WithDescription("Audio device open failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating device failure counter: %w", err)
	}

	return out, nil
}
