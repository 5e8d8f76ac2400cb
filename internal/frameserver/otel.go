package frameserver

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/reelcut/playback/internal/frameserver"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	rendered       metric.Int64Counter
	stale          metric.Int64Counter
	hits           metric.Int64Counter
	misses         metric.Int64Counter
	published      metric.Int64Counter
	decodeFailures metric.Int64Counter
	queueDepth     metric.Int64ObservableGauge
	cacheFrames    metric.Int64ObservableGauge
}

func newMetrics(queued, cached func() int64) (*metrics, error) {
	m := meter()
	out := &metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&out.rendered, "frameserver.jobs.rendered", "Render jobs that produced a frame"},
		{&out.stale, "frameserver.jobs.stale", "Render jobs discarded as stale"},
		{&out.hits, "frameserver.cache.hits", "Frame requests served from cache"},
		{&out.misses, "frameserver.cache.misses", "Frame requests that queued a render"},
		{&out.published, "frameserver.frames.published", "Frames handed to the display sink"},
		{&out.decodeFailures, "frameserver.decode.failures", "Clips skipped because the decoder failed"},
	}
	for _, c := range counters {
		var err error
		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	var err error
	out.queueDepth, err = m.Int64ObservableGauge(
		"frameserver.queue.size",
		metric.WithDescription("Render jobs waiting for a worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue gauge: %w", err)
	}
	out.cacheFrames, err = m.Int64ObservableGauge(
		"frameserver.cache.frames",
		metric.WithDescription("Frames held in the cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(out.queueDepth, queued())
			o.ObserveInt64(out.cacheFrames, cached())
			return nil
		},
		out.queueDepth, out.cacheFrames,
	)
	if err != nil {
		return nil, fmt.Errorf("registering frame server callback: %w", err)
	}

	return out, nil
}
