package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/reelcut/playback/internal/dispatcher"

type instruments struct {
	handled metric.Int64Counter
	drops   metric.Int64Counter
	depth   metric.Int64ObservableGauge
}

// newInstruments creates the dispatcher metrics on the global meter, which
// is a no-op until an OTel provider is installed.
func newInstruments(d *Dispatcher) (*instruments, error) {
	m := otel.Meter(instrumentationName)
	inst := &instruments{}

	var err error
	if inst.handled, err = m.Int64Counter("playback.dispatcher.commands.handled",
		metric.WithDescription("Commands run by a handler")); err != nil {
		return nil, fmt.Errorf("creating handled counter: %w", err)
	}
	if inst.drops, err = m.Int64Counter("playback.dispatcher.commands.dropped",
		metric.WithDescription("Commands discarded by a full queue")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if inst.depth, err = m.Int64ObservableGauge("playback.dispatcher.queue.depth",
		metric.WithDescription("Commands waiting in a queue")); err != nil {
		return nil, fmt.Errorf("creating queue depth gauge: %w", err)
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, s := range d.Stats() {
			o.ObserveInt64(inst.depth, int64(s.Queued), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, inst.depth)
	if err != nil {
		return nil, fmt.Errorf("registering queue depth callback: %w", err)
	}
	return inst, nil
}

func (i *instruments) processed(command string, ok bool) {
	i.handled.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("ok", ok),
	))
}

func (i *instruments) dropped(command string) {
	i.drops.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
}
