package remote

import (
	"context"
	"time"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

// TelemetrySource is polled for the uplink. The actuation gateway satisfies it.
type TelemetrySource interface {
	Telemetry(ctx context.Context) (core.Telemetry, error)
}

var _ core.Module = (*Telemetry)(nil)

// Telemetry publishes a snapshot every interval until the agent stops.
type Telemetry struct {
	source   TelemetrySource
	interval time.Duration
}

func NewTelemetry(source TelemetrySource, interval time.Duration) *Telemetry {
	return &Telemetry{source: source, interval: interval}
}

func (t *Telemetry) Name() string { return "telemetry-uplink" }

func (t *Telemetry) Setup(ctx context.Context, sender core.Sender) error {
	go t.loop(ctx, sender)
	return nil
}

func (t *Telemetry) Routes() map[core.EventType]core.HandlerFunc {
	return nil
}

func (t *Telemetry) loop(ctx context.Context, sender core.Sender) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// A failed query still yields a disconnected snapshot worth publishing.
		snap, err := t.source.Telemetry(ctx)
		if err != nil && ctx.Err() != nil {
			return
		}
		if err := sender.SendJSON(ctx, core.EventTelemetry, snap); err != nil {
			log.Debug("Telemetry uplink failed", "error", err)
		}
	}
}
