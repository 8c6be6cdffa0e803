package hub

import (
	"fmt"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/pkg/mqtt/paths"
)

var (
	events = make(map[core.EventType]string)

	// retained events keep their last value on the broker.
	retained = map[core.EventType]bool{
		core.EventOnline:    true,
		core.EventTelemetry: true,
	}
)

// Register routes a downstream event to handler. Routes must be registered
// before Start.
func (b *Hub) Register(event core.EventType, handler core.HandlerFunc) error {
	segment, ok := events[event]
	if !ok {
		return fmt.Errorf("unmapped event: %s", event)
	}
	fullTopic := b.topics.Build(segment, b.vid)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.routes[fullTopic]; dup {
		return fmt.Errorf("event %s already has a handler", event)
	}
	b.routes[fullTopic] = handler
	return nil
}

func init() {
	events[core.EventOnline] = paths.Online
	events[core.EventTelemetry] = paths.Telemetry
	events[core.EventConfirmRequest] = paths.ConfirmRequest
	events[core.EventSessionReport] = paths.SessionReport
	events[core.EventIntent] = paths.Intent
	events[core.EventConfirmDecision] = paths.ConfirmDecision
	events[core.EventStop] = paths.Stop
}
