package topic

import (
	"fmt"

	"github.com/autopeer-io/flightpeer/internal/pkg/mqtt/paths"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "flightpeer/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: root}
}

// Telemetry is where a vehicle publishes periodic telemetry snapshots.
func (b *TopicBuilder) Telemetry(vehicleID string) string {
	return b.Build(paths.Telemetry, vehicleID)
}

// Report is where a vehicle publishes the report of every finished session.
func (b *TopicBuilder) Report(vehicleID string) string {
	return b.Build(paths.SessionReport, vehicleID)
}

// Online carries the retained online flag; the broker flips it through the last will.
func (b *TopicBuilder) Online(vehicleID string) string {
	return b.Build(paths.Online, vehicleID)
}

// ConfirmRequest is where a vehicle announces a command awaiting an operator decision.
func (b *TopicBuilder) ConfirmRequest(vehicleID string) string {
	return b.Build(paths.ConfirmRequest, vehicleID)
}

// Intent carries operator utterances to a vehicle.
func (b *TopicBuilder) Intent(vehicleID string) string {
	return b.Build(paths.Intent, vehicleID)
}

// ConfirmDecision carries operator decisions on pending confirmations.
func (b *TopicBuilder) ConfirmDecision(vehicleID string) string {
	return b.Build(paths.ConfirmDecision, vehicleID)
}

// Stop carries the emergency stop signal.
func (b *TopicBuilder) Stop(vehicleID string) string {
	return b.Build(paths.Stop, vehicleID)
}

// TelemetryWildcard subscribes to the telemetry of every vehicle.
// Result: {root}/telemetry/+
func (b *TopicBuilder) TelemetryWildcard() string {
	return b.Build(paths.Telemetry, Wildcard)
}

// ReportWildcard subscribes to the session reports of every vehicle.
// Result: {root}/session/report/+
func (b *TopicBuilder) ReportWildcard() string {
	return b.Build(paths.SessionReport, Wildcard)
}

// build constructs {root}/{suffix}/{identifier}.
func (b *TopicBuilder) Build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
