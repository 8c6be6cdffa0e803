package core

import (
	"context"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
)

// HAL is the driven port to the vehicle. Implementations talk to real
// hardware or simulate it. Calls are not safe for concurrent use; the
// actuation gateway serialises them.
type HAL interface {
	// VehicleID identifies the vehicle on the bus and in reports.
	VehicleID() string

	// Actuate executes one command and returns once the vehicle acknowledged it.
	Actuate(ctx context.Context, cmd command.Command) (Ack, error)

	// QueryTelemetry reads a fresh telemetry snapshot.
	QueryTelemetry(ctx context.Context) (Telemetry, error)

	// Capture grabs the current camera frame.
	Capture(ctx context.Context) (Frame, error)

	// Close releases the link to the vehicle.
	Close() error
}
