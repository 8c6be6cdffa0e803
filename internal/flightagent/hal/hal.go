// Package hal provides the vehicle drivers behind core.HAL.
package hal

import (
	"context"
	"fmt"
	"os"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/pkg/options"
)

// VehicleIDEnv overrides the vehicle id a driver reports.
const VehicleIDEnv = "FLIGHTPEER_VEHICLE_ID"

// NewHAL opens the driver selected by opts.
func NewHAL(ctx context.Context, opts *options.DroneOptions, defaultSpeed int) (core.HAL, error) {
	id := os.Getenv(VehicleIDEnv)
	frames := NewFrameSource(opts.FramePath)

	switch opts.Driver {
	case options.DriverSim:
		return NewSim(SimConfig{
			VehicleID: id,
			Battery:   opts.SimBattery,
			Height:    opts.SimHeight,
			Frames:    frames,
		}), nil
	case options.DriverTello:
		return DialTello(ctx, TelloConfig{
			VehicleID:    id,
			Host:         opts.Host,
			Port:         opts.Port,
			LocalPort:    opts.LocalPort,
			Frames:       frames,
			DefaultSpeed: defaultSpeed,
		})
	default:
		return nil, fmt.Errorf("unknown driver %q", opts.Driver)
	}
}
