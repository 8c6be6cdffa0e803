package options

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DroneOptions)(nil)

const (
	DriverTello = "tello"
	DriverSim   = "sim"
)

// DroneOptions selects the actuator driver and the camera frame source.
type DroneOptions struct {
	Driver    string `json:"driver" mapstructure:"driver"`
	Host      string `json:"host" mapstructure:"host"`
	Port      int    `json:"port" mapstructure:"port"`
	LocalPort int    `json:"local-port" mapstructure:"local-port"`

	// FramePath is an image file, or a directory whose newest image is used.
	// Empty means a blank frame is produced.
	FramePath string `json:"frame-path" mapstructure:"frame-path"`

	SimBattery int `json:"sim-battery" mapstructure:"sim-battery"`
	SimHeight  int `json:"sim-height" mapstructure:"sim-height"`
}

func NewDroneOptions() *DroneOptions {
	return &DroneOptions{
		Driver:     DriverTello,
		Host:       "192.168.10.1",
		Port:       8889,
		LocalPort:  9000,
		SimBattery: 100,
	}
}

func (o *DroneOptions) Validate() []error {
	var errs []error

	if !slices.Contains([]string{DriverTello, DriverSim}, o.Driver) {
		errs = append(errs, fmt.Errorf("--drone.driver must be %q or %q, got %q", DriverTello, DriverSim, o.Driver))
	}
	if o.Driver == DriverTello && o.Host == "" {
		errs = append(errs, fmt.Errorf("--drone.host is required for the %s driver", DriverTello))
	}
	if err := validatePort("drone.port", o.Port); err != nil {
		errs = append(errs, err)
	}
	if err := validatePort("drone.local-port", o.LocalPort); err != nil {
		errs = append(errs, err)
	}
	if o.SimBattery < 0 || o.SimBattery > 100 {
		errs = append(errs, fmt.Errorf("--drone.sim-battery must be a percentage, got %d", o.SimBattery))
	}
	if o.SimHeight < 0 {
		errs = append(errs, fmt.Errorf("--drone.sim-height must not be negative"))
	}

	return errs
}

func (o *DroneOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "drone.driver", o.Driver, "Actuator driver: 'tello' (SDK over UDP) or 'sim'.")
	fs.StringVar(&o.Host, "drone.host", o.Host, "Address of the Tello SDK endpoint.")
	fs.IntVar(&o.Port, "drone.port", o.Port, "UDP command port of the Tello SDK endpoint.")
	fs.IntVar(&o.LocalPort, "drone.local-port", o.LocalPort, "Local UDP port used to talk to the vehicle (0 picks one).")
	fs.StringVar(&o.FramePath, "drone.frame-path", o.FramePath, "Image file or directory used as the camera frame source.")
	fs.IntVar(&o.SimBattery, "drone.sim-battery", o.SimBattery, "Initial battery percentage of the simulated vehicle.")
	fs.IntVar(&o.SimHeight, "drone.sim-height", o.SimHeight, "Initial height in cm of the simulated vehicle.")
}
