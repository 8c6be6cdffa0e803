package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/safety"
)

var _ IOptions = (*FlightOptions)(nil)

// FlightOptions carries the safety thresholds and loop limits consumed by the execution engine.
type FlightOptions struct {
	// Soft tier. These are reloadable from the config file.
	MaxHeight            int `json:"max-height" mapstructure:"max-height"`
	MaxDistance          int `json:"max-distance" mapstructure:"max-distance"`
	BatteryThreshold     int `json:"battery-threshold" mapstructure:"battery-threshold"`
	ConfirmRotationAbove int `json:"confirm-rotation-above" mapstructure:"confirm-rotation-above"`
	LowBatteryMargin     int `json:"low-battery-margin" mapstructure:"low-battery-margin"`
	ConfirmLandingAbove  int `json:"confirm-landing-above" mapstructure:"confirm-landing-above"`

	ClosedLoop          bool          `json:"closed-loop" mapstructure:"closed-loop"`
	MaxReplanCycles     int           `json:"max-replan-cycles" mapstructure:"max-replan-cycles"`
	ReasoningTimeout    time.Duration `json:"reasoning-timeout" mapstructure:"reasoning-timeout"`
	ActuationTimeout    time.Duration `json:"actuation-timeout" mapstructure:"actuation-timeout"`
	MaxReasoningRetries int           `json:"max-reasoning-retries" mapstructure:"max-reasoning-retries"`
	MaxActuationRetries int           `json:"max-actuation-retries" mapstructure:"max-actuation-retries"`
	RetryBackoff        time.Duration `json:"retry-backoff" mapstructure:"retry-backoff"`

	DefaultSpeed        int           `json:"default-speed" mapstructure:"default-speed"`
	ConfirmationTimeout time.Duration `json:"confirmation-timeout" mapstructure:"confirmation-timeout"`
	AirborneEpsilon     int           `json:"airborne-epsilon" mapstructure:"airborne-epsilon"`
	RejectAbortsPlan    bool          `json:"reject-aborts-plan" mapstructure:"reject-aborts-plan"`
	AutoConfirm         bool          `json:"auto-confirm" mapstructure:"auto-confirm"`
}

// NewFlightOptions returns the thresholds used on the Tello bench setup.
func NewFlightOptions() *FlightOptions {
	return &FlightOptions{
		MaxHeight:            150,
		MaxDistance:          200,
		BatteryThreshold:     20,
		ConfirmRotationAbove: 180,
		LowBatteryMargin:     10,
		ConfirmLandingAbove:  100,
		ClosedLoop:           true,
		MaxReplanCycles:      5,
		ReasoningTimeout:     30 * time.Second,
		ActuationTimeout:     8 * time.Second,
		MaxReasoningRetries:  2,
		MaxActuationRetries:  2,
		RetryBackoff:         500 * time.Millisecond,
		DefaultSpeed:         30,
		ConfirmationTimeout:  60 * time.Second,
		AirborneEpsilon:      10,
	}
}

func (o *FlightOptions) Validate() []error {
	var errs []error

	if o.MaxHeight <= 0 || o.MaxHeight > safety.HardHeightCeiling {
		errs = append(errs, fmt.Errorf("--flight.max-height must be in (0, %d], got %d", safety.HardHeightCeiling, o.MaxHeight))
	}
	if o.MaxDistance <= 0 || o.MaxDistance > command.HardDistanceCeiling {
		errs = append(errs, fmt.Errorf("--flight.max-distance must be in (0, %d], got %d", command.HardDistanceCeiling, o.MaxDistance))
	}
	if o.BatteryThreshold < 0 || o.BatteryThreshold > 100 {
		errs = append(errs, fmt.Errorf("--flight.battery-threshold must be a percentage, got %d", o.BatteryThreshold))
	}
	if o.ConfirmRotationAbove < 1 || o.ConfirmRotationAbove > 360 {
		errs = append(errs, fmt.Errorf("--flight.confirm-rotation-above must be in [1, 360], got %d", o.ConfirmRotationAbove))
	}
	if o.LowBatteryMargin < 0 || o.LowBatteryMargin > 100 {
		errs = append(errs, fmt.Errorf("--flight.low-battery-margin must be a percentage, got %d", o.LowBatteryMargin))
	}
	if o.ConfirmLandingAbove < 0 {
		errs = append(errs, fmt.Errorf("--flight.confirm-landing-above must not be negative"))
	}
	if o.MaxReplanCycles < 0 {
		errs = append(errs, fmt.Errorf("--flight.max-replan-cycles must not be negative"))
	}
	if o.ReasoningTimeout <= 0 || o.ActuationTimeout <= 0 || o.ConfirmationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--flight timeouts must be positive"))
	}
	if o.MaxReasoningRetries < 0 || o.MaxActuationRetries < 0 {
		errs = append(errs, fmt.Errorf("--flight retry counts must not be negative"))
	}
	if o.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("--flight.retry-backoff must not be negative"))
	}
	if o.DefaultSpeed < 10 || o.DefaultSpeed > 100 {
		errs = append(errs, fmt.Errorf("--flight.default-speed must be in [10, 100], got %d", o.DefaultSpeed))
	}
	if o.AirborneEpsilon < 0 {
		errs = append(errs, fmt.Errorf("--flight.airborne-epsilon must not be negative"))
	}

	return errs
}

func (o *FlightOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.MaxHeight, "flight.max-height", o.MaxHeight, "Height in cm above which an up command needs confirmation.")
	fs.IntVar(&o.MaxDistance, "flight.max-distance", o.MaxDistance, "Horizontal distance in cm above which a move needs confirmation.")
	fs.IntVar(&o.BatteryThreshold, "flight.battery-threshold", o.BatteryThreshold, "Battery percentage below which takeoff is rejected.")
	fs.IntVar(&o.ConfirmRotationAbove, "flight.confirm-rotation-above", o.ConfirmRotationAbove,
		"Rotation in degrees above which a turn needs confirmation.")
	fs.IntVar(&o.LowBatteryMargin, "flight.low-battery-margin", o.LowBatteryMargin,
		"Takeoff needs confirmation while the battery is less than this many points above the threshold.")
	fs.IntVar(&o.ConfirmLandingAbove, "flight.confirm-landing-above", o.ConfirmLandingAbove,
		"Height in cm above which a land command needs confirmation. Zero disables the check.")

	fs.BoolVar(&o.ClosedLoop, "flight.closed-loop", o.ClosedLoop, "Re-observe after each command and replan until the goal is reached.")
	fs.IntVar(&o.MaxReplanCycles, "flight.max-replan-cycles", o.MaxReplanCycles, "Maximum number of follow-up reasoning calls per session.")
	fs.DurationVar(&o.ReasoningTimeout, "flight.reasoning-timeout", o.ReasoningTimeout, "Timeout of a single reasoning call.")
	fs.DurationVar(&o.ActuationTimeout, "flight.actuation-timeout", o.ActuationTimeout, "Timeout of a single actuator call.")
	fs.IntVar(&o.MaxReasoningRetries, "flight.max-reasoning-retries", o.MaxReasoningRetries,
		"Retries after a failed reasoning call.")
	fs.IntVar(&o.MaxActuationRetries, "flight.max-actuation-retries", o.MaxActuationRetries,
		"Retries after a failed actuator call.")
	fs.DurationVar(&o.RetryBackoff, "flight.retry-backoff", o.RetryBackoff, "Initial delay between retries, doubled per attempt.")

	fs.IntVar(&o.DefaultSpeed, "flight.default-speed", o.DefaultSpeed, "Speed in cm/s used when a command does not set one.")
	fs.DurationVar(&o.ConfirmationTimeout, "flight.confirmation-timeout", o.ConfirmationTimeout,
		"How long to wait for a confirmation before treating it as declined.")
	fs.IntVar(&o.AirborneEpsilon, "flight.airborne-epsilon", o.AirborneEpsilon, "Height in cm above which the vehicle counts as airborne.")
	fs.BoolVar(&o.RejectAbortsPlan, "flight.reject-aborts-plan", o.RejectAbortsPlan,
		"Drop the rest of the plan when a command is rejected, instead of skipping just that command.")
	fs.BoolVar(&o.AutoConfirm, "auto-confirm", o.AutoConfirm, "Approve every confirmation request without asking. Bench use only.")
}
