// Package safety decides whether a command may reach the vehicle.
//
// Rules are layered so that hardware limits can never be relaxed by
// configuration: hard rejects, then hard clamps, then the configurable soft
// tier, then the connectivity check. The first matching rule wins.
package safety

import (
	"fmt"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
)

// HardHeightCeiling is the highest the airframe may climb, in centimeters.
const HardHeightCeiling = 500

// Config holds the soft tier and the thresholds the hard rules read.
type Config struct {
	// MaxHeight is the height in cm above which a climb needs confirmation.
	MaxHeight int

	// MaxDistance is the horizontal move in cm above which a move needs confirmation.
	MaxDistance int

	// BatteryThreshold is the battery percentage below which takeoff is refused.
	BatteryThreshold int

	// ConfirmRotationAbove is the rotation in degrees above which a turn needs
	// confirmation. Zero disables the rule.
	ConfirmRotationAbove int

	// LowBatteryMargin is how many points above BatteryThreshold a takeoff
	// still needs confirmation. Zero disables the rule.
	LowBatteryMargin int

	// ConfirmLandingAbove is the height in cm above which landing needs
	// confirmation. Zero disables the rule.
	ConfirmLandingAbove int

	// AirborneEpsilon is the height in cm above which the vehicle counts as airborne.
	AirborneEpsilon int

	skipSoft bool
}

// Confirmed returns a copy of c for a command the operator already approved.
// The soft tier is skipped and every hard rule still applies.
func (c Config) Confirmed() Config {
	c.skipSoft = true
	return c
}

// Evaluate returns the verdict for cmd given the latest telemetry. It is pure.
func Evaluate(cmd command.Command, t core.Telemetry, cfg Config) Verdict {
	action := cmd.Action()

	if action == command.Takeoff {
		if t.Battery < cfg.BatteryThreshold {
			return reject(cmd, CodeLowBattery,
				fmt.Sprintf("battery below threshold (%d%% < %d%%)", t.Battery, cfg.BatteryThreshold))
		}
		if t.Airborne(cfg.AirborneEpsilon) {
			return reject(cmd, CodeAlreadyAirborne, fmt.Sprintf("already airborne at %dcm", t.Height))
		}
	}

	distance, hasDistance := cmd.Distance()
	if hasDistance {
		if distance > command.HardDistanceCeiling {
			return clamp(cmd, command.HardDistanceCeiling, CodeDistanceCeiling,
				fmt.Sprintf("distance %dcm exceeds hardware ceiling %dcm", distance, command.HardDistanceCeiling))
		}
		if distance < command.HardDistanceFloor {
			return clamp(cmd, command.HardDistanceFloor, CodeDistanceFloor,
				fmt.Sprintf("distance %dcm below hardware minimum %dcm", distance, command.HardDistanceFloor))
		}
		if action == command.Up && t.Height+distance > HardHeightCeiling {
			room := HardHeightCeiling - t.Height
			if room < command.HardDistanceFloor {
				return reject(cmd, CodeAtCeiling, fmt.Sprintf("at height ceiling %dcm", HardHeightCeiling))
			}
			return clamp(cmd, room, CodeHeightCeiling,
				fmt.Sprintf("height %dcm would exceed hardware ceiling %dcm", t.Height+distance, HardHeightCeiling))
		}
	}

	if !cfg.skipSoft {
		if v, ok := soft(cmd, t, cfg); ok {
			return v
		}
	}

	if !t.Connected {
		return reject(cmd, CodeNoConnection, "no connection")
	}

	return allow(cmd)
}

func soft(cmd command.Command, t core.Telemetry, cfg Config) (Verdict, bool) {
	action := cmd.Action()
	if d, ok := cmd.Distance(); ok {
		switch {
		case action == command.Up && t.Height+d > cfg.MaxHeight:
			return confirm(cmd, CodeAboveMaxHeight,
				fmt.Sprintf("height would reach %dcm, above limit %dcm", t.Height+d, cfg.MaxHeight)), true
		case action.Horizontal() && d > cfg.MaxDistance:
			return confirm(cmd, CodeBeyondMaxDistance,
				fmt.Sprintf("distance %dcm exceeds limit %dcm", d, cfg.MaxDistance)), true
		}
	}
	if deg, ok := cmd.Direction(); ok && cfg.ConfirmRotationAbove > 0 && deg > cfg.ConfirmRotationAbove {
		return confirm(cmd, CodeLargeRotation,
			fmt.Sprintf("rotation %d° exceeds %d°", deg, cfg.ConfirmRotationAbove)), true
	}
	switch {
	case action == command.Takeoff && cfg.LowBatteryMargin > 0 && t.Battery < cfg.BatteryThreshold+cfg.LowBatteryMargin:
		return confirm(cmd, CodeLowBatteryTakeoff,
			fmt.Sprintf("battery low for takeoff (%d%% < %d%%)", t.Battery, cfg.BatteryThreshold+cfg.LowBatteryMargin)), true
	case action == command.Land && cfg.ConfirmLandingAbove > 0 && t.Height > cfg.ConfirmLandingAbove:
		return confirm(cmd, CodeHighLanding,
			fmt.Sprintf("landing from %dcm, above %dcm", t.Height, cfg.ConfirmLandingAbove)), true
	}
	return Verdict{}, false
}

// Settle evaluates cmd and re-evaluates each clamped revision until the
// verdict is no longer Clamp. It returns every clamp applied on the way.
// A floor clamp can be followed by a ceiling clamp or a reject, so at most
// three rounds happen.
func Settle(cmd command.Command, t core.Telemetry, cfg Config) (Verdict, []Verdict) {
	var clamps []Verdict
	v := Evaluate(cmd, t, cfg)
	for v.Kind == Clamp && len(clamps) < 3 {
		clamps = append(clamps, v)
		v = Evaluate(v.Command, t, cfg)
	}
	return v, clamps
}
