package safety

import (
	"fmt"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
)

// Kind is the decision the policy reached for one command.
type Kind string

const (
	Allow               Kind = "allow"
	Clamp               Kind = "clamp"
	RequireConfirmation Kind = "require_confirmation"
	Reject              Kind = "reject"
)

// Code names the rule that produced a verdict.
type Code string

const (
	CodeNone Code = ""

	// Reject
	CodeLowBattery      Code = "low_battery"
	CodeAlreadyAirborne Code = "already_airborne"
	CodeAtCeiling       Code = "at_ceiling"
	CodeNoConnection    Code = "no_connection"

	// Clamp
	CodeDistanceCeiling Code = "distance_ceiling"
	CodeHeightCeiling   Code = "height_ceiling"
	CodeDistanceFloor   Code = "distance_floor"

	// RequireConfirmation
	CodeAboveMaxHeight    Code = "above_max_height"
	CodeBeyondMaxDistance Code = "beyond_max_distance"
	CodeLargeRotation     Code = "large_rotation"
	CodeLowBatteryTakeoff Code = "low_battery_takeoff"
	CodeHighLanding       Code = "high_landing"
)

// Verdict is the outcome of evaluating one command. For Clamp, Command is the
// revised command and Original the one that was evaluated; otherwise both are
// the evaluated command.
type Verdict struct {
	Kind     Kind            `json:"kind"`
	Code     Code            `json:"code,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Command  command.Command `json:"command"`
	Original command.Command `json:"original"`
}

// Fatal reports whether the verdict ends the session rather than skipping the command.
func (v Verdict) Fatal() bool {
	return v.Kind == Reject && v.Code == CodeNoConnection
}

func (v Verdict) String() string {
	switch v.Kind {
	case Clamp:
		return fmt.Sprintf("clamp %s -> %s (%s)", v.Original, v.Command, v.Reason)
	case Allow:
		return "allow " + v.Command.String()
	default:
		return fmt.Sprintf("%s %s (%s)", v.Kind, v.Command, v.Reason)
	}
}

func allow(cmd command.Command) Verdict {
	return Verdict{Kind: Allow, Command: cmd, Original: cmd}
}

func reject(cmd command.Command, code Code, reason string) Verdict {
	return Verdict{Kind: Reject, Code: code, Reason: reason, Command: cmd, Original: cmd}
}

func confirm(cmd command.Command, code Code, reason string) Verdict {
	return Verdict{Kind: RequireConfirmation, Code: code, Reason: reason, Command: cmd, Original: cmd}
}

func clamp(cmd command.Command, to int, code Code, reason string) Verdict {
	return Verdict{Kind: Clamp, Code: code, Reason: reason, Command: cmd.WithDistance(to), Original: cmd}
}
