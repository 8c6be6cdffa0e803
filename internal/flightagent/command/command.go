package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"k8s.io/utils/ptr"
)

const (
	// HardDistanceCeiling is the largest move the airframe executes in one command.
	HardDistanceCeiling = 500

	// HardDistanceFloor is the shortest move the airframe accepts. Shorter
	// moves are refused by the vehicle.
	HardDistanceFloor = 20

	// MaxRawDistance bounds what a Command may carry before the safety policy clamps it.
	MaxRawDistance = 5000
)

var (
	DistanceEnvelope = Range{Min: 1, Max: HardDistanceCeiling}
	SpeedEnvelope    = Range{Min: 10, Max: 100}
	DirectionRange   = Range{Min: 1, Max: 360}

	rawDistanceRange = Range{Min: 1, Max: MaxRawDistance}
)

// Params holds the optional numeric fields of a command.
type Params struct {
	Distance  *int
	Speed     *int
	Direction *int
}

// Command is one well-formed actuator instruction. The zero value is not a
// valid command; build one with New.
type Command struct {
	action    Action
	distance  *int
	speed     *int
	direction *int
}

// New validates p against action and returns the command. Translational
// actions need a distance, rotations need a direction, and fields that do not
// apply to the action must be absent.
func New(action Action, p Params) (Command, error) {
	if !action.Valid() {
		return Command{}, &UnknownActionError{Index: -1, Name: string(action)}
	}

	c := Command{action: action}

	switch {
	case action.Translational():
		if p.Distance == nil {
			return Command{}, &SchemaError{Field: "distance", Constraint: fmt.Sprintf("required for %s", action)}
		}
		if !rawDistanceRange.Contains(*p.Distance) {
			return Command{}, &OutOfRangeError{Index: -1, Field: "distance", Value: float64(*p.Distance), Range: DistanceEnvelope}
		}
		c.distance = ptr.To(*p.Distance)
	case p.Distance != nil:
		return Command{}, &SchemaError{Field: "distance", Constraint: fmt.Sprintf("must be absent for %s", action)}
	}

	switch {
	case action.Rotational():
		if p.Direction == nil {
			return Command{}, &SchemaError{Field: "direction", Constraint: fmt.Sprintf("required for %s", action)}
		}
		if !DirectionRange.Contains(*p.Direction) {
			return Command{}, &OutOfRangeError{Index: -1, Field: "direction", Value: float64(*p.Direction), Range: DirectionRange}
		}
		c.direction = ptr.To(*p.Direction)
	case p.Direction != nil:
		return Command{}, &SchemaError{Field: "direction", Constraint: fmt.Sprintf("must be absent for %s", action)}
	}

	if p.Speed != nil {
		if !SpeedEnvelope.Contains(*p.Speed) {
			return Command{}, &OutOfRangeError{Index: -1, Field: "speed", Value: float64(*p.Speed), Range: SpeedEnvelope}
		}
		c.speed = ptr.To(*p.Speed)
	}

	return c, nil
}

// MustNew is New for literals known to be valid. It panics otherwise.
func MustNew(action Action, p Params) Command {
	c, err := New(action, p)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Command) Action() Action {
	return c.action
}

// Distance returns the distance in centimeters, if the action has one.
func (c Command) Distance() (int, bool) {
	if c.distance == nil {
		return 0, false
	}
	return *c.distance, true
}

// Speed returns the speed in cm/s, if one was given.
func (c Command) Speed() (int, bool) {
	if c.speed == nil {
		return 0, false
	}
	return *c.speed, true
}

// SpeedOr returns the speed or def when none was given.
func (c Command) SpeedOr(def int) int {
	return ptr.Deref(c.speed, def)
}

// Direction returns the rotation in degrees, if the action has one.
func (c Command) Direction() (int, bool) {
	if c.direction == nil {
		return 0, false
	}
	return *c.direction, true
}

// WithinEnvelope reports whether every field is inside the hardware envelope.
func (c Command) WithinEnvelope() bool {
	if d, ok := c.Distance(); ok && !DistanceEnvelope.Contains(d) {
		return false
	}
	return true
}

// WithDistance returns a copy with the distance replaced. It panics for
// actions without a distance or for values outside the raw range.
func (c Command) WithDistance(d int) Command {
	if !c.action.Translational() || !rawDistanceRange.Contains(d) {
		panic(fmt.Sprintf("command: invalid distance %d for %s", d, c.action))
	}
	out := c
	out.distance = ptr.To(d)
	return out
}

// WithDefaultSpeed returns a copy whose speed is def when none was set.
func (c Command) WithDefaultSpeed(def int) Command {
	if c.speed != nil || !SpeedEnvelope.Contains(def) {
		return c
	}
	out := c
	out.speed = ptr.To(def)
	return out
}

// Equal reports whether both commands carry the same action and fields.
func (c Command) Equal(o Command) bool {
	return c.action == o.action &&
		ptr.Equal(c.distance, o.distance) &&
		ptr.Equal(c.speed, o.speed) &&
		ptr.Equal(c.direction, o.direction)
}

func (c Command) String() string {
	var b strings.Builder
	b.WriteString(string(c.action))
	if d, ok := c.Distance(); ok {
		fmt.Fprintf(&b, " %dcm", d)
	}
	if d, ok := c.Direction(); ok {
		fmt.Fprintf(&b, " %d°", d)
	}
	if s, ok := c.Speed(); ok {
		fmt.Fprintf(&b, " @%dcm/s", s)
	}
	return b.String()
}

type wireCommand struct {
	Action    Action `json:"action"`
	Distance  *int   `json:"distance,omitempty"`
	Speed     *int   `json:"speed,omitempty"`
	Direction *int   `json:"direction,omitempty"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCommand{
		Action:    c.action,
		Distance:  c.distance,
		Speed:     c.speed,
		Direction: c.direction,
	})
}

// UnmarshalJSON decodes a command written by MarshalJSON. It goes through New,
// so a decoded Command is always well-formed.
func (c *Command) UnmarshalJSON(data []byte) error {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out, err := New(w.Action, Params{Distance: w.Distance, Speed: w.Speed, Direction: w.Direction})
	if err != nil {
		return err
	}
	*c = out
	return nil
}
