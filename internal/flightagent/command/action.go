package command

import (
	"strings"
)

// Action is one of the closed set of actuator primitives.
type Action string

const (
	Takeoff   Action = "takeoff"
	Land      Action = "land"
	Up        Action = "up"
	Down      Action = "down"
	Forward   Action = "forward"
	Back      Action = "back"
	Left      Action = "left"
	Right     Action = "right"
	RotateCW  Action = "rotate_cw"
	RotateCCW Action = "rotate_ccw"
)

// Actions lists every known action in catalogue order.
var Actions = []Action{Takeoff, Land, Up, Down, Forward, Back, Left, Right, RotateCW, RotateCCW}

// ParseAction resolves name case-insensitively. Dashes and spaces are read as underscores.
func ParseAction(name string) (Action, bool) {
	norm := strings.ToLower(strings.TrimSpace(name))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for _, a := range Actions {
		if string(a) == norm {
			return a, true
		}
	}
	return "", false
}

// Valid reports whether a is a canonical catalogue action.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// Translational reports whether the action moves the vehicle by a distance.
func (a Action) Translational() bool {
	switch a {
	case Up, Down, Forward, Back, Left, Right:
		return true
	}
	return false
}

// Vertical reports whether the action changes height.
func (a Action) Vertical() bool {
	return a == Up || a == Down
}

// Horizontal reports whether the action moves in the horizontal plane.
func (a Action) Horizontal() bool {
	return a.Translational() && !a.Vertical()
}

// Rotational reports whether the action turns the vehicle by a direction.
func (a Action) Rotational() bool {
	return a == RotateCW || a == RotateCCW
}

func (a Action) String() string {
	return string(a)
}
