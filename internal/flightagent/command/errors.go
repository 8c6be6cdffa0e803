package command

import (
	"errors"
	"fmt"
)

// ErrNoOpPlan marks a plan whose command list is empty.
var ErrNoOpPlan = errors.New("no-op plan")

// SchemaError reports a structurally invalid plan. Field names the first
// offending location, e.g. "commands[1].distance".
type SchemaError struct {
	Field      string
	Constraint string
	Err        error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error at %s: %s", e.Field, e.Constraint)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// UnknownActionError reports a command whose action is not in the catalogue.
// The command is dropped; the rest of the plan survives.
type UnknownActionError struct {
	Index int
	Name  string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("commands[%d]: unknown action %q", e.Index, e.Name)
}

// Range is an inclusive integer interval.
type Range struct {
	Min int
	Max int
}

func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("%d..%d", r.Min, r.Max)
}

// OutOfRangeError reports a numeric field outside its envelope.
type OutOfRangeError struct {
	Index int
	Field string
	Value float64
	Range Range
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("commands[%d].%s: %g is outside %s", e.Index, e.Field, e.Value, e.Range)
}
