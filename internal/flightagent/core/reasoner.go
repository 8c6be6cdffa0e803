package core

import (
	"context"
	"fmt"
	"strings"
)

// Reasoner is the driven port to the vision reasoning service. It maps a
// frame and an instruction to an unstructured reply expected to contain a plan.
type Reasoner interface {
	Reason(ctx context.Context, req ReasonRequest) (string, error)
}

// ReasonRequest is one call to the reasoning service.
type ReasonRequest struct {
	Frame       Frame
	Instruction string

	// History is set on follow-up calls after commands were executed.
	History *Summary

	// Correction is set when the previous reply did not parse; it names the problem.
	Correction string
}

// Summary condenses a running session for a follow-up reasoning call.
type Summary struct {
	Cycle     int       `json:"cycle"`
	Executed  []string  `json:"executed"`
	Skipped   []string  `json:"skipped,omitempty"`
	Telemetry Telemetry `json:"telemetry"`
}

// String renders the summary as prompt context.
func (s *Summary) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Follow-up call %d.", s.Cycle)
	if len(s.Executed) > 0 {
		fmt.Fprintf(&b, " Already executed: %s.", strings.Join(s.Executed, ", "))
	} else {
		b.WriteString(" Nothing executed yet.")
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(&b, " Skipped: %s.", strings.Join(s.Skipped, ", "))
	}
	fmt.Fprintf(&b, " Current height %dcm, battery %d%%.", s.Telemetry.Height, s.Telemetry.Battery)
	return b.String()
}
