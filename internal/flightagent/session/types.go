package session

import (
	"time"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/flightagent/safety"
)

// Outcome is the terminal state a session reached.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeAborted  Outcome = "aborted"
)

// FailureKind classifies why a session aborted.
type FailureKind string

const (
	FailureNone                 FailureKind = ""
	FailureCaptureFailed        FailureKind = "capture_failed"
	FailureReasoningUnavailable FailureKind = "reasoning_unavailable"
	FailurePlanUnparseable      FailureKind = "plan_unparseable"
	FailureActuationFailed      FailureKind = "actuation_failed"
	FailureConnectivityLost     FailureKind = "connectivity_lost"
	FailureCancelled            FailureKind = "cancelled"
)

// EventKind names a notable occurrence inside a session.
type EventKind string

const (
	EventUnknownAction         EventKind = "unknown_action"
	EventOutOfRange            EventKind = "out_of_range"
	EventCorrectiveReprompt    EventKind = "corrective_reprompt"
	EventClamp                 EventKind = "clamp"
	EventSafetyRejection       EventKind = "safety_rejection"
	EventVehicleRefusal        EventKind = "vehicle_refusal"
	EventConfirmationRequested EventKind = "confirmation_requested"
	EventConfirmationGranted   EventKind = "confirmation_granted"
	EventConfirmationDeclined  EventKind = "confirmation_declined"
	EventPlanTruncated         EventKind = "plan_truncated"
	EventGoalReached           EventKind = "goal_reached"
	EventReplanBudgetExhausted EventKind = "replan_budget_exhausted"
	EventEmergencyStop         EventKind = "emergency_stop"
	EventEmergencyLand         EventKind = "emergency_land"
)

// Event is one entry of the session history. Plan and Index locate the
// command the event concerns; both are -1 when it concerns none.
type Event struct {
	Kind    EventKind        `json:"kind"`
	Plan    int              `json:"plan"`
	Index   int              `json:"index"`
	Command *command.Command `json:"command,omitempty"`
	Reason  string           `json:"reason,omitempty"`
	Time    time.Time        `json:"time"`
}

// Result is the outcome of one planned command.
type Result string

const (
	ResultPending  Result = "pending"
	ResultExecuted Result = "executed"
	ResultRejected Result = "rejected"
	ResultDeclined Result = "declined"
	ResultSkipped  Result = "skipped"
	ResultFailed   Result = "failed"
)

// CommandRecord is the history of one planned command.
type CommandRecord struct {
	Index   int             `json:"index"`
	Planned command.Command `json:"planned"`

	// Issued is what reached the vehicle, after any clamp.
	Issued *command.Command `json:"issued,omitempty"`

	Verdicts []safety.Verdict `json:"verdicts,omitempty"`
	Result   Result           `json:"result"`

	// Attempts counts actuation attempts for this command.
	Attempts int `json:"attempts"`

	// Telemetry observed after the command.
	Telemetry *core.Telemetry `json:"telemetry,omitempty"`

	Error string `json:"error,omitempty"`
}

// PlanRecord pairs one plan with the outcome of each of its commands.
type PlanRecord struct {
	Cycle    int             `json:"cycle"`
	Plan     command.Plan    `json:"plan"`
	Commands []CommandRecord `json:"commands"`
}

// FailSafe records the emergency landing issued outside the plan.
type FailSafe struct {
	Attempted bool   `json:"attempted"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// Report is the full history of a closed session, handed to reporters.
type Report struct {
	ID         string    `json:"id"`
	VehicleID  string    `json:"vehicleID,omitempty"`
	Utterance  string    `json:"utterance"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Outcome Outcome     `json:"outcome"`
	Failure FailureKind `json:"failure,omitempty"`
	Error   string      `json:"error,omitempty"`

	Plans  []PlanRecord `json:"plans"`
	Events []Event      `json:"events"`

	ReplanCycles   int            `json:"replanCycles"`
	FinalTelemetry core.Telemetry `json:"finalTelemetry"`
	FailSafe       FailSafe       `json:"failSafe"`

	// MaxInFlight is the largest number of commands outstanding at once.
	MaxInFlight int `json:"maxInFlight"`

	// FinalFrame is the last captured frame, not serialised.
	FinalFrame core.Frame `json:"-"`
}

// Executed returns the commands that reached the vehicle, in order.
func (r *Report) Executed() []command.Command {
	var out []command.Command
	for _, p := range r.Plans {
		for _, c := range p.Commands {
			if c.Result == ResultExecuted && c.Issued != nil {
				out = append(out, *c.Issued)
			}
		}
	}
	return out
}

// Pending counts commands that were planned but never resolved.
func (r *Report) Pending() int {
	n := 0
	for _, p := range r.Plans {
		for _, c := range p.Commands {
			if c.Result == ResultPending {
				n++
			}
		}
	}
	return n
}

// EventsOf returns the events of kind k.
func (r *Report) EventsOf(k EventKind) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
