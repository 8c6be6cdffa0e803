// Package session holds the state of one utterance from acceptance to its
// terminal report.
package session

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/flightagent/safety"
)

// Session is the unit of work for one utterance. It is owned by the engine
// and written by one goroutine at a time.
type Session struct {
	ID        string
	VehicleID string
	Utterance string
	StartedAt time.Time

	// State is the engine state the session is in.
	State string

	// Telemetry and Frame are the latest observations.
	Telemetry core.Telemetry
	Frame     core.Frame

	plans  []*PlanRecord
	events []Event

	replans  int
	failSafe FailSafe

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	closed bool
}

func New(vehicleID, utterance string) *Session {
	return &Session{
		ID:        ulid.Make().String(),
		VehicleID: vehicleID,
		Utterance: utterance,
		StartedAt: time.Now(),
	}
}

// AddPlan appends a new plan. Every command starts pending.
func (s *Session) AddPlan(p command.Plan) *PlanRecord {
	rec := &PlanRecord{Cycle: len(s.plans), Plan: p}
	for i, c := range p.Commands() {
		rec.Commands = append(rec.Commands, CommandRecord{Index: i, Planned: c, Result: ResultPending})
	}
	s.plans = append(s.plans, rec)
	return rec
}

// CurrentPlan returns the latest plan record, or nil before the first plan.
func (s *Session) CurrentPlan() *PlanRecord {
	if len(s.plans) == 0 {
		return nil
	}
	return s.plans[len(s.plans)-1]
}

// Plans returns the number of plans recorded.
func (s *Session) Plans() int {
	return len(s.plans)
}

// Record appends an event concerning command index of the current plan.
// Pass index -1 for session-level events.
func (s *Session) Record(kind EventKind, index int, cmd *command.Command, reason string) {
	plan := len(s.plans) - 1
	if index < 0 {
		plan = -1
	}
	s.events = append(s.events, Event{
		Kind:    kind,
		Plan:    plan,
		Index:   index,
		Command: cmd,
		Reason:  reason,
		Time:    time.Now(),
	})
}

// Verdict appends a safety verdict to command i of the current plan.
func (s *Session) Verdict(i int, v safety.Verdict) {
	c := s.command(i)
	c.Verdicts = append(c.Verdicts, v)
}

// Resolve sets the result of command i of the current plan.
func (s *Session) Resolve(i int, r Result, err error) {
	c := s.command(i)
	c.Result = r
	if err != nil {
		c.Error = err.Error()
	}
}

// Truncate marks every pending command of the current plan from index from on as skipped.
func (s *Session) Truncate(from int) int {
	p := s.CurrentPlan()
	if p == nil {
		return 0
	}
	n := 0
	for i := from; i < len(p.Commands); i++ {
		if p.Commands[i].Result == ResultPending {
			p.Commands[i].Result = ResultSkipped
			n++
		}
	}
	return n
}

// Begin marks command i outstanding with cmd as the issued form. It panics if
// another command is already outstanding.
func (s *Session) Begin(i int, cmd command.Command) {
	n := s.inFlight.Add(1)
	if n > s.maxInFlight.Load() {
		s.maxInFlight.Store(n)
	}
	if n > 1 {
		panic(fmt.Sprintf("session %s: %d commands outstanding", s.ID, n))
	}
	c := s.command(i)
	c.Issued = &cmd
}

// End clears the outstanding command i and records its attempts and the
// observed telemetry.
func (s *Session) End(i int, attempts int, t *core.Telemetry) {
	s.inFlight.Add(-1)
	c := s.command(i)
	c.Attempts += attempts
	if t != nil {
		c.Telemetry = t
		s.Telemetry = *t
	}
}

// InFlight reports the number of commands outstanding.
func (s *Session) InFlight() int {
	return int(s.inFlight.Load())
}

// Replanned counts one more follow-up reasoning cycle and returns the total.
func (s *Session) Replanned() int {
	s.replans++
	return s.replans
}

func (s *Session) ReplanCycles() int {
	return s.replans
}

// FailSafe records the outcome of an emergency landing.
func (s *Session) FailSafe(err error) {
	s.failSafe.Attempted = true
	s.failSafe.Succeeded = err == nil
	if err != nil {
		s.failSafe.Error = err.Error()
	}
}

// Summary condenses the session for a follow-up reasoning call.
func (s *Session) Summary() *core.Summary {
	sum := &core.Summary{Cycle: s.replans, Telemetry: s.Telemetry}
	for _, p := range s.plans {
		for _, c := range p.Commands {
			switch c.Result {
			case ResultExecuted:
				sum.Executed = append(sum.Executed, c.Issued.String())
			case ResultRejected, ResultDeclined, ResultSkipped:
				sum.Skipped = append(sum.Skipped, c.Planned.String())
			}
		}
	}
	return sum
}

// Close ends the session and builds its report. Calling Close twice panics.
func (s *Session) Close(outcome Outcome, failure FailureKind, err error) *Report {
	if s.closed {
		panic("session: closed twice")
	}
	s.closed = true

	r := &Report{
		ID:             s.ID,
		VehicleID:      s.VehicleID,
		Utterance:      s.Utterance,
		StartedAt:      s.StartedAt,
		FinishedAt:     time.Now(),
		Outcome:        outcome,
		Failure:        failure,
		Events:         slices.Clone(s.events),
		ReplanCycles:   s.replans,
		FinalTelemetry: s.Telemetry,
		FailSafe:       s.failSafe,
		MaxInFlight:    int(s.maxInFlight.Load()),
		FinalFrame:     s.Frame,
	}
	if err != nil {
		r.Error = err.Error()
	}
	for _, p := range s.plans {
		cp := *p
		cp.Commands = slices.Clone(p.Commands)
		r.Plans = append(r.Plans, cp)
	}
	return r
}

func (s *Session) command(i int) *CommandRecord {
	return &s.CurrentPlan().Commands[i]
}
