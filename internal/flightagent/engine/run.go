package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"k8s.io/utils/ptr"

	"github.com/autopeer-io/flightpeer/internal/flightagent/actuation"
	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/flightagent/safety"
	"github.com/autopeer-io/flightpeer/internal/flightagent/session"
	"github.com/autopeer-io/flightpeer/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/flightpeer/internal/pkg/util/fsm"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

// run is the state of one session while the engine drives it.
type run struct {
	e      *Engine
	s      *session.Session
	fsm    *fsm.FSM
	policy safety.Config
	log    log.Logger

	reply      string
	correction string
	reprompted bool

	plan     command.Plan
	next     int
	current  command.Command
	verdict  safety.Verdict
	executed bool

	// planExecuted counts commands of the current plan that reached the vehicle.
	planExecuted int

	failure session.FailureKind
	cause   error
}

func newRun(e *Engine, s *session.Session, policy safety.Config) *run {
	r := &run{
		e:      e,
		s:      s,
		policy: policy,
		log:    e.log.WithValues("session", s.ID),
	}
	r.fsm = newMachine(r)
	return r
}

// drive advances the machine until it reaches a terminal state.
func (r *run) drive(ctx context.Context) *session.Report {
	r.transition(ctx, EventAccept)

	for !terminal(r.fsm.Current()) {
		if ctx.Err() != nil {
			r.transition(ctx, r.cancelled(ctx))
			continue
		}
		r.transition(ctx, r.step(ctx))
	}

	outcome := session.OutcomeComplete
	if r.fsm.Current() == StateAborted {
		outcome = session.OutcomeAborted
	}
	return r.s.Close(outcome, r.failure, r.cause)
}

// transition fires event. The machine's own context is never cancelled so
// that a stop request cannot leave a transition half done.
func (r *run) transition(ctx context.Context, event string) {
	err := r.fsm.Event(context.WithoutCancel(ctx), event)
	if err == nil {
		return
	}

	cause := fsmutil.Cause(err)
	r.log.Error(cause, "Transition refused", "event", event, "state", r.fsm.Current())
	if terminal(r.fsm.Current()) {
		return
	}
	if r.failure == session.FailureNone {
		r.fail(session.FailureActuationFailed, cause)
	}
	if err := r.fsm.Event(context.WithoutCancel(ctx), EventAbort); err != nil {
		panic(fmt.Sprintf("engine: cannot abort from %s: %v", r.fsm.Current(), err))
	}
}

func (r *run) step(ctx context.Context) string {
	switch r.fsm.Current() {
	case StateCapturing:
		return r.capture(ctx)
	case StateReasoning:
		return r.reason(ctx)
	case StateValidating:
		return r.validate()
	case StateSafetyChecking:
		return r.check()
	case StateAwaitingConfirmation:
		return r.confirm(ctx)
	case StateExecuting:
		return r.execute(ctx)
	case StateObserving:
		return r.observe(ctx)
	}
	panic("engine: no step for state " + r.fsm.Current())
}

func (r *run) capture(ctx context.Context) string {
	frame, err := r.e.actuator.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancelled(ctx)
		}
		return r.fail(session.FailureCaptureFailed, err)
	}
	r.s.Frame = frame

	t, err := r.e.actuator.Telemetry(ctx)
	if err != nil {
		r.log.Warn("Telemetry unavailable before planning", "error", err)
	}
	r.s.Telemetry = t
	return EventCaptured
}

func (r *run) reason(ctx context.Context) string {
	req := core.ReasonRequest{
		Frame:       r.s.Frame,
		Instruction: r.s.Utterance,
		Correction:  r.correction,
	}
	if r.s.Plans() > 0 {
		req.History = r.s.Summary()
	}

	reply, err := r.e.reasoner.Reason(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancelled(ctx)
		}
		return r.fail(session.FailureReasoningUnavailable, err)
	}
	r.reply = reply
	return EventReasoned
}

func (r *run) validate() string {
	plan, err := command.Parse(r.reply, command.Options{DefaultSpeed: r.e.cfg.DefaultSpeed})
	r.recordIssues(plan)

	switch {
	case errors.Is(err, command.ErrNoOpPlan):
		r.plan = r.s.AddPlan(plan).Plan
		r.s.Record(session.EventGoalReached, -1, nil, "no action needed")
		return EventFinish

	case err != nil && !r.reprompted:
		r.reprompted = true
		r.correction = err.Error()
		r.s.Record(session.EventCorrectiveReprompt, -1, nil, err.Error())
		r.log.Warn("Plan rejected, asking for a corrected plan", "error", err)
		return EventReprompt

	case err != nil:
		return r.fail(session.FailurePlanUnparseable, fmt.Errorf("%w: %w", ErrPlanUnparseable, err))
	}

	r.correction = ""
	r.reprompted = false
	r.plan = r.s.AddPlan(plan).Plan
	r.next = 0
	r.planExecuted = 0
	r.log.Info("Plan validated", "commands", plan.Len(), "cycle", r.s.ReplanCycles(), "rationale", plan.Rationale())
	if r.e.onPlan != nil {
		r.e.onPlan(r.s, plan)
	}
	return EventPlanned
}

func (r *run) recordIssues(plan command.Plan) {
	for _, issue := range plan.Issues() {
		var (
			unknown *command.UnknownActionError
			oor     *command.OutOfRangeError
		)
		switch {
		case errors.As(issue, &unknown):
			r.s.Record(session.EventUnknownAction, -1, nil, issue.Error())
			r.log.Warn("Command dropped from plan", "reason", issue.Error())
		case errors.As(issue, &oor):
			r.s.Record(session.EventOutOfRange, -1, nil, issue.Error())
			r.log.Warn("Command out of range", "reason", issue.Error())
		}
	}
}

func (r *run) check() string {
	i := r.next
	cmd := r.plan.At(i)

	v, clamps := safety.Settle(cmd, r.s.Telemetry, r.policy)
	for _, c := range clamps {
		r.s.Verdict(i, c)
		r.s.Record(session.EventClamp, i, ptr.To(c.Command), c.Reason)
		metrics.SafetyVerdictsTotal.WithLabelValues(string(c.Kind)).Inc()
		r.log.Warn("Command clamped", "from", c.Original.String(), "to", c.Command.String(), "reason", c.Reason)
	}
	r.s.Verdict(i, v)
	metrics.SafetyVerdictsTotal.WithLabelValues(string(v.Kind)).Inc()

	r.current = v.Command
	r.verdict = v

	switch v.Kind {
	case safety.Allow, safety.Clamp:
		return EventAllow
	case safety.RequireConfirmation:
		return EventHold
	default:
		return r.reject(i, v)
	}
}

// reject skips command i, or ends the session when the link is gone.
func (r *run) reject(i int, v safety.Verdict) string {
	r.resolve(i, session.ResultRejected, errors.New(v.Reason))
	r.s.Record(session.EventSafetyRejection, i, ptr.To(v.Command), v.Reason)
	r.log.Warn("Command rejected", "command", v.Command.String(), "reason", v.Reason)

	if v.Fatal() {
		return r.fail(session.FailureConnectivityLost, fmt.Errorf("%w: %s", actuation.ErrConnectivityLost, v.Reason))
	}

	r.next++
	if r.e.cfg.RejectAbortsPlan {
		r.truncate("previous command rejected")
	}
	r.executed = false
	return EventSkip
}

func (r *run) confirm(ctx context.Context) string {
	i := r.next
	r.s.Record(session.EventConfirmationRequested, i, ptr.To(r.current), r.verdict.Reason)

	cctx, cancel := context.WithTimeout(ctx, r.e.cfg.ConfirmationTimeout)
	defer cancel()

	ok, err := r.e.confirmer.Confirm(cctx, core.ConfirmRequest{
		ID:        fmt.Sprintf("%s-%d-%d", r.s.ID, r.s.Plans()-1, i),
		SessionID: r.s.ID,
		Command:   r.current,
		Reason:    r.verdict.Reason,
	})
	if ctx.Err() != nil {
		return r.cancelled(ctx)
	}
	if err != nil || !ok {
		reason := "declined by operator"
		if err != nil {
			reason = fmt.Sprintf("no decision: %v", err)
		}
		r.resolve(i, session.ResultDeclined, nil)
		r.s.Record(session.EventConfirmationDeclined, i, ptr.To(r.current), reason)
		r.log.Info("Command declined", "command", r.current.String(), "reason", reason)
		r.next++
		r.truncate("confirmation declined")
		r.executed = false
		return EventDeclined
	}

	r.s.Record(session.EventConfirmationGranted, i, ptr.To(r.current), "")

	// The decision may have taken a while; the hard tier is checked again.
	v := safety.Evaluate(r.current, r.s.Telemetry, r.policy.Confirmed())
	if v.Kind == safety.Reject {
		r.s.Verdict(i, v)
		return r.reject(i, v)
	}
	r.current = v.Command
	return EventConfirmed
}

func (r *run) execute(ctx context.Context) string {
	i := r.next
	r.s.Begin(i, r.current)

	// A command in flight is not interrupted; a stop is honored once it returns.
	res, err := r.e.actuator.Execute(context.WithoutCancel(ctx), r.current)

	var t *core.Telemetry
	if err == nil && !res.Ack.Telemetry.Timestamp.IsZero() {
		t = ptr.To(res.Ack.Telemetry)
	}
	r.s.End(i, res.Attempts, t)

	if errors.Is(err, actuation.ErrCommandRefused) {
		return r.refused(i, err)
	}
	if err != nil {
		r.resolve(i, session.ResultFailed, err)
		if errors.Is(err, actuation.ErrConnectivityLost) {
			return r.fail(session.FailureConnectivityLost, err)
		}
		return r.fail(session.FailureActuationFailed, err)
	}

	r.resolve(i, session.ResultExecuted, nil)
	r.log.Info("Command executed", "command", r.current.String(), "attempts", res.Attempts)
	r.next++
	r.planExecuted++
	r.executed = true
	return EventExecuted
}

// refused skips command i after the vehicle turned it down. The vehicle did
// not move, so the plan goes on with the next command.
func (r *run) refused(i int, err error) string {
	r.resolve(i, session.ResultRejected, err)
	r.s.Record(session.EventVehicleRefusal, i, ptr.To(r.current), err.Error())
	r.log.Warn("Command refused by vehicle", "command", r.current.String(), "error", err)

	r.next++
	if r.e.cfg.RejectAbortsPlan {
		r.truncate("previous command refused")
	}
	r.executed = false
	return EventRefused
}

func (r *run) observe(ctx context.Context) string {
	if r.executed {
		t, err := r.e.actuator.Telemetry(ctx)
		if err == nil {
			r.s.Telemetry = t
		} else {
			// Keep the last known height for the fail-safe decision.
			r.s.Telemetry.Connected = false
		}
		if err != nil || !t.Connected {
			if ctx.Err() != nil {
				return r.cancelled(ctx)
			}
			if err == nil {
				err = actuation.ErrConnectivityLost
			}
			return r.fail(session.FailureConnectivityLost, err)
		}

		if r.e.cfg.ClosedLoop {
			frame, err := r.e.actuator.Capture(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return r.cancelled(ctx)
				}
				return r.fail(session.FailureCaptureFailed, err)
			}
			r.s.Frame = frame
		}
		r.executed = false
	}

	if r.next < r.plan.Len() {
		return EventNext
	}

	switch {
	case r.plan.GoalReached():
		r.s.Record(session.EventGoalReached, -1, nil, "reported by reasoning")
		return EventFinish
	case !r.e.cfg.ClosedLoop:
		return EventFinish
	case r.planExecuted == 0:
		// Nothing changed in the world; another call would see the same frame.
		return EventFinish
	case r.s.ReplanCycles() >= r.e.cfg.MaxReplanCycles:
		r.s.Record(session.EventReplanBudgetExhausted, -1, nil,
			fmt.Sprintf("stopped after %d follow-up cycle(s)", r.s.ReplanCycles()))
		return EventFinish
	}
	return EventReplan
}

// truncate skips what is left of the current plan.
func (r *run) truncate(reason string) {
	from := r.next
	if n := r.s.Truncate(from); n > 0 {
		for i := from; i < r.plan.Len(); i++ {
			metrics.CommandsTotal.WithLabelValues(string(r.plan.At(i).Action()), string(session.ResultSkipped)).Inc()
		}
		r.s.Record(session.EventPlanTruncated, -1, nil, fmt.Sprintf("%d command(s) skipped: %s", n, reason))
	}
	r.next = r.plan.Len()
}

func (r *run) resolve(i int, result session.Result, err error) {
	r.s.Resolve(i, result, err)
	metrics.CommandsTotal.WithLabelValues(string(r.plan.At(i).Action()), string(result)).Inc()
}

func (r *run) fail(kind session.FailureKind, err error) string {
	r.failure = kind
	r.cause = err
	r.log.Error(err, "Session aborting", "failure", kind, "state", r.fsm.Current())
	return EventAbort
}

func (r *run) cancelled(ctx context.Context) string {
	cause := context.Cause(ctx)
	if !errors.Is(cause, ErrCancelled) {
		cause = fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	r.s.Record(session.EventEmergencyStop, -1, nil, cause.Error())
	return r.fail(session.FailureCancelled, cause)
}

func (r *run) guardNothingOutstanding(_ context.Context, _ *fsm.Event) error {
	if n := r.s.InFlight(); n != 0 {
		return fmt.Errorf("%d command(s) still outstanding", n)
	}
	return nil
}

func (r *run) guardReplanBudget(_ context.Context, _ *fsm.Event) error {
	if r.s.ReplanCycles() >= r.e.cfg.MaxReplanCycles {
		return fmt.Errorf("replan budget of %d exhausted", r.e.cfg.MaxReplanCycles)
	}
	return nil
}

func (r *run) actionEnterState(_ context.Context, e *fsm.Event) error {
	r.s.State = e.Dst
	r.log.Debug("State changed", "from", e.Src, "to", e.Dst, "event", e.Event)
	return nil
}

// actionEnterReasoning counts follow-up calls.
func (r *run) actionEnterReasoning(_ context.Context, e *fsm.Event) error {
	if e.Event == EventReplan {
		r.s.Replanned()
	}
	return nil
}

func (r *run) actionEnterComplete(_ context.Context, _ *fsm.Event) error {
	r.s.Truncate(r.next)
	return nil
}

// actionEnterAborted lands the vehicle when the session ended in a way that
// may leave it airborne and unattended.
func (r *run) actionEnterAborted(ctx context.Context, _ *fsm.Event) error {
	r.s.Truncate(r.next)

	switch r.failure {
	case session.FailureActuationFailed, session.FailureConnectivityLost, session.FailureCancelled:
	default:
		return nil
	}
	if !r.s.Telemetry.Airborne(r.policy.AirborneEpsilon) {
		return nil
	}

	lctx := context.WithoutCancel(ctx)
	err := r.e.actuator.Land(lctx)
	r.s.FailSafe(err)
	reason := "landed"
	if err != nil {
		reason = err.Error()
		r.log.Error(err, "Fail-safe landing failed")
	} else {
		r.log.Warn("Fail-safe landing issued")
		if t, terr := r.e.actuator.Telemetry(lctx); terr == nil {
			r.s.Telemetry = t
		}
	}
	r.s.Record(session.EventEmergencyLand, -1, nil, reason)
	return nil
}
