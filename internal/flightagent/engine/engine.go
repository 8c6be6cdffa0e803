// Package engine runs one utterance at a time through capture, reasoning,
// validation, safety gating, actuation and observation until the session
// completes or aborts.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/flightpeer/internal/flightagent/actuation"
	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/flightagent/safety"
	"github.com/autopeer-io/flightpeer/internal/flightagent/session"
	"github.com/autopeer-io/flightpeer/internal/pkg/metrics"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

var (
	// ErrBusy is returned when an utterance arrives while a session runs.
	ErrBusy = errors.New("engine busy: a session is already running")

	// ErrEmptyUtterance is returned for blank utterances.
	ErrEmptyUtterance = errors.New("empty utterance")

	// ErrPlanUnparseable is the cause recorded when the corrective re-prompt
	// also produced an unusable plan.
	ErrPlanUnparseable = errors.New("plan unparseable")

	// ErrCancelled is the cause recorded when a session was stopped.
	ErrCancelled = errors.New("session cancelled")
)

// Actuator is the engine's view of the actuation gateway.
type Actuator interface {
	Execute(ctx context.Context, cmd command.Command) (actuation.Result, error)
	Land(ctx context.Context) error
	Capture(ctx context.Context) (core.Frame, error)
	Telemetry(ctx context.Context) (core.Telemetry, error)
}

// SessionReporter receives the report of every closed session.
type SessionReporter interface {
	Report(ctx context.Context, r *session.Report) error
}

// PlanFunc is called with every validated plan before it is executed.
type PlanFunc func(s *session.Session, p command.Plan)

// Config is the engine configuration. The safety tier can be replaced later
// through SetPolicy; everything else is fixed at construction.
type Config struct {
	VehicleID string

	Policy safety.Config

	ClosedLoop      bool
	MaxReplanCycles int
	DefaultSpeed    int

	ConfirmationTimeout time.Duration

	// RejectAbortsPlan drops the rest of the plan after a rejected command.
	RejectAbortsPlan bool
}

type Option func(*Engine)

func WithReporter(r SessionReporter) Option {
	return func(e *Engine) { e.reporter = r }
}

func WithPlanHook(fn PlanFunc) Option {
	return func(e *Engine) { e.onPlan = fn }
}

// Engine is the closed-loop execution engine. It is not reentrant: one
// session runs at a time and Execute fails fast with ErrBusy otherwise.
type Engine struct {
	reasoner  core.Reasoner
	actuator  Actuator
	confirmer core.Confirmer
	reporter  SessionReporter
	onPlan    PlanFunc

	cfg    Config
	policy atomic.Pointer[safety.Config]

	busy atomic.Bool

	lock   sync.Mutex
	cancel context.CancelCauseFunc
	active *session.Session

	log log.Logger
}

func New(reasoner core.Reasoner, actuator Actuator, confirmer core.Confirmer, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		reasoner:  reasoner,
		actuator:  actuator,
		confirmer: confirmer,
		cfg:       cfg,
		log:       log.WithName("engine"),
	}
	policy := cfg.Policy
	e.policy.Store(&policy)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one utterance to a terminal state and returns its report.
// A session that aborts still returns a report and a nil error; the error
// is reserved for ErrBusy and ErrEmptyUtterance.
func (e *Engine) Execute(ctx context.Context, utterance string) (*session.Report, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, ErrEmptyUtterance
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s := session.New(e.cfg.VehicleID, utterance)
	e.lock.Lock()
	e.cancel, e.active = cancel, s
	e.lock.Unlock()
	defer func() {
		e.lock.Lock()
		e.cancel, e.active = nil, nil
		e.lock.Unlock()
	}()

	metrics.SessionActive.Set(1)
	defer metrics.SessionActive.Set(0)

	r := newRun(e, s, *e.policy.Load())
	r.log.Info("Session started", "utterance", utterance)
	report := r.drive(ctx)

	metrics.SessionsTotal.WithLabelValues(string(report.Outcome), string(report.Failure)).Inc()
	r.log.Info("Session finished", "outcome", report.Outcome, "failure", report.Failure,
		"executed", len(report.Executed()), "duration", report.Duration())

	if e.reporter != nil {
		if err := e.reporter.Report(context.WithoutCancel(ctx), report); err != nil {
			r.log.Error(err, "Failed to report session")
		}
	}
	return report, nil
}

// Stop requests an emergency stop of the running session. It reports
// whether a session was running.
func (e *Engine) Stop() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.cancel == nil {
		return false
	}
	e.log.Warn("Emergency stop requested", "session", e.active.ID)
	e.cancel(ErrCancelled)
	return true
}

// Busy reports whether a session is running.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// SetPolicy replaces the configurable safety thresholds. The running
// session keeps the value it started with. The airborne epsilon is not
// configurable at runtime and is kept.
func (e *Engine) SetPolicy(p safety.Config) {
	p.AirborneEpsilon = e.cfg.Policy.AirborneEpsilon
	e.policy.Store(&p)
	e.log.Info("Safety thresholds updated", "maxHeight", p.MaxHeight, "maxDistance", p.MaxDistance,
		"batteryThreshold", p.BatteryThreshold, "confirmRotationAbove", p.ConfirmRotationAbove)
}

// Policy returns the thresholds the next session will use.
func (e *Engine) Policy() safety.Config {
	return *e.policy.Load()
}
