package engine

import (
	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/flightpeer/internal/pkg/util/fsm"
)

// Engine states.
const (
	StateIdle                 = "idle"
	StateCapturing            = "capturing"
	StateReasoning            = "reasoning"
	StateValidating           = "validating"
	StateSafetyChecking       = "safety_checking"
	StateAwaitingConfirmation = "awaiting_confirmation"
	StateExecuting            = "executing"
	StateObserving            = "observing"
	StateComplete             = "complete"
	StateAborted              = "aborted"
)

// Engine events.
const (
	EventAccept    = "accept"
	EventCaptured  = "captured"
	EventReasoned  = "reasoned"
	EventReprompt  = "reprompt"
	EventPlanned   = "planned"
	EventAllow     = "allow"
	EventHold      = "hold"
	EventSkip      = "skip"
	EventConfirmed = "confirmed"
	EventDeclined  = "declined"
	EventExecuted  = "executed"
	EventRefused   = "refused"
	EventNext      = "next"
	EventReplan    = "replan"
	EventFinish    = "finish"
	EventAbort     = "abort"
)

var nonTerminal = []string{
	StateCapturing,
	StateReasoning,
	StateValidating,
	StateSafetyChecking,
	StateAwaitingConfirmation,
	StateExecuting,
	StateObserving,
}

func terminal(state string) bool {
	return state == StateComplete || state == StateAborted
}

// newMachine builds the transition table of one session. r supplies the
// guards and entry actions.
func newMachine(r *run) *fsm.FSM {
	events := fsm.Events{
		{Name: EventAccept, Src: []string{StateIdle}, Dst: StateCapturing},
		{Name: EventCaptured, Src: []string{StateCapturing}, Dst: StateReasoning},
		{Name: EventReasoned, Src: []string{StateReasoning}, Dst: StateValidating},
		{Name: EventReprompt, Src: []string{StateValidating}, Dst: StateReasoning},
		{Name: EventPlanned, Src: []string{StateValidating}, Dst: StateSafetyChecking},
		{Name: EventAllow, Src: []string{StateSafetyChecking}, Dst: StateExecuting},
		{Name: EventHold, Src: []string{StateSafetyChecking}, Dst: StateAwaitingConfirmation},
		{Name: EventSkip, Src: []string{StateSafetyChecking, StateAwaitingConfirmation}, Dst: StateObserving},
		{Name: EventConfirmed, Src: []string{StateAwaitingConfirmation}, Dst: StateExecuting},
		{Name: EventDeclined, Src: []string{StateAwaitingConfirmation}, Dst: StateObserving},
		{Name: EventExecuted, Src: []string{StateExecuting}, Dst: StateObserving},
		{Name: EventRefused, Src: []string{StateExecuting}, Dst: StateObserving},
		{Name: EventNext, Src: []string{StateObserving}, Dst: StateSafetyChecking},
		{Name: EventReplan, Src: []string{StateObserving}, Dst: StateReasoning},
		{Name: EventFinish, Src: []string{StateValidating, StateObserving}, Dst: StateComplete},
		{Name: EventAbort, Src: nonTerminal, Dst: StateAborted},
	}

	callbacks := fsm.Callbacks{
		// Guards
		"before_" + EventAllow:     fsmutil.Guard(r.guardNothingOutstanding),
		"before_" + EventConfirmed: fsmutil.Guard(r.guardNothingOutstanding),
		"before_" + EventReplan:    fsmutil.Guard(r.guardReplanBudget),

		// Side effects
		"enter_state":             fsmutil.WrapEvent(r.actionEnterState),
		"enter_" + StateAborted:   fsmutil.WrapEvent(r.actionEnterAborted),
		"enter_" + StateComplete:  fsmutil.WrapEvent(r.actionEnterComplete),
		"enter_" + StateReasoning: fsmutil.WrapEvent(r.actionEnterReasoning),
	}

	return fsm.NewFSM(StateIdle, events, callbacks)
}
