package session

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"k8s.io/utils/ptr"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
)

func testPlan() command.Plan {
	return command.NewPlan([]command.Command{
		command.MustNew(command.Takeoff, command.Params{}),
		command.MustNew(command.Up, command.Params{Distance: ptr.To(50)}),
		command.MustNew(command.Forward, command.Params{Distance: ptr.To(300)}),
		command.MustNew(command.Land, command.Params{}),
	}, "climb and move")
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a, b := New("tello", "takeoff"), New("tello", "takeoff")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids %q and %q must be distinct and non-empty", a.ID, b.ID)
	}
	if len(a.ID) != 26 {
		t.Errorf("id %q is not a ulid", a.ID)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := New("tello", "go up and forward")
	s.AddPlan(testPlan())

	s.Begin(0, s.CurrentPlan().Commands[0].Planned)
	s.End(0, 1, &core.Telemetry{Height: 80, Battery: 90, Connected: true})
	s.Resolve(0, ResultExecuted, nil)

	up := s.CurrentPlan().Commands[1].Planned
	s.Begin(1, up)
	s.End(1, 2, &core.Telemetry{Height: 130, Battery: 88, Connected: true})
	s.Resolve(1, ResultExecuted, nil)

	s.Resolve(2, ResultDeclined, nil)
	s.Record(EventConfirmationDeclined, 2, ptr.To(s.CurrentPlan().Commands[2].Planned), "operator declined")
	if n := s.Truncate(3); n != 1 {
		t.Fatalf("Truncate() = %d, want 1", n)
	}

	r := s.Close(OutcomeComplete, FailureNone, nil)

	if got := len(r.Executed()); got != 2 {
		t.Errorf("executed = %d, want 2", got)
	}
	if r.Pending() != 0 {
		t.Errorf("pending = %d, want 0", r.Pending())
	}
	if r.FinalTelemetry.Height != 130 {
		t.Errorf("final height = %d, want 130", r.FinalTelemetry.Height)
	}
	if r.Plans[0].Commands[1].Attempts != 2 {
		t.Errorf("attempts = %d, want 2", r.Plans[0].Commands[1].Attempts)
	}
	if r.MaxInFlight != 1 {
		t.Errorf("max in flight = %d, want 1", r.MaxInFlight)
	}
	if ev := r.EventsOf(EventConfirmationDeclined); len(ev) != 1 || ev[0].Plan != 0 || ev[0].Index != 2 {
		t.Errorf("declined events = %+v", ev)
	}
}

func TestBeginPanicsOnSecondOutstandingCommand(t *testing.T) {
	s := New("tello", "x")
	s.AddPlan(testPlan())
	s.Begin(0, s.CurrentPlan().Commands[0].Planned)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	s.Begin(1, s.CurrentPlan().Commands[1].Planned)
}

func TestReportIsDetachedFromSession(t *testing.T) {
	s := New("tello", "x")
	s.AddPlan(testPlan())
	r := s.Close(OutcomeAborted, FailureActuationFailed, errors.New("timeout"))

	s.CurrentPlan().Commands[0].Result = ResultExecuted
	if r.Plans[0].Commands[0].Result != ResultPending {
		t.Error("report shares command records with the session")
	}
	if r.Error != "timeout" || r.Failure != FailureActuationFailed {
		t.Errorf("failure = %s %q", r.Failure, r.Error)
	}
}

func TestSummary(t *testing.T) {
	s := New("tello", "x")
	s.AddPlan(testPlan())
	s.Begin(0, s.CurrentPlan().Commands[0].Planned)
	s.End(0, 1, &core.Telemetry{Height: 80, Battery: 75, Connected: true})
	s.Resolve(0, ResultExecuted, nil)
	s.Resolve(1, ResultRejected, nil)
	s.Replanned()

	sum := s.Summary()
	if sum.Cycle != 1 || len(sum.Executed) != 1 || len(sum.Skipped) != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	text := sum.String()
	for _, want := range []string{"Already executed: takeoff", "Skipped: up 50cm", "height 80cm", "battery 75%"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary %q missing %q", text, want)
		}
	}
}

func TestFailSafe(t *testing.T) {
	s := New("tello", "x")
	s.FailSafe(errors.New("no ack"))
	r := s.Close(OutcomeAborted, FailureConnectivityLost, nil)
	if !r.FailSafe.Attempted || r.FailSafe.Succeeded || r.FailSafe.Error != "no ack" {
		t.Errorf("fail-safe = %+v", r.FailSafe)
	}
}

func TestReportJSON(t *testing.T) {
	s := New("tello", "takeoff")
	s.AddPlan(testPlan())
	r := s.Close(OutcomeComplete, FailureNone, nil)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["outcome"] != "complete" || doc["utterance"] != "takeoff" {
		t.Errorf("unexpected document: %s", data)
	}
	if _, ok := doc["failure"]; ok {
		t.Error("empty failure must be omitted")
	}
}
