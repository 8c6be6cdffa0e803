package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gosuri/uitable"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/session"
)

var _ Reporter = (*Console)(nil)

// Console prints plans and session summaries as tables.
type Console struct {
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// PrintPlan shows a validated plan before it runs.
func (c *Console) PrintPlan(s *session.Session, p command.Plan) {
	fmt.Fprintf(c.out, "\nPlan %d for %q\n", s.Plans(), s.Utterance)
	if r := p.Rationale(); r != "" {
		fmt.Fprintf(c.out, "Rationale: %s\n", r)
	}
	fmt.Fprintln(c.out, PlanTable(p))
	for _, issue := range p.Issues() {
		fmt.Fprintf(c.out, "  issue: %v\n", issue)
	}
}

// PlanTable renders the commands of p.
func PlanTable(p command.Plan) *uitable.Table {
	t := uitable.New()
	t.MaxColWidth = 60
	t.AddRow("#", "ACTION", "DISTANCE", "DIRECTION", "SPEED")
	for i, cmd := range p.Commands() {
		t.AddRow(i+1, cmd.Action(), optional(cmd.Distance()), optional(cmd.Direction()), optional(cmd.Speed()))
	}
	return t
}

func (c *Console) Report(_ context.Context, r *session.Report) error {
	t := uitable.New()
	t.MaxColWidth = 80
	t.Wrap = true
	t.AddRow("Session:", r.ID)
	t.AddRow("Utterance:", r.Utterance)
	outcome := string(r.Outcome)
	if r.Failure != session.FailureNone {
		outcome += " (" + string(r.Failure) + ")"
	}
	t.AddRow("Outcome:", outcome)
	if r.Error != "" {
		t.AddRow("Error:", r.Error)
	}
	t.AddRow("Duration:", r.Duration().Round(10*time.Millisecond))
	t.AddRow("Plans:", fmt.Sprintf("%d (%d follow-up)", len(r.Plans), r.ReplanCycles))
	t.AddRow("Executed:", joinCommands(r.Executed()))
	t.AddRow("Telemetry:", fmt.Sprintf("height %dcm, battery %d%%", r.FinalTelemetry.Height, r.FinalTelemetry.Battery))
	if r.FailSafe.Attempted {
		t.AddRow("Fail-safe:", failSafe(r.FailSafe))
	}
	if _, err := fmt.Fprintf(c.out, "\n%s\n", t); err != nil {
		return err
	}

	if len(r.Events) == 0 {
		return nil
	}
	events := uitable.New()
	events.MaxColWidth = 80
	events.AddRow("EVENT", "COMMAND", "REASON")
	for _, e := range r.Events {
		cmd := "-"
		if e.Command != nil {
			cmd = e.Command.String()
		}
		events.AddRow(e.Kind, cmd, e.Reason)
	}
	_, err := fmt.Fprintf(c.out, "%s\n", events)
	return err
}

func optional(v int, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprint(v)
}

func joinCommands(cmds []command.Command) string {
	if len(cmds) == 0 {
		return "none"
	}
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

func failSafe(f session.FailSafe) string {
	if f.Succeeded {
		return "landed"
	}
	return "landing failed: " + f.Error
}
