package command

import (
	"encoding/json"
	"errors"
	"slices"
)

// Plan is the ordered command sequence produced by one reasoning call. It is
// immutable; a replan produces a new Plan.
type Plan struct {
	commands    []Command
	rationale   string
	goalReached bool
	issues      []error
}

// NewPlan returns a plan over a copy of cmds.
func NewPlan(cmds []Command, rationale string) Plan {
	return Plan{commands: slices.Clone(cmds), rationale: rationale}
}

// Commands returns a copy of the commands in execution order.
func (p Plan) Commands() []Command {
	return slices.Clone(p.commands)
}

func (p Plan) Len() int {
	return len(p.commands)
}

func (p Plan) At(i int) Command {
	return p.commands[i]
}

// Rationale is the free text that accompanied the plan.
func (p Plan) Rationale() string {
	return p.rationale
}

// GoalReached reports whether the reasoning service declared the goal met.
func (p Plan) GoalReached() bool {
	return p.goalReached
}

// Issues lists the per-command problems found while validating: unknown
// actions and out-of-range values, in plan order.
func (p Plan) Issues() []error {
	return slices.Clone(p.issues)
}

type wirePlan struct {
	Commands    []Command `json:"commands"`
	Rationale   string    `json:"rationale,omitempty"`
	GoalReached bool      `json:"goal_reached,omitempty"`
	Issues      []string  `json:"issues,omitempty"`
}

func (p Plan) MarshalJSON() ([]byte, error) {
	w := wirePlan{
		Commands:    p.commands,
		Rationale:   p.rationale,
		GoalReached: p.goalReached,
	}
	if w.Commands == nil {
		w.Commands = []Command{}
	}
	for _, issue := range p.issues {
		w.Issues = append(w.Issues, issue.Error())
	}
	return json.Marshal(w)
}

func (p *Plan) UnmarshalJSON(data []byte) error {
	var w wirePlan
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Plan{commands: w.Commands, rationale: w.Rationale, goalReached: w.GoalReached}
	for _, issue := range w.Issues {
		p.issues = append(p.issues, errors.New(issue))
	}
	return nil
}
