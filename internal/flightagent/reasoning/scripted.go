package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
)

var _ core.Reasoner = (*ScriptedReasoner)(nil)

// Step is one canned answer of a ScriptedReasoner.
type Step struct {
	// Match, when set, must be a case-insensitive substring of the instruction.
	Match string `yaml:"match"`

	// Reply is returned verbatim.
	Reply string `yaml:"reply"`

	// Error, when set, is returned instead of Reply.
	Error string `yaml:"error"`

	// Permanent makes Error non-retryable.
	Permanent bool `yaml:"permanent"`

	// Delay is waited before answering, honoring cancellation.
	Delay time.Duration `yaml:"delay"`
}

// Script is the YAML document read by LoadScript.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// ScriptedReasoner answers from a queue of steps and falls back to keyword
// matching once the queue is empty or the next step does not match. It
// records every request it receives.
type ScriptedReasoner struct {
	mu       sync.Mutex
	steps    []Step
	requests []core.ReasonRequest
}

func NewScriptedReasoner(steps ...Step) *ScriptedReasoner {
	return &ScriptedReasoner{steps: steps}
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (*ScriptedReasoner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	return NewScriptedReasoner(s.Steps...), nil
}

func (r *ScriptedReasoner) Reason(ctx context.Context, req core.ReasonRequest) (string, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	step, ok := r.next(req.Instruction)
	r.mu.Unlock()

	if !ok {
		return fallbackReply(req), nil
	}

	if step.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(step.Delay):
		}
	}
	if step.Error != "" {
		err := errors.New(step.Error)
		if step.Permanent {
			return "", Permanent(err)
		}
		return "", err
	}
	return step.Reply, nil
}

// Requests returns the requests received so far.
func (r *ScriptedReasoner) Requests() []core.ReasonRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.ReasonRequest, len(r.requests))
	copy(out, r.requests)
	return out
}

func (r *ScriptedReasoner) next(instruction string) (Step, bool) {
	if len(r.steps) == 0 {
		return Step{}, false
	}
	s := r.steps[0]
	if s.Match != "" && !strings.Contains(strings.ToLower(instruction), strings.ToLower(s.Match)) {
		return Step{}, false
	}
	r.steps = r.steps[1:]
	return s, true
}

type fallbackCommand struct {
	Action   string `json:"action"`
	Distance int    `json:"distance,omitempty"`
	Speed    int    `json:"speed,omitempty"`
}

type fallbackPlan struct {
	Commands    []fallbackCommand `json:"commands"`
	Rationale   string            `json:"rationale"`
	GoalReached bool              `json:"goal_reached,omitempty"`
}

// fallbackReply answers by keyword. Follow-up calls report the goal as reached
// so a closed loop ends after one cycle.
func fallbackReply(req core.ReasonRequest) string {
	p := fallbackPlan{
		Commands:  []fallbackCommand{},
		Rationale: "Mock reasoning for: " + req.Instruction,
	}

	lower := strings.ToLower(req.Instruction)
	switch {
	case req.History != nil:
		p.GoalReached = true
	case strings.Contains(req.Instruction, "起飞") || strings.Contains(lower, "takeoff") || strings.Contains(lower, "take off"):
		p.Commands = append(p.Commands, fallbackCommand{Action: "takeoff"})
	case strings.Contains(req.Instruction, "降落") || strings.Contains(lower, "land"):
		p.Commands = append(p.Commands, fallbackCommand{Action: "land"})
	default:
		p.Commands = append(p.Commands,
			fallbackCommand{Action: "takeoff"},
			fallbackCommand{Action: "up", Distance: 50, Speed: 30},
		)
	}

	data, _ := json.Marshal(p)
	return string(data)
}
