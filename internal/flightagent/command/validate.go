package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// planSchema is the structural contract of a reasoning reply. Numeric fields
// may arrive as numeric-looking text and are coerced afterwards.
const planSchema = `{
  "type": "object",
  "required": ["commands"],
  "properties": {
    "commands": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["action"],
        "properties": {
          "action":    {"type": "string", "minLength": 1},
          "distance":  {"type": ["number", "string", "null"]},
          "speed":     {"type": ["number", "string", "null"]},
          "direction": {"type": ["number", "string", "null"]}
        }
      }
    },
    "rationale":    {"type": "string"},
    "goal_reached": {"type": "boolean"}
  }
}`

var compiledPlanSchema = jsonschema.MustCompileString("https://flightpeer.autopeer.io/schemas/plan.json", planSchema)

// Options tunes normalisation. It never relaxes the envelope.
type Options struct {
	// DefaultSpeed fills in the speed of moves that do not set one. Zero leaves it unset.
	DefaultSpeed int
}

// Parse extracts the JSON payload of a raw reasoning reply and validates it.
// Prose around the payload becomes part of the rationale.
func Parse(reply string, opts Options) (Plan, error) {
	payload, prose := Extract(reply)
	if payload == "" {
		return Plan{}, &SchemaError{Field: "$", Constraint: "reply must contain a JSON object"}
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Plan{}, &SchemaError{Field: "$", Constraint: "valid JSON", Err: err}
	}

	plan, err := Validate(doc, opts)
	switch {
	case plan.rationale == "":
		plan.rationale = prose
	case prose != "":
		plan.rationale = prose + "\n" + plan.rationale
	}
	return plan, err
}

// Validate turns a decoded JSON document into a Plan. It is pure.
//
// A structurally invalid document yields a *SchemaError. An empty command
// list yields a *SchemaError wrapping ErrNoOpPlan. Commands with an unknown
// action or an out-of-range value are dropped and recorded in Plan.Issues,
// except a distance above the hardware ceiling, which is recorded but kept
// for the safety policy to clamp. If nothing usable remains, the plan comes
// back together with a *SchemaError on "commands".
func Validate(doc any, opts Options) (Plan, error) {
	if err := compiledPlanSchema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return Plan{}, schemaErrorFrom(ve)
		}
		return Plan{}, &SchemaError{Field: "$", Constraint: "JSON document", Err: err}
	}

	root := doc.(map[string]any)
	items := root["commands"].([]any)

	var plan Plan
	if r, ok := root["rationale"].(string); ok {
		plan.rationale = strings.TrimSpace(r)
	}
	if g, ok := root["goal_reached"].(bool); ok {
		plan.goalReached = g
	}

	if len(items) == 0 {
		return plan, &SchemaError{Field: "commands", Constraint: "must be a non-empty sequence", Err: ErrNoOpPlan}
	}

	for i, item := range items {
		cmd, issue, err := validateItem(i, item.(map[string]any), opts)
		if err != nil {
			return Plan{}, err
		}
		if issue != nil {
			plan.issues = append(plan.issues, issue)
		}
		if cmd != nil {
			plan.commands = append(plan.commands, *cmd)
		}
	}

	if len(plan.commands) == 0 {
		return plan, &SchemaError{
			Field:      "commands",
			Constraint: "must contain at least one valid command",
			Err:        errors.Join(plan.issues...),
		}
	}
	return plan, nil
}

// validateItem returns the command to keep (nil if dropped), the issue to
// report (nil if clean) or a structural error.
func validateItem(i int, item map[string]any, opts Options) (cmd *Command, issue error, err error) {
	name := item["action"].(string)
	action, ok := ParseAction(name)
	if !ok {
		return nil, &UnknownActionError{Index: i, Name: name}, nil
	}

	var p Params
	if action.Translational() {
		if p.Distance, err = numberField(i, item, "distance", true, action); err != nil {
			return nil, nil, err
		}
		if p.Speed, err = numberField(i, item, "speed", false, action); err != nil {
			return nil, nil, err
		}
		if p.Speed == nil && opts.DefaultSpeed > 0 {
			p.Speed = &opts.DefaultSpeed
		}
	}
	if action.Rotational() {
		if p.Direction, err = numberField(i, item, "direction", true, action); err != nil {
			return nil, nil, err
		}
	}

	c, err := New(action, p)
	if err != nil {
		var oor *OutOfRangeError
		if errors.As(err, &oor) {
			oor.Index = i
			return nil, oor, nil
		}
		var se *SchemaError
		if errors.As(err, &se) {
			se.Field = fmt.Sprintf("commands[%d].%s", i, se.Field)
		}
		return nil, nil, err
	}

	if d, ok := c.Distance(); ok && !DistanceEnvelope.Contains(d) {
		return &c, &OutOfRangeError{Index: i, Field: "distance", Value: float64(d), Range: DistanceEnvelope}, nil
	}
	return &c, nil, nil
}

// numberField coerces item[field] to an integer. Absent and null are the same.
func numberField(i int, item map[string]any, field string, required bool, action Action) (*int, error) {
	path := fmt.Sprintf("commands[%d].%s", i, field)

	raw, present := item[field]
	if !present || raw == nil {
		if required {
			return nil, &SchemaError{Field: path, Constraint: fmt.Sprintf("required for %s", action)}
		}
		return nil, nil
	}

	var f float64
	var err error
	switch v := raw.(type) {
	case json.Number:
		f, err = v.Float64()
	case float64:
		f = v
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		err = fmt.Errorf("unexpected %T", raw)
	}
	if err != nil {
		return nil, &SchemaError{Field: path, Constraint: "must be a number", Err: err}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &SchemaError{Field: path, Constraint: "must be finite"}
	}

	f = math.Round(f)
	n := int(math.Max(math.Min(f, math.MaxInt32), math.MinInt32))
	return &n, nil
}

// schemaErrorFrom reports the innermost cause of a jsonschema failure.
func schemaErrorFrom(ve *jsonschema.ValidationError) *SchemaError {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	loc := leaf.InstanceLocation
	if strings.HasSuffix(leaf.KeywordLocation, "/required") {
		if name, ok := firstQuoted(leaf.Message); ok {
			loc += "/" + name
		}
	}

	return &SchemaError{Field: fieldPath(loc), Constraint: leaf.Message, Err: ve}
}

// fieldPath turns a JSON pointer such as /commands/0/action into commands[0].action.
func fieldPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return "$"
	}

	var b strings.Builder
	for _, seg := range strings.Split(pointer, "/") {
		seg = strings.NewReplacer("~1", "/", "~0", "~").Replace(seg)
		if _, err := strconv.Atoi(seg); err == nil {
			fmt.Fprintf(&b, "[%s]", seg)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func firstQuoted(s string) (string, bool) {
	start := strings.IndexByte(s, '\'')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(s[start+1:], '\'')
	if end < 0 {
		return "", false
	}
	return s[start+1 : start+1+end], true
}
