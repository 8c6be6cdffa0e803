package reasoning

import (
	"fmt"
	"strings"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
)

var actionHelp = map[command.Action]string{
	command.Takeoff:   "take off from the ground, no parameters",
	command.Land:      "land, no parameters",
	command.Up:        "climb, distance in cm",
	command.Down:      "descend, distance in cm",
	command.Forward:   "move forward, distance in cm",
	command.Back:      "move backward, distance in cm",
	command.Left:      "move left, distance in cm",
	command.Right:     "move right, distance in cm",
	command.RotateCW:  "turn clockwise, direction in degrees",
	command.RotateCCW: "turn counter-clockwise, direction in degrees",
}

// SystemPrompt describes the action catalogue, the hardware limits and the
// reply format to the reasoning service.
func SystemPrompt(defaultSpeed int) string {
	var b strings.Builder
	b.WriteString("You control a small quadcopter with a forward-facing camera. ")
	b.WriteString("Look at the image, read the operator's command and answer with the flight commands that carry it out.\n\n")

	b.WriteString("Actions:\n")
	for _, a := range command.Actions {
		fmt.Fprintf(&b, "- %s: %s\n", a, actionHelp[a])
	}

	b.WriteString("\nHardware limits:\n")
	fmt.Fprintf(&b, "- distance %d to %d cm per command\n", command.HardDistanceFloor, command.DistanceEnvelope.Max)
	fmt.Fprintf(&b, "- speed %d to %d cm/s, %d cm/s when omitted\n",
		command.SpeedEnvelope.Min, command.SpeedEnvelope.Max, defaultSpeed)
	fmt.Fprintf(&b, "- rotation %d to %d degrees per command\n", command.DirectionRange.Min, command.DirectionRange.Max)

	b.WriteString("\nRules:\n")
	b.WriteString("- prefer several small moves over one large move\n")
	b.WriteString("- keep clear of obstacles visible in the image\n")
	b.WriteString("- on a follow-up call, plan only what is still missing; set goal_reached to true and return no commands once the goal is visibly met\n")

	b.WriteString("\nReply with one JSON object and nothing else:\n")
	b.WriteString(`{"commands": [{"action": "takeoff"}, {"action": "up", "distance": 50, "speed": 30}], "rationale": "one sentence", "goal_reached": false}`)
	b.WriteString("\n")
	return b.String()
}

// UserPrompt renders the text part of a request.
func UserPrompt(req core.ReasonRequest) string {
	var context []string
	if req.History != nil {
		context = append(context, req.History.String())
	}
	if req.Correction != "" {
		context = append(context,
			fmt.Sprintf("Your previous reply could not be used: %s. Reply again with only the JSON object in the required format.", req.Correction))
	}
	if len(context) == 0 {
		return req.Instruction
	}
	return fmt.Sprintf("Context: %s\n\nCommand: %s", strings.Join(context, " "), req.Instruction)
}
