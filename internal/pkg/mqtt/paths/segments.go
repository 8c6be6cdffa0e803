package paths

// Topic segments of the flight protocol between an operator station and a vehicle agent.

// Downstream: operator -> vehicle
const (
	// Intent carries a natural-language utterance to execute.
	// Payload: { "utterance": "fly up a bit", "requestID": "..." }
	// Pattern: {root}/intent/{vehicleID}
	Intent = "intent"

	// ConfirmDecision answers a pending confirmation request.
	// Payload: { "id": "...", "approved": true }
	// Pattern: {root}/confirm/decision/{vehicleID}
	ConfirmDecision = "confirm/decision"

	// Stop is the emergency stop. Any payload triggers it.
	// Pattern: {root}/stop/{vehicleID}
	Stop = "stop"
)

// Upstream: vehicle -> operator
const (
	// Online is the retained online flag, cleared by the last will.
	// Payload: { "vehicleID": "...", "online": true/false, "reason": "..." }
	// Pattern: {root}/online/{vehicleID}
	Online = "online"

	// Telemetry is the periodic telemetry snapshot.
	// Pattern: {root}/telemetry/{vehicleID}
	Telemetry = "telemetry"

	// ConfirmRequest announces a command awaiting a decision.
	// Pattern: {root}/confirm/request/{vehicleID}
	ConfirmRequest = "confirm/request"

	// SessionReport carries the full history of a finished session.
	// Pattern: {root}/session/report/{vehicleID}
	SessionReport = "session/report"
)
