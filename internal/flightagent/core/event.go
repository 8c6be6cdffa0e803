package core

type EventType string

const (
	// Upstream
	EventOnline         EventType = "agent.online"
	EventTelemetry      EventType = "vehicle.telemetry"
	EventConfirmRequest EventType = "confirm.request"
	EventSessionReport  EventType = "session.report"

	// Downstream
	EventIntent          EventType = "flight.intent"
	EventConfirmDecision EventType = "confirm.decision"
	EventStop            EventType = "flight.stop"
)
