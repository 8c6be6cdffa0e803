package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every flight agent collector and is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// SessionsTotal counts finished sessions.
	// outcome: complete/aborted, failure: empty or the failure kind.
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightpeer_sessions_total",
			Help: "Total number of finished execution sessions.",
		},
		[]string{"outcome", "failure"},
	)

	// CommandsTotal counts plan commands by what finally happened to them.
	// result: executed/rejected/declined/failed/skipped
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightpeer_commands_total",
			Help: "Total number of plan commands by action and result.",
		},
		[]string{"action", "result"},
	)

	// SafetyVerdictsTotal counts safety verdicts.
	SafetyVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightpeer_safety_verdicts_total",
			Help: "Total number of safety policy verdicts.",
		},
		[]string{"verdict"},
	)

	// ReasoningLatency observes single reasoning calls.
	ReasoningLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightpeer_reasoning_latency_seconds",
			Help:    "Latency of single calls to the reasoning service.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"result"},
	)

	// ActuationLatency observes single actuator calls.
	ActuationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightpeer_actuation_latency_seconds",
			Help:    "Latency of single actuator calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action", "result"},
	)

	// GatewayRetriesTotal counts retried external calls.
	GatewayRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightpeer_gateway_retries_total",
			Help: "Total number of retried reasoning and actuation calls.",
		},
		[]string{"gateway"},
	)

	// DroneConnected is 1 while the last telemetry reported a live link.
	DroneConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightpeer_drone_connected",
			Help: "Vehicle link status from the last telemetry (1=connected, 0=lost).",
		},
	)

	DroneBattery = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightpeer_drone_battery_percent",
			Help: "Battery percentage from the last telemetry.",
		},
	)

	DroneHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightpeer_drone_height_cm",
			Help: "Height in centimeters from the last telemetry.",
		},
	)

	// SessionActive is 1 while a session runs.
	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightpeer_session_active",
			Help: "Whether an execution session is currently running.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		SessionsTotal,
		CommandsTotal,
		SafetyVerdictsTotal,
		ReasoningLatency,
		ActuationLatency,
		GatewayRetriesTotal,
		DroneConnected,
		DroneBattery,
		DroneHeight,
		SessionActive,
	)
}

// ObserveTelemetry mirrors a telemetry snapshot into the drone gauges.
func ObserveTelemetry(height, battery int, connected bool) {
	DroneHeight.Set(float64(height))
	DroneBattery.Set(float64(battery))
	if connected {
		DroneConnected.Set(1)
	} else {
		DroneConnected.Set(0)
	}
}
