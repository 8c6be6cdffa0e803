package flightagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/autopeer-io/flightpeer/internal/flightagent/actuation"
	"github.com/autopeer-io/flightpeer/internal/flightagent/confirm"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/flightagent/engine"
	"github.com/autopeer-io/flightpeer/internal/flightagent/hal"
	"github.com/autopeer-io/flightpeer/internal/flightagent/hub"
	"github.com/autopeer-io/flightpeer/internal/flightagent/reasoning"
	"github.com/autopeer-io/flightpeer/internal/flightagent/remote"
	"github.com/autopeer-io/flightpeer/internal/flightagent/report"
	"github.com/autopeer-io/flightpeer/internal/flightagent/safety"
	"github.com/autopeer-io/flightpeer/internal/flightagent/server"
	"github.com/autopeer-io/flightpeer/internal/flightagent/storage"
	"github.com/autopeer-io/flightpeer/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/flightpeer/pkg/log"
	"github.com/autopeer-io/flightpeer/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/flightpeer/pkg/mqtt/topic"
	"github.com/autopeer-io/flightpeer/pkg/options"
)

// OnlineStatus is the retained payload of the online topic.
type OnlineStatus struct {
	VehicleID string `json:"vehicleID"`
	Online    bool   `json:"online"`
	Reason    string `json:"reason,omitempty"`
}

type Config struct {
	FlightOptions   *options.FlightOptions
	ReasonerOptions *options.ReasonerOptions
	DroneOptions    *options.DroneOptions
	MqttOptions     *options.MqttOptions
	HttpOptions     *options.HttpOptions
	GrpcOptions     *options.GrpcOptions
	S3Options       *options.S3Options
	JournalOptions  *options.JournalOptions

	// Interactive runs the console loop on In and Out.
	Interactive bool
	In          io.Reader
	Out         io.Writer
}

// PolicyFrom builds the safety thresholds from flight options.
func PolicyFrom(o *options.FlightOptions) safety.Config {
	return safety.Config{
		MaxHeight:            o.MaxHeight,
		MaxDistance:          o.MaxDistance,
		BatteryThreshold:     o.BatteryThreshold,
		ConfirmRotationAbove: o.ConfirmRotationAbove,
		LowBatteryMargin:     o.LowBatteryMargin,
		ConfirmLandingAbove:  o.ConfirmLandingAbove,
		AirborneEpsilon:      o.AirborneEpsilon,
	}
}

func (cfg *Config) NewAgent(ctx context.Context) (*Agent, error) {
	fo := cfg.FlightOptions

	vehicle, err := hal.NewHAL(ctx, cfg.DroneOptions, fo.DefaultSpeed)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s driver: %w", cfg.DroneOptions.Driver, err)
	}
	vid := vehicle.VehicleID()
	if vid == "" {
		_ = vehicle.Close()
		return nil, errors.New("FATAL: unable to retrieve VehicleID from HAL")
	}

	reasoner, err := cfg.newReasoner()
	if err != nil {
		_ = vehicle.Close()
		return nil, err
	}

	a := &Agent{
		vehicleID: vid,
		hal:       vehicle,
		out:       cfg.Out,
	}
	a.actuator = actuation.NewGateway(vehicle, actuation.GatewayConfig{
		Timeout:      fo.ActuationTimeout,
		DefaultSpeed: fo.DefaultSpeed,
		MaxRetries:   fo.MaxActuationRetries,
		Backoff:      fo.RetryBackoff,
	})

	broker := confirm.NewBroker()
	var (
		confirmer core.Confirmer = broker
		terminal  *confirm.Terminal
	)
	switch {
	case fo.AutoConfirm:
		confirmer = confirm.Auto{}
	case cfg.Interactive:
		terminal = confirm.NewTerminal(cfg.Out)
		confirmer = confirm.Any{terminal, broker}
	}

	console := report.NewConsole(cfg.Out)
	reporters := report.Multi{console}

	if cfg.JournalOptions.Enabled {
		journal, err := report.OpenJournal(cfg.JournalOptions.Path)
		if err != nil {
			_ = vehicle.Close()
			return nil, err
		}
		reporters = append(reporters, journal)
		a.closers = append(a.closers, journal)
	}

	if cfg.S3Options.Enabled {
		store, err := storage.NewMinIOProvider(cfg.S3Options)
		if err != nil {
			a.close()
			return nil, err
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = store.CheckBucket(checkCtx)
		cancel()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("session archive unavailable: %w", err)
		}
		reporters = append(reporters, report.NewArchive(store, "sessions"))
	}

	if cfg.MqttOptions.Enabled {
		client, topics, err := cfg.initMqttClientAndTopicBuilder(vid)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		a.hub = hub.New(vid, client, topics)
		reporters = append(reporters, report.NewUplink(a.hub))
	}

	a.engine = engine.New(
		reasoning.NewGateway(reasoner, reasoning.GatewayConfig{
			Timeout:    fo.ReasoningTimeout,
			MaxRetries: fo.MaxReasoningRetries,
			Backoff:    fo.RetryBackoff,
		}),
		a.actuator,
		confirmer,
		engine.Config{
			VehicleID:           vid,
			Policy:              PolicyFrom(fo),
			ClosedLoop:          fo.ClosedLoop,
			MaxReplanCycles:     fo.MaxReplanCycles,
			DefaultSpeed:        fo.DefaultSpeed,
			ConfirmationTimeout: fo.ConfirmationTimeout,
			RejectAbortsPlan:    fo.RejectAbortsPlan,
		},
		engine.WithReporter(reporters),
		engine.WithPlanHook(console.PrintPlan),
	)

	if a.hub != nil {
		a.modules = append(a.modules,
			remote.NewControl(a.engine, broker),
			remote.NewTelemetry(a.actuator, cfg.MqttOptions.TelemetryInterval),
		)
	}
	if cfg.HttpOptions.Enabled {
		a.servers = append(a.servers, server.NewServer(cfg.HttpOptions, a.engine, broker, a.actuator.Telemetry))
	}
	if cfg.GrpcOptions.Enabled {
		a.servers = append(a.servers, server.NewGrpcServer(cfg.GrpcOptions, a.actuator.Telemetry))
	}
	if cfg.Interactive {
		a.console = newConsole(cfg.In, cfg.Out, terminal, a.engine, a.actuator)
	}

	return a, nil
}

func (cfg *Config) newReasoner() (core.Reasoner, error) {
	ro := cfg.ReasonerOptions
	switch ro.Provider {
	case options.ReasonerScripted:
		if ro.Script == "" {
			log.Info("Using scripted reasoner with keyword fallback only")
			return reasoning.NewScriptedReasoner(), nil
		}
		return reasoning.LoadScript(ro.Script)
	case options.ReasonerOpenAI:
		log.Info("Using OpenAI compatible reasoner", "model", ro.Model, "baseURL", ro.BaseURL)
		return reasoning.NewOpenAIReasoner(reasoning.OpenAIConfig{
			APIKey:         ro.APIKey,
			BaseURL:        ro.BaseURL,
			Model:          ro.Model,
			EnableThinking: ro.EnableThinking,
			ThinkingBudget: ro.ThinkingBudget,
			DefaultSpeed:   cfg.FlightOptions.DefaultSpeed,
		}), nil
	default:
		return nil, fmt.Errorf("unknown reasoner provider %q", ro.Provider)
	}
}

func (cfg *Config) initMqttClientAndTopicBuilder(vid string) (mqtt.Client, *mqtttopic.TopicBuilder, error) {
	topicBuilder := mqtttopic.NewTopicBuilder(cfg.MqttOptions.TopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("cpeer-flight-agent-%s", vid)
	}

	offlinePayload, _ := json.Marshal(OnlineStatus{
		VehicleID: vid,
		Online:    false,
		Reason:    "UnexpectedDisconnect",
	})

	mqttConfig.WillTopic = topicBuilder.Build(paths.Online, vid)
	mqttConfig.WillPayload = offlinePayload
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	mqttClient, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, err
	}

	return mqttClient, topicBuilder, nil
}
