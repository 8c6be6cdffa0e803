package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/flightpeer/cmd/cpeer-flight-agent/app/options"
	"github.com/autopeer-io/flightpeer/internal/flightagent"
	"github.com/autopeer-io/flightpeer/internal/pkg/tracing"
	"github.com/autopeer-io/flightpeer/pkg/app"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

const (
	commandName = "cpeer-flight-agent"
	envPrefix   = "FLIGHTPEER"
	commandDesc = `The Flightpeer Flight Agent turns natural-language flight instructions into
validated drone commands. Every command passes a safety policy before it
reaches the vehicle, risky ones wait for operator confirmation, and the
vehicle lands on its own when a session fails while airborne.`
)

func NewApp() *app.App {
	opts := options.NewAgentOptions()
	current := &atomic.Pointer[flightagent.Agent]{}
	application := app.NewApp(
		commandName,
		"Launch a Flightpeer flight agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithEnvPrefix(envPrefix),
		app.WithConfigReload(reload(opts, current)),
		app.WithSubCommands(newHistoryCommand()),
		app.WithRunFunc(run(opts, current)),
	)
	return application
}

func run(opts *options.AgentOptions, current *atomic.Pointer[flightagent.Agent]) app.RunFunc {
	return func() error {
		if opts.PrintConfig {
			data, err := opts.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		}

		log.Init(opts.Log)
		defer func() { _ = log.Sync() }()
		otel.SetLogger(log.Std().Logr())

		ctx := genericapiserver.SetupSignalContext()

		shutdownTracing, err := tracing.Setup(ctx, opts.TraceOptions)
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				log.Warn("Failed to flush spans", "error", err)
			}
		}()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent(ctx)
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}
		current.Store(agent)
		defer current.Store(nil)

		return agent.Run(ctx)
	}
}

// reload applies log level and safety threshold changes from the config
// file to the running agent. Every other setting needs a restart.
func reload(opts *options.AgentOptions, current *atomic.Pointer[flightagent.Agent]) app.ReloadFunc {
	return func(v *viper.Viper) {
		if lvl := v.GetString("log.level"); lvl != "" {
			if err := log.SetLevel(lvl); err != nil {
				log.Warn("Ignoring invalid log level", "level", lvl, "error", err)
			}
		}

		agent := current.Load()
		if agent == nil {
			return
		}

		flight := *opts.FlightOptions
		if err := v.UnmarshalKey("flight", &flight); err != nil {
			log.Error(err, "Failed to decode reloaded flight options")
			return
		}
		if errs := flight.Validate(); len(errs) > 0 {
			log.Warn("Ignoring invalid flight options", "errors", errs)
			return
		}
		agent.SetPolicy(flightagent.PolicyFrom(&flight))
	}
}
