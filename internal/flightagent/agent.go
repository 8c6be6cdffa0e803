package flightagent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/flightpeer/internal/flightagent/actuation"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/flightagent/engine"
	"github.com/autopeer-io/flightpeer/internal/flightagent/hub"
	"github.com/autopeer-io/flightpeer/internal/flightagent/safety"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

const shutdownTimeout = 15 * time.Second

// runner is a listener the agent runs alongside the console.
type runner interface {
	Start(ctx context.Context) error
}

type Agent struct {
	vehicleID string

	hal      core.HAL
	actuator *actuation.Gateway
	engine   *engine.Engine
	hub      *hub.Hub
	modules  []core.Module
	servers  []runner
	console  *console

	out     io.Writer
	closers []io.Closer
}

func (a *Agent) VehicleID() string {
	return a.vehicleID
}

// Engine exposes the session engine, mostly for tests.
func (a *Agent) Engine() *engine.Engine {
	return a.engine
}

// SetPolicy swaps the safety thresholds. The running session keeps the
// thresholds it started with.
func (a *Agent) SetPolicy(p safety.Config) {
	a.engine.SetPolicy(p)
	log.Info("Safety policy updated", "policy", p)
}

func (a *Agent) Run(ctx context.Context) error {
	defer a.close()
	log.Info("Starting cpeer-flight-agent", "vehicleID", a.vehicleID)

	if a.hub != nil {
		for _, m := range a.modules {
			if err := m.Setup(ctx, a.hub); err != nil {
				return err
			}

			for event, handler := range m.Routes() {
				if err := a.hub.Register(event, handler); err != nil {
					return fmt.Errorf("module %s register event %s failed: %w", m.Name(), event, err)
				}
			}
		}

		// The broker may have published the last will while the link was down.
		a.hub.OnConnect(func(ctx context.Context) {
			a.announce(ctx, true, "")
		})
		if err := a.hub.Start(ctx); err != nil {
			return err
		}
		defer a.hub.Stop()
		defer a.announce(context.WithoutCancel(ctx), false, "Shutdown")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range a.servers {
		g.Go(func() error {
			return s.Start(gctx)
		})
	}
	if a.console != nil {
		g.Go(func() error {
			defer cancel()
			return a.console.run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	log.Info("Agent shutting down...")
	a.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// shutdown stops the running session and lands the vehicle if it is still
// airborne.
func (a *Agent) shutdown() {
	if a.engine.Stop() {
		log.Info("Stopping running session")
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := wait.PollUntilContextCancel(ctx, 50*time.Millisecond, true, func(context.Context) (bool, error) {
		return !a.engine.Busy(), nil
	})
	if err != nil {
		log.Warn("Session still running at shutdown", "error", err)
	}

	tel, err := a.actuator.Telemetry(ctx)
	if err != nil {
		log.Warn("Telemetry unavailable at shutdown", "error", err)
		return
	}
	if !tel.Airborne(a.engine.Policy().AirborneEpsilon) {
		return
	}
	log.Info("Vehicle airborne at shutdown, landing", "height", tel.Height)
	if err := a.actuator.Land(ctx); err != nil {
		log.Error(err, "Shutdown landing failed")
	}
}

func (a *Agent) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
	if a.hal != nil {
		if err := a.hal.Close(); err != nil {
			log.Warn("Failed to close vehicle link", "error", err)
		}
		a.hal = nil
	}
}

// announce publishes the retained online flag.
func (a *Agent) announce(ctx context.Context, online bool, reason string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := OnlineStatus{
		VehicleID: a.vehicleID,
		Online:    online,
		Reason:    reason,
	}
	if err := a.hub.SendJSON(ctx, core.EventOnline, status); err != nil {
		log.Error(err, "Failed to publish online status", "online", online)
		return
	}
	log.Info("Published online status", "online", online)
}
