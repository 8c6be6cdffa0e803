// Package actuation wraps the vehicle driver behind a bounded-retry gateway
// that keeps at most one command outstanding.
package actuation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/pkg/metrics"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

const tracerName = "flightpeer/actuation"

var errOutstanding = errors.New("another command is outstanding")

// GatewayConfig bounds calls to the driver.
type GatewayConfig struct {
	// Timeout applies to each attempt separately. Moves get the time they
	// need at their speed on top of it.
	Timeout time.Duration

	// DefaultSpeed is the speed in cm/s assumed for moves that set none.
	DefaultSpeed int

	// MaxRetries counts retries after the first attempt.
	MaxRetries int

	// Backoff is the wait before the first retry; it doubles on each retry.
	Backoff time.Duration
}

// Result describes a successful command.
type Result struct {
	Ack      core.Ack
	Attempts int
}

// Gateway serialises access to a HAL.
type Gateway struct {
	hal core.HAL
	cfg GatewayConfig
	log log.Logger

	inFlight atomic.Bool
}

func NewGateway(hal core.HAL, cfg GatewayConfig) *Gateway {
	return &Gateway{
		hal: hal,
		cfg: cfg,
		log: log.WithName("actuation"),
	}
}

// Execute sends cmd and retries timeouts and transport failures until the
// budget is spent. A lost link is returned at once wrapped in
// ErrConnectivityLost and a refusal wrapped in ErrCommandRefused; an
// exhausted budget wraps ErrActuationFailed. attempts is valid on error too.
func (g *Gateway) Execute(ctx context.Context, cmd command.Command) (Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "actuation.Execute", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("command", cmd.String()))

	release, err := g.acquire()
	if err != nil {
		return Result{}, err
	}
	defer release()

	var (
		res     Result
		lastErr error
	)

	err = wait.ExponentialBackoffWithContext(ctx, g.backoff(), func(ctx context.Context) (bool, error) {
		res.Attempts++
		if res.Attempts > 1 {
			metrics.GatewayRetriesTotal.WithLabelValues("actuation").Inc()
		}

		ack, err := g.actuate(ctx, cmd)
		if err == nil {
			res.Ack = ack
			return true, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		var de *DriverError
		if errors.As(err, &de) && !de.Retryable() {
			return false, err
		}
		g.log.Warn("Command attempt failed", "command", cmd.String(), "attempt", res.Attempts, "error", err)
		return false, nil
	})

	span.SetAttributes(attribute.Int("attempts", res.Attempts))
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
		return res, nil
	case ctx.Err() != nil:
		span.SetStatus(codes.Error, "cancelled")
		return res, ctx.Err()
	case errors.Is(lastErr, ErrDriverNotConnected):
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "connectivity lost")
		return res, fmt.Errorf("%w: %w", ErrConnectivityLost, lastErr)
	case errors.Is(lastErr, ErrDriverRefused):
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "refused")
		return res, fmt.Errorf("%w: %s: %w", ErrCommandRefused, cmd, lastErr)
	default:
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "failed")
		return res, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrActuationFailed, cmd, res.Attempts, lastErr)
	}
}

// Land issues a single best-effort landing outside any plan.
func (g *Gateway) Land(ctx context.Context) error {
	release, err := g.acquire()
	if err != nil {
		return err
	}
	defer release()

	_, err = g.actuate(ctx, command.MustNew(command.Land, command.Params{}))
	return err
}

// Capture grabs a frame, retrying like Execute.
func (g *Gateway) Capture(ctx context.Context) (core.Frame, error) {
	var (
		frame   core.Frame
		lastErr error
	)
	err := wait.ExponentialBackoffWithContext(ctx, g.backoff(), func(ctx context.Context) (bool, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		f, err := g.hal.Capture(callCtx)
		if err == nil && !f.Empty() {
			frame = f
			return true, nil
		}
		if err == nil {
			err = errors.New("empty frame")
		}
		lastErr = Normalize("capture", err)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	})
	switch {
	case err == nil:
		return frame, nil
	case ctx.Err() != nil:
		return core.Frame{}, ctx.Err()
	default:
		return core.Frame{}, fmt.Errorf("%w: %w", ErrCaptureFailed, lastErr)
	}
}

// Telemetry reads a snapshot. On failure the snapshot reports the link as
// down and the error wraps ErrConnectivityLost.
func (g *Gateway) Telemetry(ctx context.Context) (core.Telemetry, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	t, err := g.hal.QueryTelemetry(callCtx)
	if err != nil {
		t = core.Telemetry{Connected: false, Timestamp: time.Now()}
		metrics.ObserveTelemetry(t.Height, t.Battery, false)
		return t, fmt.Errorf("%w: %w", ErrConnectivityLost, Normalize("telemetry", err))
	}
	metrics.ObserveTelemetry(t.Height, t.Battery, t.Connected)
	return t, nil
}

// Busy reports whether a command is outstanding.
func (g *Gateway) Busy() bool {
	return g.inFlight.Load()
}

func (g *Gateway) acquire() (func(), error) {
	if !g.inFlight.CompareAndSwap(false, true) {
		return nil, errOutstanding
	}
	return func() { g.inFlight.Store(false) }, nil
}

func (g *Gateway) actuate(ctx context.Context, cmd command.Command) (core.Ack, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.attemptTimeout(cmd))
	defer cancel()

	start := time.Now()
	ack, err := g.hal.Actuate(callCtx, cmd)
	result := "ok"
	if err != nil {
		err = Normalize(string(cmd.Action()), err)
		result = "error"
		if errors.Is(err, ErrDriverTimeout) {
			result = "timeout"
		}
	}
	metrics.ActuationLatency.WithLabelValues(string(cmd.Action()), result).Observe(time.Since(start).Seconds())
	return ack, err
}

// rotationRate is a conservative turn rate in degrees per second.
const rotationRate = 30

// attemptTimeout is the deadline of one attempt. The vehicle replies once a
// move has finished, so the time the move takes is added to the base timeout.
func (g *Gateway) attemptTimeout(cmd command.Command) time.Duration {
	timeout := g.cfg.Timeout
	if d, ok := cmd.Distance(); ok {
		if speed := cmd.SpeedOr(g.cfg.DefaultSpeed); speed > 0 {
			timeout += time.Duration(d) * time.Second / time.Duration(speed)
		}
	}
	if deg, ok := cmd.Direction(); ok {
		timeout += time.Duration(deg) * time.Second / rotationRate
	}
	return timeout
}

func (g *Gateway) backoff() wait.Backoff {
	return wait.Backoff{
		Duration: g.cfg.Backoff,
		Factor:   2,
		Jitter:   0.1,
		Steps:    g.cfg.MaxRetries + 1,
	}
}
