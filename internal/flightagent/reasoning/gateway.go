// Package reasoning wraps the external vision reasoning service behind a
// bounded-retry gateway.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/pkg/metrics"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

// ErrReasoningUnavailable is returned once the retry budget is spent or the
// service refused the request.
var ErrReasoningUnavailable = errors.New("reasoning unavailable")

const tracerName = "flightpeer/reasoning"

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// GatewayConfig bounds calls to the reasoning service.
type GatewayConfig struct {
	// Timeout applies to each call separately.
	Timeout time.Duration

	// MaxRetries counts retries after the first attempt.
	MaxRetries int

	// Backoff is the wait before the first retry; it doubles on each retry.
	Backoff time.Duration
}

// Gateway calls a Reasoner with a per-call timeout and bounded retries.
// Timeouts and transport errors are retried alike.
type Gateway struct {
	reasoner core.Reasoner
	cfg      GatewayConfig
	log      log.Logger
}

func NewGateway(r core.Reasoner, cfg GatewayConfig) *Gateway {
	return &Gateway{
		reasoner: r,
		cfg:      cfg,
		log:      log.WithName("reasoning"),
	}
}

// Reason returns the raw reply of the first successful call. After the retry
// budget is spent the error wraps ErrReasoningUnavailable and the last cause.
// Cancellation of ctx stops retrying and is returned as is.
func (g *Gateway) Reason(ctx context.Context, req core.ReasonRequest) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "reasoning.Reason", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.Bool("follow_up", req.History != nil),
		attribute.Bool("corrective", req.Correction != ""),
	)

	var (
		reply   string
		lastErr error
		attempt int
	)

	backoff := wait.Backoff{
		Duration: g.cfg.Backoff,
		Factor:   2,
		Jitter:   0.1,
		Steps:    g.cfg.MaxRetries + 1,
	}

	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempt++
		if attempt > 1 {
			metrics.GatewayRetriesTotal.WithLabelValues("reasoning").Inc()
		}

		out, err := g.call(ctx, req)
		if err == nil {
			reply = out
			return true, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if IsPermanent(err) {
			return false, err
		}
		g.log.Warn("Reasoning call failed", "attempt", attempt, "error", err)
		return false, nil
	})

	span.SetAttributes(attribute.Int("attempts", attempt))
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
		return reply, nil
	case ctx.Err() != nil:
		span.SetStatus(codes.Error, "cancelled")
		return "", ctx.Err()
	default:
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "unavailable")
		return "", fmt.Errorf("%w after %d attempt(s): %w", ErrReasoningUnavailable, attempt, lastErr)
	}
}

func (g *Gateway) call(ctx context.Context, req core.ReasonRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	reply, err := g.reasoner.Reason(callCtx, req)
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result = "timeout"
		err = fmt.Errorf("reasoning call timed out after %s: %w", g.cfg.Timeout, err)
	default:
		result = "error"
	}
	metrics.ReasoningLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())

	return reply, err
}
