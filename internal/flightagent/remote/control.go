// Package remote holds the agent modules driven over the MQTT bus: remote
// utterances, confirmation decisions, emergency stop and the telemetry uplink.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/autopeer-io/flightpeer/internal/flightagent/confirm"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/flightagent/session"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

// Executor runs utterances. The engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, utterance string) (*session.Report, error)
	Stop() bool
}

// IntentMessage is the payload of the intent topic.
type IntentMessage struct {
	Utterance string `json:"utterance"`
	RequestID string `json:"requestID,omitempty"`
}

// DecisionMessage is the payload of the confirmation decision topic.
type DecisionMessage struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
}

var _ core.Module = (*Control)(nil)

// Control accepts remote utterances, decisions and stop requests.
type Control struct {
	exec   Executor
	broker *confirm.Broker

	// ctx outlives single messages; sessions started remotely run on it.
	ctx    context.Context
	sender core.Sender
	log    log.Logger
}

func NewControl(exec Executor, broker *confirm.Broker) *Control {
	return &Control{
		exec:   exec,
		broker: broker,
		log:    log.WithName("remote"),
	}
}

func (c *Control) Name() string { return "remote-control" }

func (c *Control) Setup(ctx context.Context, sender core.Sender) error {
	c.ctx = ctx
	c.sender = sender
	c.broker.OnRequest(func(ctx context.Context, req core.ConfirmRequest) {
		if err := sender.SendJSON(ctx, core.EventConfirmRequest, req); err != nil {
			c.log.Error(err, "Failed to publish confirmation request", "id", req.ID)
		}
	})
	return nil
}

func (c *Control) Routes() map[core.EventType]core.HandlerFunc {
	return map[core.EventType]core.HandlerFunc{
		core.EventIntent:          c.handleIntent,
		core.EventConfirmDecision: c.handleDecision,
		core.EventStop:            c.handleStop,
	}
}

func (c *Control) handleIntent(_ context.Context, payload []byte) error {
	var msg IntentMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode intent: %w", err)
	}
	msg.Utterance = strings.TrimSpace(msg.Utterance)
	if msg.Utterance == "" {
		return fmt.Errorf("intent %q has no utterance", msg.RequestID)
	}

	c.log.Info("Remote utterance received", "utterance", msg.Utterance, "requestID", msg.RequestID)
	go func() {
		if _, err := c.exec.Execute(c.ctx, msg.Utterance); err != nil {
			c.log.Warn("Remote utterance not accepted", "requestID", msg.RequestID, "error", err)
		}
	}()
	return nil
}

func (c *Control) handleDecision(_ context.Context, payload []byte) error {
	var msg DecisionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode decision: %w", err)
	}
	if err := c.broker.Resolve(msg.ID, msg.Approved); err != nil {
		if errors.Is(err, confirm.ErrUnknownRequest) {
			c.log.Warn("Decision for unknown request ignored", "id", msg.ID)
			return nil
		}
		return err
	}
	return nil
}

func (c *Control) handleStop(_ context.Context, _ []byte) error {
	if !c.exec.Stop() {
		c.log.Info("Remote stop received with no session running")
	}
	return nil
}
