package core

import (
	"context"
	"time"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
)

// Confirmer is the driven port that asks an operator whether a command may run.
// It returns true for confirmed and false for declined.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
}

// ConfirmRequest describes a command waiting for an operator decision.
type ConfirmRequest struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionID"`
	Command   command.Command `json:"command"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"createdAt"`
}
