package report

import (
	"context"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/flightagent/session"
)

var _ Reporter = (*Uplink)(nil)

// Uplink publishes reports on the session report topic.
type Uplink struct {
	sender core.Sender
}

func NewUplink(sender core.Sender) *Uplink {
	return &Uplink{sender: sender}
}

func (u *Uplink) Report(ctx context.Context, r *session.Report) error {
	return u.sender.SendJSON(ctx, core.EventSessionReport, r)
}
