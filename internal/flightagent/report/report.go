// Package report delivers the history of finished sessions: to the terminal,
// a local sqlite journal, an object store archive and the MQTT uplink.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/flightpeer/internal/flightagent/session"
)

// Reporter receives the report of every closed session.
type Reporter interface {
	Report(ctx context.Context, r *session.Report) error
}

// Multi hands a report to every reporter and joins their errors. A failing
// reporter does not stop the others.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, r *session.Report) error {
	var errs []error
	for _, rep := range m {
		if err := rep.Report(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", rep, err))
		}
	}
	return errors.Join(errs...)
}
