package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/autopeer-io/flightpeer/internal/flightagent/session"
	"github.com/autopeer-io/flightpeer/internal/flightagent/storage"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

var _ Reporter = (*Archive)(nil)

// Archive uploads each report and its final frame to object storage under
// {prefix}/{vehicle}/{session}/.
type Archive struct {
	store  storage.Provider
	prefix string
}

func NewArchive(store storage.Provider, prefix string) *Archive {
	return &Archive{store: store, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key of name for report r.
func (a *Archive) Key(r *session.Report, name string) string {
	vehicle := r.VehicleID
	if vehicle == "" {
		vehicle = "unknown"
	}
	return path.Join(a.prefix, vehicle, r.ID, name)
}

func (a *Archive) Report(ctx context.Context, r *session.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	key := a.Key(r, "report.json")
	if err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return err
	}

	if f := r.FinalFrame; !f.Empty() {
		name := "final" + frameExt(f.MIMEType)
		if err := a.store.Put(ctx, a.Key(r, name), bytes.NewReader(f.Data), int64(len(f.Data)), f.MIMEType); err != nil {
			return err
		}
	}
	log.Debug("Session archived", "session", r.ID, "key", key)
	return nil
}

func frameExt(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}
