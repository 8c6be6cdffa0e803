// Package confirm provides the collaborators that answer confirmation
// requests: an asynchronous broker for remote operators, an interactive
// terminal prompt and an automatic approver.
package confirm

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

// ErrUnknownRequest is returned when resolving a request that is not pending.
var ErrUnknownRequest = errors.New("no such pending confirmation")

var _ core.Confirmer = (*Broker)(nil)

// NotifyFunc announces a new pending request.
type NotifyFunc func(ctx context.Context, req core.ConfirmRequest)

// Broker parks confirmation requests until an external decision resolves
// them. Decisions arrive through Resolve, from any goroutine.
type Broker struct {
	lock    sync.Mutex
	pending map[string]*pendingRequest
	notify  []NotifyFunc
}

type pendingRequest struct {
	req      core.ConfirmRequest
	decision chan bool
}

func NewBroker() *Broker {
	return &Broker{pending: make(map[string]*pendingRequest)}
}

// OnRequest registers fn to be called for every new request.
func (b *Broker) OnRequest(fn NotifyFunc) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.notify = append(b.notify, fn)
}

// Confirm blocks until the request is resolved or ctx ends.
func (b *Broker) Confirm(ctx context.Context, req core.ConfirmRequest) (bool, error) {
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	p := &pendingRequest{req: req, decision: make(chan bool, 1)}

	b.lock.Lock()
	b.pending[req.ID] = p
	notify := slices.Clone(b.notify)
	b.lock.Unlock()

	defer func() {
		b.lock.Lock()
		delete(b.pending, req.ID)
		b.lock.Unlock()
	}()

	for _, fn := range notify {
		fn(ctx, req)
	}
	log.Info("Awaiting confirmation", "id", req.ID, "command", req.Command.String(), "reason", req.Reason)

	select {
	case ok := <-p.decision:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve delivers a decision for a pending request.
func (b *Broker) Resolve(id string, confirmed bool) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	p, ok := b.pending[id]
	if !ok {
		return ErrUnknownRequest
	}
	delete(b.pending, id)
	p.decision <- confirmed
	return nil
}

// Pending lists the requests awaiting a decision, oldest first.
func (b *Broker) Pending() []core.ConfirmRequest {
	b.lock.Lock()
	defer b.lock.Unlock()

	out := make([]core.ConfirmRequest, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.req)
	}
	slices.SortFunc(out, func(a, b core.ConfirmRequest) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}
