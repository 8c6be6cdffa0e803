package confirm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

var (
	_ core.Confirmer = Auto{}
	_ core.Confirmer = (*Terminal)(nil)
	_ core.Confirmer = Any(nil)
)

// Auto approves every request. Meant for bench testing.
type Auto struct{}

func (Auto) Confirm(_ context.Context, req core.ConfirmRequest) (bool, error) {
	log.Warn("Auto-confirming command", "command", req.Command.String(), "reason", req.Reason)
	return true, nil
}

// Terminal asks on an interactive console. The console owns the input and
// hands a line over through Offer while a request waits for its answer.
type Terminal struct {
	out io.Writer

	mu      sync.Mutex
	answers chan string
	closed  chan struct{}
	once    sync.Once
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out, closed: make(chan struct{})}
}

// Offer hands line to the waiting request. It reports false when no
// request waits, in which case the caller keeps the line.
func (t *Terminal) Offer(line string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.answers == nil {
		return false
	}
	select {
	case t.answers <- line:
	default:
		log.Warn("Confirmation answer dropped", "line", line)
	}
	return true
}

// Waiting reports whether a request waits for an answer.
func (t *Terminal) Waiting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.answers != nil
}

// Close ends input. Waiting and later requests fail with io.EOF.
func (t *Terminal) Close() {
	t.once.Do(func() { close(t.closed) })
}

func (t *Terminal) Confirm(ctx context.Context, req core.ConfirmRequest) (bool, error) {
	answers, err := t.await()
	if err != nil {
		return false, err
	}
	defer t.done()

	fmt.Fprintf(t.out, "\nConfirmation required: %s\n  reason: %s\nProceed? [y/N]: ", req.Command, req.Reason)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(t.out)
			return false, ctx.Err()
		case <-t.closed:
			return false, io.EOF
		case line := <-answers:
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			case "", "n", "no":
				return false, nil
			default:
				fmt.Fprint(t.out, "Please answer y or n: ")
			}
		}
	}
}

func (t *Terminal) await() (chan string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.closed:
		return nil, io.EOF
	default:
	}
	if t.answers != nil {
		return nil, errors.New("another confirmation is waiting on the terminal")
	}
	t.answers = make(chan string, 4)
	return t.answers, nil
}

func (t *Terminal) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answers = nil
}

// Any asks every confirmer at once and takes the first answer. The others
// are cancelled.
type Any []core.Confirmer

func (a Any) Confirm(ctx context.Context, req core.ConfirmRequest) (bool, error) {
	if len(a) == 0 {
		return false, errors.New("no confirmer configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type answer struct {
		ok  bool
		err error
	}
	answers := make(chan answer, len(a))
	for _, c := range a {
		go func() {
			ok, err := c.Confirm(ctx, req)
			answers <- answer{ok, err}
		}()
	}

	var errs []error
	for range a {
		ans := <-answers
		if ans.err == nil {
			return ans.ok, nil
		}
		errs = append(errs, ans.err)
	}
	return false, errors.Join(errs...)
}
