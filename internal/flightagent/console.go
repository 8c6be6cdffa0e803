package flightagent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/autopeer-io/flightpeer/internal/flightagent/confirm"
	"github.com/autopeer-io/flightpeer/internal/flightagent/engine"
	"github.com/autopeer-io/flightpeer/internal/flightagent/remote"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

const (
	consolePrompt = "flightpeer> "
	consoleHelp   = `Type a flight instruction in plain language, e.g. "take off and go up 50 cm".
Commands:
  status   show vehicle telemetry
  help     show this help
  quit     leave the console, landing first if airborne
`
)

// console is the interactive prompt and the only reader of its input.
// While the terminal confirmer waits for an answer, lines go to it; every
// other line is a console command or an utterance. Sessions run in the
// background so the prompt keeps reading while one is in flight.
type console struct {
	in      io.Reader
	out     io.Writer
	answers *confirm.Terminal

	engine  *engine.Engine
	vehicle remote.TelemetrySource

	sessions sync.WaitGroup
}

func newConsole(in io.Reader, out io.Writer, answers *confirm.Terminal, e *engine.Engine, vehicle remote.TelemetrySource) *console {
	return &console{in: in, out: out, answers: answers, engine: e, vehicle: vehicle}
}

// run serves the prompt until quit, end of input or ctx is done. It returns
// once the session it started has finished.
func (c *console) run(ctx context.Context) error {
	lines := make(chan string)
	go c.read(ctx, lines)
	defer c.wait()

	fmt.Fprint(c.out, consoleHelp)
	for {
		if c.answers == nil || !c.answers.Waiting() {
			fmt.Fprint(c.out, consolePrompt)
		}

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				if c.answers != nil {
					c.answers.Close()
				}
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if c.answers != nil && c.answers.Offer(line) {
			continue
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			fmt.Fprint(c.out, consoleHelp)
			continue
		case "status":
			c.status(ctx)
			continue
		}

		if c.engine.Busy() {
			fmt.Fprintln(c.out, "A session is already running; wait for it to finish.")
			continue
		}
		c.start(ctx, line)
	}
}

func (c *console) start(ctx context.Context, line string) {
	c.sessions.Add(1)
	go func() {
		defer c.sessions.Done()
		_, err := c.engine.Execute(ctx, line)
		switch {
		case errors.Is(err, engine.ErrBusy):
			fmt.Fprintln(c.out, "A session is already running; wait for it to finish.")
		case err != nil:
			log.Error(err, "Session failed", "utterance", line)
		}
	}()
}

func (c *console) wait() {
	if c.engine.Busy() {
		fmt.Fprintln(c.out, "Waiting for the running session to finish...")
	}
	c.sessions.Wait()
}

func (c *console) status(ctx context.Context) {
	tel, err := c.vehicle.Telemetry(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Telemetry unavailable: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Height %d cm, battery %d%%, connected %t, busy %t\n",
		tel.Height, tel.Battery, tel.Connected, c.engine.Busy())
}

func (c *console) read(ctx context.Context, lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("Console input closed", "error", err)
	}
}
