package hal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

var _ core.HAL = (*Sim)(nil)

// SimTakeoffHeight is where a simulated takeoff leaves the vehicle, in cm.
const SimTakeoffHeight = 80

// errHang makes the next call block until its context ends.
var errHang = errors.New("hang")

// SimConfig seeds a simulated vehicle.
type SimConfig struct {
	VehicleID string
	Battery   int
	Height    int
	Frames    FrameSource

	// Latency is added to every command.
	Latency time.Duration
}

// Sim is an in-memory vehicle. It applies vertical moves to its height,
// drains one percent of battery per command and can be told to fail.
type Sim struct {
	mu      sync.Mutex
	id      string
	tel     core.Telemetry
	frames  FrameSource
	latency time.Duration
	faults  []error
	calls   []command.Command
}

func NewSim(cfg SimConfig) *Sim {
	if cfg.Frames == nil {
		cfg.Frames = &BlankFrames{Width: 64, Height: 48}
	}
	if cfg.VehicleID == "" {
		cfg.VehicleID = "sim-001"
	}
	return &Sim{
		id:      cfg.VehicleID,
		frames:  cfg.Frames,
		latency: cfg.Latency,
		tel: core.Telemetry{
			Height:    cfg.Height,
			Battery:   cfg.Battery,
			Connected: true,
			Timestamp: time.Now(),
		},
	}
}

func (s *Sim) VehicleID() string {
	return s.id
}

func (s *Sim) Actuate(ctx context.Context, cmd command.Command) (core.Ack, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	var fault error
	if len(s.faults) > 0 {
		fault, s.faults = s.faults[0], s.faults[1:]
	}
	connected := s.tel.Connected
	s.mu.Unlock()

	switch {
	case errors.Is(fault, errHang):
		<-ctx.Done()
		return core.Ack{}, ctx.Err()
	case fault != nil:
		return core.Ack{}, fault
	case !connected:
		return core.Ack{}, errors.New("not connected")
	}

	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return core.Ack{}, ctx.Err()
		case <-time.After(s.latency):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(cmd)
	log.Debug("[HAL-Sim] Command applied", "command", cmd.String(), "height", s.tel.Height, "battery", s.tel.Battery)
	return core.Ack{Reply: "ok", Telemetry: s.tel}, nil
}

func (s *Sim) apply(cmd command.Command) {
	d, _ := cmd.Distance()
	switch cmd.Action() {
	case command.Takeoff:
		s.tel.Height = SimTakeoffHeight
	case command.Land:
		s.tel.Height = 0
	case command.Up:
		s.tel.Height += d
	case command.Down:
		s.tel.Height = max(0, s.tel.Height-d)
	}
	s.tel.Battery = max(0, s.tel.Battery-1)
	s.tel.Timestamp = time.Now()
}

func (s *Sim) QueryTelemetry(ctx context.Context) (core.Telemetry, error) {
	if err := ctx.Err(); err != nil {
		return core.Telemetry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tel
	t.Timestamp = time.Now()
	return t, nil
}

func (s *Sim) Capture(ctx context.Context) (core.Frame, error) {
	return s.frames.Frame(ctx)
}

func (s *Sim) Close() error {
	return nil
}

// FailNext makes the next len(errs) commands fail with errs, in order.
func (s *Sim) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, errs...)
}

// HangNext makes the next n commands block until their deadline.
func (s *Sim) HangNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range n {
		s.faults = append(s.faults, errHang)
	}
}

// SetConnected simulates losing or regaining the link.
func (s *Sim) SetConnected(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tel.Connected = ok
}

// Calls returns every command received, failed ones included.
func (s *Sim) Calls() []command.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]command.Command, len(s.calls))
	copy(out, s.calls)
	return out
}
