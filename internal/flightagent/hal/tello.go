package hal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/pkg/log"
)

var _ core.HAL = (*Tello)(nil)

const (
	telloReplyOK     = "ok"
	telloDefaultWait = 10 * time.Second
	telloMaxReply    = 1518

	// telloLateGrace is how long a new request waits for the reply to an
	// earlier one that timed out before dropping it.
	telloLateGrace = 500 * time.Millisecond
)

// TelloConfig addresses a vehicle speaking the Tello SDK text protocol over UDP.
type TelloConfig struct {
	VehicleID string
	Host      string
	Port      int

	// LocalPort is the UDP port replies arrive on. Zero picks one.
	LocalPort int

	Frames       FrameSource
	DefaultSpeed int
}

// Tello drives a vehicle through the SDK text protocol. Every request waits
// for its reply before the next one is written. The protocol carries no
// request ids and a move is answered only once it has finished, so a request
// that timed out is remembered: a retry of the same move waits for its reply
// instead of flying the move twice, and any other request first drops it.
type Tello struct {
	cfg    TelloConfig
	mu     sync.Mutex
	conn   *net.UDPConn
	remote *net.UDPAddr
	speed  int

	// late is the request still owed a reply.
	late string
}

// DialTello opens the UDP link and enters SDK mode.
func DialTello(ctx context.Context, cfg TelloConfig) (*Tello, error) {
	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Host, err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.LocalPort})
	if err != nil {
		return nil, fmt.Errorf("listen on udp port %d: %w", cfg.LocalPort, err)
	}
	if cfg.Frames == nil {
		cfg.Frames = NewFrameSource("")
	}
	if cfg.VehicleID == "" {
		cfg.VehicleID = "tello-" + cfg.Host
	}

	t := &Tello{cfg: cfg, conn: conn, remote: remote}
	if err := t.expectOK(ctx, "command"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enter sdk mode: %w", err)
	}
	log.Info("Tello link established", "remote", remote.String())
	return t, nil
}

func (t *Tello) VehicleID() string {
	return t.cfg.VehicleID
}

func (t *Tello) Actuate(ctx context.Context, cmd command.Command) (core.Ack, error) {
	if cmd.Action().Translational() {
		speed := cmd.SpeedOr(t.cfg.DefaultSpeed)
		if speed > 0 && speed != t.speed {
			if err := t.expectOK(ctx, fmt.Sprintf("speed %d", speed)); err != nil {
				return core.Ack{}, err
			}
			t.speed = speed
		}
	}

	line := SDKCommand(cmd)
	reply, err := t.request(ctx, line)
	if err != nil {
		return core.Ack{}, err
	}
	if reply != telloReplyOK {
		return core.Ack{}, fmt.Errorf("tello %q: %s", line, reply)
	}

	tel, err := t.QueryTelemetry(ctx)
	if err != nil {
		log.Warn("Telemetry after command unavailable", "command", line, "error", err)
	}
	return core.Ack{Reply: reply, Telemetry: tel}, nil
}

func (t *Tello) QueryTelemetry(ctx context.Context) (core.Telemetry, error) {
	battery, err := t.queryInt(ctx, "battery?")
	if err != nil {
		return core.Telemetry{}, err
	}
	dm, err := t.queryInt(ctx, "height?")
	if err != nil {
		return core.Telemetry{}, err
	}
	return core.Telemetry{
		Height:    dm * 10,
		Battery:   battery,
		Connected: true,
		Timestamp: time.Now(),
	}, nil
}

func (t *Tello) Capture(ctx context.Context) (core.Frame, error) {
	return t.cfg.Frames.Frame(ctx)
}

func (t *Tello) Close() error {
	return t.conn.Close()
}

// SDKCommand renders cmd in the SDK text protocol.
func SDKCommand(cmd command.Command) string {
	switch a := cmd.Action(); {
	case a.Translational():
		d, _ := cmd.Distance()
		return fmt.Sprintf("%s %d", a, d)
	case a == command.RotateCW:
		deg, _ := cmd.Direction()
		return fmt.Sprintf("cw %d", deg)
	case a == command.RotateCCW:
		deg, _ := cmd.Direction()
		return fmt.Sprintf("ccw %d", deg)
	default:
		return string(a)
	}
}

func (t *Tello) expectOK(ctx context.Context, line string) error {
	reply, err := t.request(ctx, line)
	if err != nil {
		return err
	}
	if reply != telloReplyOK {
		return fmt.Errorf("tello %q: %s", line, reply)
	}
	return nil
}

// queryInt reads a numeric reply such as "87" or "12dm".
func (t *Tello) queryInt(ctx context.Context, line string) (int, error) {
	reply, err := t.request(ctx, line)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimRight(reply, "abcdefghijklmnopqrstuvwxyz"))
	if err != nil {
		return 0, fmt.Errorf("tello %q: unexpected reply %q", line, reply)
	}
	return n, nil
}

func (t *Tello) request(ctx context.Context, line string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if late := t.late; late != "" {
		t.late = ""
		if late == line && !query(line) {
			log.Info("Waiting for the reply to an earlier attempt", "command", line)
			return t.receive(ctx, line)
		}
		t.settle(ctx)
	}
	t.drain()

	if _, err := t.conn.WriteToUDP([]byte(line), t.remote); err != nil {
		return "", err
	}
	return t.receive(ctx, line)
}

// receive reads the reply to line. When none arrives in time, line is
// remembered as owed a reply.
func (t *Tello) receive(ctx context.Context, line string) (string, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(telloDefaultWait)
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, telloMaxReply)
	n, _, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			t.late = line
			if errors.Is(ctx.Err(), context.Canceled) {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("tello %q: no reply: %w", line, context.DeadlineExceeded)
		}
		return "", err
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

// settle waits a short while for an owed reply and drops it.
func (t *Tello) settle(ctx context.Context) {
	deadline := time.Now().Add(telloLateGrace)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return
	}
	buf := make([]byte, telloMaxReply)
	if n, _, err := t.conn.ReadFromUDP(buf); err == nil {
		log.Debug("Dropped late reply", "reply", strings.TrimSpace(string(buf[:n])))
	}
}

func query(line string) bool {
	return strings.HasSuffix(line, "?")
}

// drain drops late replies to earlier requests.
func (t *Tello) drain() {
	_ = t.conn.SetReadDeadline(time.Now())
	buf := make([]byte, telloMaxReply)
	for {
		if _, _, err := t.conn.ReadFromUDP(buf); err != nil {
			return
		}
	}
}
