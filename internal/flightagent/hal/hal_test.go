package hal

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"k8s.io/utils/ptr"

	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/pkg/options"
)

func TestSDKCommand(t *testing.T) {
	tests := []struct {
		cmd  command.Command
		want string
	}{
		{command.MustNew(command.Takeoff, command.Params{}), "takeoff"},
		{command.MustNew(command.Land, command.Params{}), "land"},
		{command.MustNew(command.Up, command.Params{Distance: ptr.To(50)}), "up 50"},
		{command.MustNew(command.Back, command.Params{Distance: ptr.To(120), Speed: ptr.To(40)}), "back 120"},
		{command.MustNew(command.RotateCW, command.Params{Direction: ptr.To(90)}), "cw 90"},
		{command.MustNew(command.RotateCCW, command.Params{Direction: ptr.To(45)}), "ccw 45"},
	}
	for _, tt := range tests {
		if got := SDKCommand(tt.cmd); got != tt.want {
			t.Errorf("SDKCommand(%s) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

// fakeTello answers SDK requests on a local UDP socket.
type fakeTello struct {
	conn *net.UDPConn

	mu       sync.Mutex
	received []string
	replies  map[string]string
	delays   map[string]time.Duration
}

func newFakeTello(t *testing.T) *fakeTello {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeTello{conn: conn, delays: map[string]time.Duration{}, replies: map[string]string{
		"battery?": "87",
		"height?":  "5dm",
	}}
	t.Cleanup(func() { _ = conn.Close() })
	go f.serve()
	return f
}

func (f *fakeTello) serve() {
	buf := make([]byte, 1024)
	for {
		n, addr, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		line := string(buf[:n])
		f.mu.Lock()
		f.received = append(f.received, line)
		reply, ok := f.replies[line]
		delay := f.delays[line]
		f.mu.Unlock()
		if !ok {
			reply = "ok"
		}
		if reply == "" {
			continue
		}
		if delay > 0 {
			// The vehicle answers a move once it has flown it.
			go func() {
				time.Sleep(delay)
				_, _ = f.conn.WriteToUDP([]byte(reply), addr)
			}()
			continue
		}
		_, _ = f.conn.WriteToUDP([]byte(reply), addr)
	}
}

func (f *fakeTello) delay(line string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[line] = d
}

func (f *fakeTello) count(line string) int {
	n := 0
	for _, l := range f.lines() {
		if l == line {
			n++
		}
	}
	return n
}

func (f *fakeTello) set(line, reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[line] = reply
}

func (f *fakeTello) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeTello) port() int {
	return f.conn.LocalAddr().(*net.UDPAddr).Port
}

func dialFake(t *testing.T, f *fakeTello) *Tello {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := DialTello(ctx, TelloConfig{Host: "127.0.0.1", Port: f.port(), DefaultSpeed: 30})
	if err != nil {
		t.Fatalf("DialTello() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestTelloActuate(t *testing.T) {
	f := newFakeTello(t)
	d := dialFake(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ack, err := d.Actuate(ctx, command.MustNew(command.Up, command.Params{Distance: ptr.To(50)}))
	if err != nil {
		t.Fatalf("Actuate() error = %v", err)
	}
	if ack.Telemetry.Height != 50 || ack.Telemetry.Battery != 87 || !ack.Telemetry.Connected {
		t.Errorf("telemetry = %+v", ack.Telemetry)
	}

	if _, err := d.Actuate(ctx, command.MustNew(command.Forward, command.Params{Distance: ptr.To(20)})); err != nil {
		t.Fatal(err)
	}

	want := []string{"command", "speed 30", "up 50", "battery?", "height?", "forward 20", "battery?", "height?"}
	if got := f.lines(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("sent %q, want %q", got, want)
	}
}

func TestTelloErrorReply(t *testing.T) {
	f := newFakeTello(t)
	d := dialFake(t, f)
	f.set("takeoff", "error Motor stop")

	_, err := d.Actuate(context.Background(), command.MustNew(command.Takeoff, command.Params{}))
	if err == nil || !strings.Contains(err.Error(), "Motor stop") {
		t.Fatalf("error = %v", err)
	}
}

func TestTelloReplyTimeout(t *testing.T) {
	f := newFakeTello(t)
	d := dialFake(t, f)
	f.set("land", "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.Actuate(ctx, command.MustNew(command.Land, command.Params{}))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestTelloRetryWaitsForSlowMove(t *testing.T) {
	f := newFakeTello(t)
	d := dialFake(t, f)
	f.delay("forward 50", 300*time.Millisecond)
	forward := command.MustNew(command.Forward, command.Params{Distance: ptr.To(50), Speed: ptr.To(30)})

	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		_, err = d.Actuate(ctx, forward)
		cancel()
		if err == nil {
			break
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("attempt %d error = %v, want deadline exceeded", attempt, err)
		}
	}
	if err != nil {
		t.Fatalf("Actuate() never saw the late reply: %v", err)
	}
	if n := f.count("forward 50"); n != 1 {
		t.Errorf("vehicle received %d forward commands for one move, want 1", n)
	}
}

func TestTelloDropsLateReply(t *testing.T) {
	f := newFakeTello(t)
	d := dialFake(t, f)
	f.delay("land", 200*time.Millisecond)
	f.set("battery?", "55")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err := d.Actuate(ctx, command.MustNew(command.Land, command.Params{}))
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("land error = %v, want deadline exceeded", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tel, err := d.QueryTelemetry(ctx)
	if err != nil {
		t.Fatalf("QueryTelemetry() error = %v", err)
	}
	if tel.Battery != 55 {
		t.Errorf("battery = %d, want 55 and not the late land reply", tel.Battery)
	}
}

func TestSim(t *testing.T) {
	s := NewSim(SimConfig{Battery: 50})
	ctx := context.Background()

	if _, err := s.Actuate(ctx, command.MustNew(command.Takeoff, command.Params{})); err != nil {
		t.Fatal(err)
	}
	ack, err := s.Actuate(ctx, command.MustNew(command.Up, command.Params{Distance: ptr.To(40)}))
	if err != nil {
		t.Fatal(err)
	}
	if ack.Telemetry.Height != SimTakeoffHeight+40 || ack.Telemetry.Battery != 48 {
		t.Errorf("telemetry = %+v", ack.Telemetry)
	}

	s.FailNext(errors.New("error No valid imu"))
	if _, err := s.Actuate(ctx, command.MustNew(command.Land, command.Params{})); err == nil {
		t.Error("injected fault not returned")
	}

	s.HangNext(1)
	hctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := s.Actuate(hctx, command.MustNew(command.Land, command.Params{})); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("hang error = %v", err)
	}

	s.SetConnected(false)
	tel, _ := s.QueryTelemetry(ctx)
	if tel.Connected {
		t.Error("telemetry must report the lost link")
	}
	if _, err := s.Actuate(ctx, command.MustNew(command.Land, command.Params{})); err == nil {
		t.Error("disconnected vehicle accepted a command")
	}
	if n := len(s.Calls()); n != 5 {
		t.Errorf("calls = %d, want 5", n)
	}
}

func TestFrameSources(t *testing.T) {
	ctx := context.Background()

	blank, err := NewFrameSource("").Frame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(blank.Data)); err != nil {
		t.Errorf("blank frame is not a jpeg: %v", err)
	}

	dir := t.TempDir()
	older := filepath.Join(dir, "a.jpg")
	newer := filepath.Join(dir, "b.png")
	if err := os.WriteFile(older, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newer, []byte("new"), 0o600); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := NewFrameSource(dir).Frame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(f.Data) != "new" || f.MIMEType != "image/png" {
		t.Errorf("frame = %q %s, want newest png", f.Data, f.MIMEType)
	}

	if _, err := NewFrameSource(filepath.Join(dir, "missing.jpg")).Frame(ctx); err == nil {
		t.Error("missing file must fail")
	}
	if _, err := NewFrameSource(t.TempDir()).Frame(ctx); err == nil {
		t.Error("empty directory must fail")
	}
}

func TestNewHALSim(t *testing.T) {
	t.Setenv(VehicleIDEnv, "bench-7")
	opts := options.NewDroneOptions()
	opts.Driver = options.DriverSim
	opts.SimBattery = 64

	h, err := NewHAL(context.Background(), opts, 30)
	if err != nil {
		t.Fatal(err)
	}
	if h.VehicleID() != "bench-7" {
		t.Errorf("vehicle id = %q", h.VehicleID())
	}
	tel, _ := h.QueryTelemetry(context.Background())
	if tel.Battery != 64 {
		t.Errorf("battery = %d", tel.Battery)
	}
}
