package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"flightpeer/v1/stop/tello-01", "flightpeer/v1/stop/tello-01", true},
		{"flightpeer/v1/stop/tello-01", "flightpeer/v1/stop/tello-02", false},
		{"flightpeer/v1/telemetry/+", "flightpeer/v1/telemetry/tello-01", true},
		{"flightpeer/v1/telemetry/+", "flightpeer/v1/telemetry/tello-01/extra", false},
		{"flightpeer/v1/telemetry/+", "flightpeer/v1/telemetry", false},
		{"flightpeer/v1/#", "flightpeer/v1/confirm/decision/tello-01", true},
		{"flightpeer/v1/#", "flightpeer/v1", true},
		{"flightpeer/v1/+/decision/+", "flightpeer/v1/confirm/decision/tello-01", true},
		{"flightpeer/v1/+/decision/+", "flightpeer/v1/confirm/request/tello-01", false},
	}

	for _, tt := range tests {
		if got := topicsMatch(tt.filter, tt.topic); got != tt.want {
			t.Errorf("topicsMatch(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestTopicFilterStripsSharedPrefix(t *testing.T) {
	if got := topicFilter("$share/operators/flightpeer/v1/telemetry/+"); got != "flightpeer/v1/telemetry/+" {
		t.Errorf("topicFilter() = %q", got)
	}
	if got := topicFilter("flightpeer/v1/stop/x"); got != "flightpeer/v1/stop/x" {
		t.Errorf("topicFilter() = %q", got)
	}
}

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr bool
	}{
		{"ok", ClientConfig{BrokerURL: "tcp://127.0.0.1:1883"}, false},
		{"empty", ClientConfig{}, true},
		{"no host", ClientConfig{BrokerURL: "broker"}, true},
		{"bad will qos", ClientConfig{BrokerURL: "tcp://127.0.0.1:1883", WillQoS: 3}, true},
		{"will payload without topic", ClientConfig{BrokerURL: "tcp://127.0.0.1:1883", WillPayload: []byte("{}")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func newTestClient(t *testing.T) *client {
	t.Helper()
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://127.0.0.1:1883"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c.(*client)
}

func TestUnstartedClient(t *testing.T) {
	c := newTestClient(t)
	if c.cfg.KeepAlive != defaultKeepAlive || c.cfg.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("defaults not applied: %+v", c.cfg)
	}
	if err := c.Publish(context.Background(), "x", 1, false, nil); err != errNotStarted {
		t.Errorf("Publish() error = %v, want %v", err, errNotStarted)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true before Start")
	}
}

func TestRouteDispatchesToMatchingHandlers(t *testing.T) {
	c := newTestClient(t)
	got := make(chan string, 4)
	c.subs["flightpeer/v1/intent/tello-01"] = subscription{qos: 1, handler: func(_ context.Context, topic string, _ []byte) { got <- "exact:" + topic }}
	c.subs["$share/ops/flightpeer/v1/+/tello-01"] = subscription{qos: 1, handler: func(_ context.Context, topic string, _ []byte) { got <- "wild:" + topic }}
	c.subs["flightpeer/v1/stop/tello-01"] = subscription{qos: 1, handler: func(context.Context, string, []byte) { got <- "stop" }}

	ack, err := c.route(paho.PublishReceived{Packet: &paho.Publish{Topic: "flightpeer/v1/intent/tello-01"}})
	if !ack || err != nil {
		t.Fatalf("route() = %v, %v", ack, err)
	}

	seen := map[string]bool{}
	for range 2 {
		select {
		case s := <-got:
			seen[s] = true
		case <-time.After(time.Second):
			t.Fatalf("handlers seen %v, want 2", seen)
		}
	}
	if !seen["exact:flightpeer/v1/intent/tello-01"] || !seen["wild:flightpeer/v1/intent/tello-01"] {
		t.Errorf("handlers seen %v", seen)
	}
	select {
	case s := <-got:
		t.Errorf("unexpected handler %q", s)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestConnectionUpRunsHandlersAndListsSubscriptions(t *testing.T) {
	c := newTestClient(t)
	if c.resubscription() != nil {
		t.Fatal("resubscription() != nil without subscriptions")
	}

	up := make(chan struct{}, 1)
	c.OnConnectionUp(func(context.Context) { up <- struct{}{} })
	c.onConnectionUp(nil, &paho.Connack{})

	select {
	case <-up:
	case <-time.After(time.Second):
		t.Fatal("connection handler not called")
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after connection up")
	}

	c.subs["b/+"] = subscription{qos: 0}
	c.subs["a/#"] = subscription{qos: 1}
	packet := c.resubscription()
	if len(packet.Subscriptions) != 2 || packet.Subscriptions[0].Topic != "a/#" || packet.Subscriptions[0].QoS != 1 {
		t.Errorf("resubscription() = %+v", packet.Subscriptions)
	}
}
