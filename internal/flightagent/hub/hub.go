package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/pkg/log"
	"github.com/autopeer-io/flightpeer/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/flightpeer/pkg/mqtt/topic"
)

// Hub binds agent events to MQTT topics of one vehicle.
type Hub struct {
	vid string

	mc     mqtt.Client
	topics *mqtttopic.TopicBuilder

	mu     sync.Mutex
	routes map[string]core.HandlerFunc
}

var _ core.Sender = (*Hub)(nil)

func New(vid string, client mqtt.Client, topicbuilder *mqtttopic.TopicBuilder) *Hub {
	return &Hub{
		mc:     client,
		topics: topicbuilder,
		vid:    vid,
		routes: make(map[string]core.HandlerFunc),
	}
}

func (b *Hub) Send(ctx context.Context, event core.EventType, payload []byte) error {
	segment, ok := events[event]
	if !ok {
		return fmt.Errorf("unmapped event: %s", event)
	}
	fullTopic := b.topics.Build(segment, b.vid)
	return b.mc.Publish(ctx, fullTopic, 1, retained[event], payload)
}

func (b *Hub) SendJSON(ctx context.Context, event core.EventType, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return b.Send(ctx, event, payload)
}

// OnConnect runs fn after every connect to the broker, reconnects included.
// Call it before Start.
func (b *Hub) OnConnect(fn func(ctx context.Context)) {
	b.mc.OnConnectionUp(fn)
}

func (b *Hub) IsConnected() bool {
	return b.mc.IsConnected()
}

func (b *Hub) Start(ctx context.Context) error {
	if err := b.mc.Start(ctx); err != nil {
		return err
	}

	if err := b.mc.AwaitConnection(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, handler := range b.routes {
		err := b.mc.Subscribe(ctx, topic, 1, func(c context.Context, _ string, p []byte) {
			if handleErr := handler(c, p); handleErr != nil {
				log.Error(handleErr, "Handler execution failed", "topic", topic)
			}
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (b *Hub) Stop() {
	log.Info("Disconnecting MQTT client...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.mc.Disconnect(ctx)
}
