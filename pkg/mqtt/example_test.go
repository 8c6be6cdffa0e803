package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/flightpeer/pkg/log"
	"github.com/autopeer-io/flightpeer/pkg/mqtt"
	"github.com/autopeer-io/flightpeer/pkg/mqtt/topic"
)

// ExampleClient shows how a flight agent connects, listens for an emergency
// stop and publishes telemetry.
func ExampleClient() {
	topics := topic.NewTopicBuilder("flightpeer/v1")

	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "tello-01",
		KeepAlive:      60,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
		// The broker clears the online flag if the agent vanishes.
		WillTopic:   topics.Online("tello-01"),
		WillPayload: []byte(`{"online":false}`),
		WillQoS:     1,
		WillRetain:  true,
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	// Start returns immediately; connecting and reconnecting happen in the background.
	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}

	// Handlers run on their own goroutine and are re-subscribed after a reconnect.
	onStop := func(ctx context.Context, topic string, payload []byte) {
		fmt.Printf("emergency stop on %s\n", topic)
	}
	if err := client.Subscribe(ctx, topics.Stop("tello-01"), 1, onStop); err != nil {
		log.Error(err, "Failed to subscribe")
	}

	if err := client.AwaitConnection(ctx); err != nil {
		log.Error(err, "Connection timed out")
		return
	}

	payload := []byte(`{"height":50,"battery":87,"connected":true}`)
	if err := client.Publish(ctx, topics.Telemetry("tello-01"), 0, false, payload); err != nil {
		log.Error(err, "Failed to publish telemetry")
	}

	client.Disconnect(ctx)
}
