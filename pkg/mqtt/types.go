package mqtt

import (
	"context"
)

// MessageHandler processes one received message. Each call runs on its own
// goroutine so a slow handler never stalls the connection.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// ConnectionHandler runs after every successful connect, the first one and
// each reconnect.
type ConnectionHandler func(ctx context.Context)

// Client is the broker connection shared by the flight agent and operator
// tools. Subscriptions outlive reconnects.
type Client interface {
	// Start begins connecting in the background and returns at once.
	Start(ctx context.Context) error

	// Disconnect closes the connection cleanly, so the last will is not sent.
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe routes messages matching the filter to handler. The filter is
	// re-subscribed after every reconnect.
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, filter string) error

	// AwaitConnection blocks until the first connection is up or ctx is done.
	AwaitConnection(ctx context.Context) error

	IsConnected() bool

	// OnConnectionUp registers fn for every connect. Register before Start to
	// see the first one.
	OnConnectionUp(fn ConnectionHandler)
}
