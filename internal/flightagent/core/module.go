package core

import (
	"context"
)

// HandlerFunc processes the payload of a downstream event.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Module is a unit of agent behaviour bound to bus events.
type Module interface {
	Name() string

	Setup(ctx context.Context, sender Sender) error

	Routes() map[EventType]HandlerFunc
}
