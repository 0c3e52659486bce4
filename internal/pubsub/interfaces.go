package pubsub

import (
	"context"

	"github.com/runrelay/runrelay/internal/streams"
)

// Producer publishes local stream events to the shared topic. It
// satisfies the registry's Forwarder.
type Producer interface {
	Forward(ctx context.Context, ev streams.Event) error
}

// ApplyFunc consumes one event from a peer node.
type ApplyFunc func(ctx context.Context, ev streams.Event) error

type Consumer interface {
	HandleEvents(ctx context.Context, apply ApplyFunc)
}
