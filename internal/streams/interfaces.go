package streams

import "context"

// History is the durable chunk store behind the in-memory registry.
// Load must return chunks ordered by Seq. The closed marker outlives
// the bounded completed cache, so a stream stays closed across
// eviction and restarts.
type History interface {
	Append(ctx context.Context, chunk Chunk) error
	Load(ctx context.Context, run, key string) ([]Chunk, error)

	MarkClosed(ctx context.Context, run, key string) error
	Closed(ctx context.Context, run, key string) (bool, error)

	Close(ctx context.Context) error
}

// Forwarder publishes local stream events for peer relay nodes.
type Forwarder interface {
	Forward(ctx context.Context, ev Event) error
}
