package api

import (
	"context"
	"encoding/json"

	"github.com/runrelay/runrelay/internal/streams"
)

type Server interface {
	Serve(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// streamSource is the registry surface the HTTP layer needs.
// *streams.Registry implements it.
type streamSource interface {
	Register(ctx context.Context, run, key string) error
	Append(ctx context.Context, run, key string, data json.RawMessage) (int64, error)
	Close(ctx context.Context, run, key string) error
	Subscribe(ctx context.Context, run, key string, from int64) (<-chan streams.Chunk, error)
	List(ctx context.Context, run string) []streams.StreamInfo
}
