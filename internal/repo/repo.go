package repo

import (
	"context"

	"github.com/runrelay/runrelay/pkg/errors"
	"github.com/runrelay/runrelay/pkg/logger"
)

// DataSource names a collection within the configured storage.
type DataSource string

type Repo[T any] interface {
	Txn(ctx context.Context, do func() error) (bool, error)

	Insert(ctx context.Context, data T) (id string, err error)
	Select(ctx context.Context, filters ...Filter) (selected []T, err error)
	Update(ctx context.Context, update func(*T), filters ...Filter) (updated int, err error)
	Delete(ctx context.Context, id string) (deleted bool, err error)

	Close(ctx context.Context) error
}

func New[T any](ctx context.Context, log logger.Logger, cfg Config, src DataSource) (Repo[T], error) {
	switch cfg.Storage {
	case StorageMongo:
		return newMongo[T](ctx, cfg.Mongo, src, log)
	case StorageMemory:
		return newMemory[T](log), nil
	default:
		return nil, errors.Failf("use unknown storage kind %q", cfg.Storage)
	}
}
