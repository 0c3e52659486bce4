package streams

import (
	"context"
	"sort"

	"github.com/runrelay/runrelay/internal/repo"
	"github.com/runrelay/runrelay/pkg/errors"
	"github.com/runrelay/runrelay/pkg/logger"
)

// NewHistory builds the durable chunk store on top of the configured
// repo backend.
func NewHistory(ctx context.Context, log logger.Logger, cfg repo.Config, src repo.DataSource) (History, error) {
	db, err := repo.New[Chunk](ctx, log, cfg, src)
	if err != nil {
		return nil, errors.WrapFail(err, "init chunks repo")
	}

	return &repoHistory{db: db}, nil
}

// closedMarkerSeq tags the document recording that a stream closed.
// Markers live in the chunk collection and never show up in Load.
const closedMarkerSeq = -1

type repoHistory struct {
	db repo.Repo[Chunk]
}

func (h *repoHistory) Append(ctx context.Context, chunk Chunk) error {
	_, err := h.db.Insert(ctx, chunk)
	return errors.WrapFail(err, "insert chunk")
}

func (h *repoHistory) Load(ctx context.Context, run, key string) ([]Chunk, error) {
	selected, err := h.db.Select(
		ctx,
		repo.ByField("run", run),
		repo.ByField("key", key),
	)
	if err != nil {
		return nil, errors.WrapFail(err, "select chunks")
	}

	chunks := make([]Chunk, 0, len(selected))
	for _, c := range selected {
		if c.Seq >= 0 {
			chunks = append(chunks, c)
		}
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Seq < chunks[j].Seq })
	return chunks, nil
}

func (h *repoHistory) MarkClosed(ctx context.Context, run, key string) error {
	_, err := h.db.Insert(ctx, Chunk{Run: run, Key: key, Seq: closedMarkerSeq})
	return errors.WrapFail(err, "insert closed marker")
}

func (h *repoHistory) Closed(ctx context.Context, run, key string) (bool, error) {
	markers, err := h.db.Select(
		ctx,
		repo.ByField("run", run),
		repo.ByField("key", key),
		repo.ByField("seq", closedMarkerSeq),
	)
	if err != nil {
		return false, errors.WrapFail(err, "select closed marker")
	}
	return len(markers) > 0, nil
}

func (h *repoHistory) Close(ctx context.Context) error {
	return h.db.Close(ctx)
}
