package streams

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runrelay/runrelay/internal/repo"
	"github.com/runrelay/runrelay/pkg/logger"
)

func TestHistory_AppendLoad(t *testing.T) {
	ctx := context.Background()

	h, err := NewHistory(ctx, logger.NewStub(), repo.Config{Storage: repo.StorageMemory}, "chunks")
	require.NoError(t, err)

	for seq, data := range []string{`"x"`, `"y"`} {
		err = h.Append(ctx, Chunk{
			Run:  "run-1",
			Key:  "logs",
			Seq:  int64(seq),
			Data: json.RawMessage(data),
		})
		require.NoError(t, err)
	}
	err = h.Append(ctx, Chunk{Run: "run-1", Key: "other", Seq: 0, Data: json.RawMessage(`0`)})
	require.NoError(t, err)

	chunks, err := h.Load(ctx, "run-1", "logs")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.EqualValues(t, 0, chunks[0].Seq)
	require.EqualValues(t, 1, chunks[1].Seq)

	chunks, err = h.Load(ctx, "run-1", "missing")
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestRegistry_HistoryFallback(t *testing.T) {
	ctx := context.Background()

	h, err := NewHistory(ctx, logger.NewStub(), repo.Config{Storage: repo.StorageMemory}, "chunks")
	require.NoError(t, err)

	// small completed cache so the closed stream gets evicted
	r, err := NewRegistry(logger.NewStub(), Config{CompletedCache: 1}, h)
	require.NoError(t, err)

	mustAppend(t, r, "run-1", "logs", `1`)
	require.NoError(t, r.Close(ctx, "run-1", "logs"))
	r.DropRun(ctx, "run-1")

	mustAppend(t, r, "run-2", "evictor", `1`)
	require.NoError(t, r.Close(ctx, "run-2", "evictor"))
	r.DropRun(ctx, "run-2")

	// run-1/logs is gone from memory, served from history
	ch, err := r.Subscribe(ctx, "run-1", "logs", 0)
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`1`), recvChunk(t, ch).Data)
	recvClosed(t, ch)
}

func TestRegistry_ClosedSurvivesCacheEviction(t *testing.T) {
	ctx := context.Background()

	h, err := NewHistory(ctx, logger.NewStub(), repo.Config{Storage: repo.StorageMemory}, "chunks")
	require.NoError(t, err)

	r, err := NewRegistry(logger.NewStub(), Config{CompletedCache: 1}, h)
	require.NoError(t, err)

	mustAppend(t, r, "run-1", "logs", `1`)
	require.NoError(t, r.Close(ctx, "run-1", "logs"))
	r.DropRun(ctx, "run-1")

	mustAppend(t, r, "run-2", "evictor", `1`)
	require.NoError(t, r.Close(ctx, "run-2", "evictor"))
	r.DropRun(ctx, "run-2")

	// run-1/logs is out of the completed cache, the durable marker
	// must still reject the append
	_, err = r.Append(ctx, "run-1", "logs", json.RawMessage(`2`))
	require.ErrorIs(t, err, ErrClosed)

	chunks, err := h.Load(ctx, "run-1", "logs")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.EqualValues(t, 0, chunks[0].Seq)
}

func TestRegistry_ResumeAfterRestart(t *testing.T) {
	ctx := context.Background()

	h, err := NewHistory(ctx, logger.NewStub(), repo.Config{Storage: repo.StorageMemory}, "chunks")
	require.NoError(t, err)

	first, err := NewRegistry(logger.NewStub(), Config{}, h)
	require.NoError(t, err)
	mustAppend(t, first, "run-1", "logs", `1`)

	// a new registry over the same history picks up the open stream
	// at its persisted length
	second, err := NewRegistry(logger.NewStub(), Config{}, h)
	require.NoError(t, err)
	require.EqualValues(t, 1, mustAppend(t, second, "run-1", "logs", `2`))

	ch, err := second.Subscribe(ctx, "run-1", "logs", 0)
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`1`), recvChunk(t, ch).Data)
	require.Equal(t, json.RawMessage(`2`), recvChunk(t, ch).Data)
}

func TestRegistry_ApplyRemoteBackfill(t *testing.T) {
	ctx := context.Background()

	h, err := NewHistory(ctx, logger.NewStub(), repo.Config{Storage: repo.StorageMemory}, "chunks")
	require.NoError(t, err)

	r, err := NewRegistry(logger.NewStub(), Config{}, h)
	require.NoError(t, err)

	remote := func(seq int64, data string) Event {
		return Event{
			Origin: "peer",
			Chunk:  Chunk{Run: "run-1", Key: "logs", Seq: seq, Data: json.RawMessage(data)},
		}
	}

	require.NoError(t, r.ApplyRemote(ctx, remote(0, `1`)))

	// the producing node persisted 1 and 2, only 3 made it here
	for seq, data := range map[int64]string{1: `2`, 2: `3`} {
		require.NoError(t, h.Append(ctx, Chunk{Run: "run-1", Key: "logs", Seq: seq, Data: json.RawMessage(data)}))
	}
	require.NoError(t, r.ApplyRemote(ctx, remote(3, `4`)))

	ch, err := r.Subscribe(ctx, "run-1", "logs", 0)
	require.NoError(t, err)
	for seq, data := range []string{`1`, `2`, `3`, `4`} {
		got := recvChunk(t, ch)
		require.EqualValues(t, seq, got.Seq)
		require.Equal(t, json.RawMessage(data), got.Data)
	}
}

func TestRegistry_ApplyRemoteOutOfOrder(t *testing.T) {
	ctx := context.Background()

	h, err := NewHistory(ctx, logger.NewStub(), repo.Config{Storage: repo.StorageMemory}, "chunks")
	require.NoError(t, err)

	// both chunks are persisted before either event lands here
	for seq, data := range []string{`1`, `2`} {
		require.NoError(t, h.Append(ctx, Chunk{Run: "run-1", Key: "logs", Seq: int64(seq), Data: json.RawMessage(data)}))
	}

	r, err := NewRegistry(logger.NewStub(), Config{}, h)
	require.NoError(t, err)

	remote := func(seq int64, data string) Event {
		return Event{
			Origin: "peer",
			Chunk:  Chunk{Run: "run-1", Key: "logs", Seq: seq, Data: json.RawMessage(data)},
		}
	}

	require.NoError(t, r.ApplyRemote(ctx, remote(1, `2`)))
	require.NoError(t, r.ApplyRemote(ctx, remote(0, `1`)))

	ch, err := r.Subscribe(ctx, "run-1", "logs", 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, recvChunk(t, ch).Seq)
	require.EqualValues(t, 1, recvChunk(t, ch).Seq)
}

func TestRegistry_SubscribeResumedStream(t *testing.T) {
	ctx := context.Background()

	h, err := NewHistory(ctx, logger.NewStub(), repo.Config{Storage: repo.StorageMemory}, "chunks")
	require.NoError(t, err)

	first, err := NewRegistry(logger.NewStub(), Config{}, h)
	require.NoError(t, err)
	mustAppend(t, first, "run-1", "logs", `1`)

	// the stream is open, so a subscriber on a fresh node tails it
	// instead of getting a premature end
	second, err := NewRegistry(logger.NewStub(), Config{}, h)
	require.NoError(t, err)

	ch, err := second.Subscribe(ctx, "run-1", "logs", 0)
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`1`), recvChunk(t, ch).Data)

	mustAppend(t, second, "run-1", "logs", `2`)
	require.Equal(t, json.RawMessage(`2`), recvChunk(t, ch).Data)

	require.NoError(t, second.Close(ctx, "run-1", "logs"))
	recvClosed(t, ch)
}
