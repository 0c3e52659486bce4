package streams

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/runrelay/runrelay/pkg/errors"
	"github.com/runrelay/runrelay/pkg/logger"
	"github.com/runrelay/runrelay/pkg/tools/await"
)

var (
	ErrClosed  = errors.Error("stream is closed")
	ErrUnknown = errors.Error("unknown stream")
	ErrBadSeq  = errors.Error("chunk sequence mismatch")
)

const defaultCompletedCache = 256

type Config struct {
	// CompletedCache bounds how many closed streams stay in memory
	// for fast replay. Older ones are served from history.
	CompletedCache int `yaml:"completed_cache"`
}

func NewRegistry(log logger.Logger, cfg Config, history History) (*Registry, error) {
	size := cfg.CompletedCache
	if size <= 0 {
		size = defaultCompletedCache
	}

	done, err := lru.New[streamKey, []Chunk](size)
	if err != nil {
		return nil, errors.WrapFail(err, "init completed streams cache")
	}

	return &Registry{
		origin:  uuid.NewString(),
		live:    make(map[streamKey]*stream),
		done:    done,
		history: history,
		log:     log.With("stream_registry"),
	}, nil
}

type streamKey struct {
	run string
	key string
}

// Registry owns every stream of every active run on this node:
// producers append, subscribers replay and tail, the runs service
// waits on it before letting a run finish.
type Registry struct {
	mu      sync.RWMutex
	origin  string
	live    map[streamKey]*stream
	done    *lru.Cache[streamKey, []Chunk]
	history History
	forward Forwarder
	log     logger.Logger
}

// Origin is the relay node id stamped on forwarded events.
func (r *Registry) Origin() string {
	return r.origin
}

// SetForwarder enables cross-node event propagation. Must be called
// before the registry starts accepting appends.
func (r *Registry) SetForwarder(f Forwarder) {
	r.forward = f
}

// Register declares a stream under a run. It is idempotent: a second
// registration of the same key resumes the same sequence.
func (r *Registry) Register(ctx context.Context, run, key string) error {
	_, err := r.obtain(ctx, run, key)
	return err
}

// Append adds a chunk to the stream, registering it if needed, and
// returns the assigned sequence number.
func (r *Registry) Append(ctx context.Context, run, key string, data json.RawMessage) (int64, error) {
	s, err := r.obtain(ctx, run, key)
	if err != nil {
		return 0, err
	}

	chunk, err := s.append(ctx, run, key, data, r.history)
	if err != nil {
		return 0, err
	}

	r.forwardEvent(ctx, Event{Origin: r.origin, Chunk: chunk})
	return chunk.Seq, nil
}

// Close marks the stream complete. Subscribers drain and their
// channels close; further appends fail with ErrClosed.
func (r *Registry) Close(ctx context.Context, run, key string) error {
	r.mu.RLock()
	s, ok := r.live[streamKey{run, key}]
	r.mu.RUnlock()

	if !ok {
		return ErrUnknown
	}

	// the marker goes first: a stream closed in memory but unmarked
	// would reopen after cache eviction
	if r.history != nil {
		err := r.history.MarkClosed(ctx, run, key)
		if err != nil {
			return errors.WrapFail(err, "store closed marker")
		}
	}

	if !s.close() {
		return ErrClosed
	}

	r.forwardEvent(ctx, Event{
		Origin: r.origin,
		Close:  true,
		Chunk:  Chunk{Run: run, Key: key},
	})
	return nil
}

// Subscribe replays the stream from the given offset and then tails
// it live. The returned channel closes when the stream closes or ctx
// is done.
func (r *Registry) Subscribe(ctx context.Context, run, key string, from int64) (<-chan Chunk, error) {
	if from < 0 {
		from = 0
	}

	r.mu.RLock()
	s, ok := r.live[streamKey{run, key}]
	r.mu.RUnlock()

	if ok {
		return s.subscribe(ctx, from), nil
	}

	chunks, ok := r.done.Get(streamKey{run, key})
	if !ok && r.history != nil {
		closed, err := r.history.Closed(ctx, run, key)
		if err != nil {
			return nil, errors.WrapFail(err, "check closed marker")
		}

		if !closed {
			// an open stream lost to a restart comes back live, so
			// the subscriber tails the resumed sequence instead of
			// getting a premature end
			persisted, err := r.history.Load(ctx, run, key)
			if err != nil {
				return nil, errors.WrapFail(err, "load stream history")
			}
			if len(persisted) == 0 {
				return nil, ErrUnknown
			}

			s, err := r.obtain(ctx, run, key)
			if err != nil {
				return nil, err
			}
			return s.subscribe(ctx, from), nil
		}

		chunks, err = r.history.Load(ctx, run, key)
		if err != nil {
			return nil, errors.WrapFail(err, "load stream history")
		}
		ok = len(chunks) > 0
	}
	if !ok {
		return nil, ErrUnknown
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		for _, c := range chunks {
			if c.Seq < from {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// List reports all streams registered under a run on this node.
func (r *Registry) List(ctx context.Context, run string) []StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var infos []StreamInfo
	for k, s := range r.live {
		if k.run != run {
			continue
		}
		length, closed := s.state()
		infos = append(infos, StreamInfo{Run: k.run, Key: k.key, Length: length, Closed: closed})
	}
	return infos
}

// WaitDrained blocks until every stream of the run is closed, the
// ceiling elapses, or ctx is done. It reports whether all streams
// actually drained.
func (r *Registry) WaitDrained(ctx context.Context, run string, ceiling time.Duration) bool {
	r.mu.RLock()
	waiters := make([]await.Awaiter, 0, 4)
	for k, s := range r.live {
		if k.run == run {
			waiters = append(waiters, await.FromChan(s.drained))
		}
	}
	r.mu.RUnlock()

	if len(waiters) == 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	return await.AllOf(waiters...).Await(ctx)
}

// DropRun retires all streams of a finished run: still-open streams
// are force-closed, closed ones move to the completed cache.
func (r *Registry) DropRun(ctx context.Context, run string) {
	r.mu.Lock()
	var forced []streamKey
	for k, s := range r.live {
		if k.run != run {
			continue
		}
		if s.close() {
			r.log.Warnf("stream %s/%s force-closed by run finish", k.run, k.key)
			forced = append(forced, k)
		}
		r.done.Add(k, s.snapshot())
		delete(r.live, k)
	}
	r.mu.Unlock()

	if r.history == nil {
		return
	}
	for _, k := range forced {
		err := r.history.MarkClosed(ctx, k.run, k.key)
		if err != nil {
			r.log.Warn(errors.WrapFailf(err, "store closed marker for %s/%s", k.run, k.key))
		}
	}
}

// ApplyRemote ingests an event produced by a peer node. Events that
// originated here are ignored.
func (r *Registry) ApplyRemote(ctx context.Context, ev Event) error {
	if ev.Origin == r.origin {
		return nil
	}

	if ev.Close {
		err := r.Close(ctx, ev.Chunk.Run, ev.Chunk.Key)
		if errors.Is(err, ErrUnknown) || errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}

	s, err := r.obtain(ctx, ev.Chunk.Run, ev.Chunk.Key)
	if errors.Is(err, ErrClosed) {
		// stale event for a retired stream
		return nil
	}
	if err != nil {
		return err
	}

	err = s.appendRemote(ev.Chunk)
	if !errors.Is(err, ErrBadSeq) {
		return err
	}

	// a node attaching mid-stream sees a gap: the producing node has
	// already persisted the prefix, take it from history
	if r.history != nil {
		prefix, loadErr := r.history.Load(ctx, ev.Chunk.Run, ev.Chunk.Key)
		if loadErr != nil {
			return errors.WrapFail(loadErr, "backfill stream prefix")
		}
		s.merge(prefix)
		err = s.appendRemote(ev.Chunk)
	}
	if err != nil {
		r.evictEmpty(streamKey{ev.Chunk.Run, ev.Chunk.Key})
	}
	return err
}

func (r *Registry) obtain(ctx context.Context, run, key string) (*stream, error) {
	k := streamKey{run, key}

	r.mu.RLock()
	s, ok := r.live[k]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	if _, closed := r.done.Get(k); closed {
		return nil, ErrClosed
	}

	// the completed cache is bounded, the durable marker is not
	var persisted []Chunk
	if r.history != nil {
		closed, err := r.history.Closed(ctx, run, key)
		if err != nil {
			return nil, errors.WrapFail(err, "check closed marker")
		}
		if closed {
			return nil, ErrClosed
		}

		persisted, err = r.history.Load(ctx, run, key)
		if err != nil {
			return nil, errors.WrapFail(err, "load persisted chunks")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.live[k]; ok {
		return s, nil
	}
	s = newStream()
	s.chunks = persisted
	r.live[k] = s
	return s, nil
}

// evictEmpty removes a stream that never got a chunk, so a failed
// remote apply does not strand subscribers on it.
func (r *Registry) evictEmpty(k streamKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.live[k]
	if !ok {
		return
	}
	if length, closed := s.state(); length == 0 && !closed {
		delete(r.live, k)
	}
}

func (r *Registry) forwardEvent(ctx context.Context, ev Event) {
	if r.forward == nil {
		return
	}
	err := r.forward.Forward(ctx, ev)
	if err != nil {
		r.log.Warn(errors.WrapFail(err, "forward stream event"))
	}
}
