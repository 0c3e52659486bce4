package streams

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/runrelay/runrelay/pkg/errors"
)

func newStream() *stream {
	s := &stream{drained: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// stream is one append-only (run, key) sequence. Appends go through
// history first, so a closed stream is always fully persisted.
type stream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	chunks  []Chunk
	closed  bool
	drained chan struct{}
}

func (s *stream) append(ctx context.Context, run, key string, data json.RawMessage, history History) (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Chunk{}, ErrClosed
	}

	chunk := Chunk{
		Run:  run,
		Key:  key,
		Seq:  int64(len(s.chunks)),
		Data: data,
		At:   time.Now().UTC(),
	}

	if history != nil {
		err := history.Append(ctx, chunk)
		if err != nil {
			return Chunk{}, errors.WrapFail(err, "persist chunk")
		}
	}

	s.chunks = append(s.chunks, chunk)
	s.cond.Broadcast()
	return chunk, nil
}

func (s *stream) appendRemote(chunk Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if chunk.Seq < int64(len(s.chunks)) {
		// duplicate delivery
		return nil
	}
	if chunk.Seq > int64(len(s.chunks)) {
		return ErrBadSeq
	}

	s.chunks = append(s.chunks, chunk)
	s.cond.Broadcast()
	return nil
}

// merge appends the contiguous continuation found in chunks, which
// must be ordered by Seq. Already-held prefixes are skipped.
func (s *stream) merge(chunks []Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	grown := false
	for _, c := range chunks {
		if c.Seq == int64(len(s.chunks)) {
			s.chunks = append(s.chunks, c)
			grown = true
		}
	}
	if grown {
		s.cond.Broadcast()
	}
}

// close marks the stream complete and reports whether this call did it.
func (s *stream) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	close(s.drained)
	s.cond.Broadcast()
	return true
}

func (s *stream) state() (length int64, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.chunks)), s.closed
}

func (s *stream) snapshot() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

func (s *stream) subscribe(ctx context.Context, from int64) <-chan Chunk {
	out := make(chan Chunk)

	// wake the cond loop when the subscriber goes away
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})

	go func() {
		defer close(out)
		defer stop()

		cursor := from
		for {
			batch, more := s.next(ctx, cursor)
			for _, c := range batch {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
			cursor += int64(len(batch))
			if !more {
				return
			}
		}
	}()

	return out
}

// next blocks until chunks past cursor exist, the stream closes, or
// ctx is done. more is false once nothing else will ever arrive.
func (s *stream) next(ctx context.Context, cursor int64) (batch []Chunk, more bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for int64(len(s.chunks)) <= cursor && !s.closed && ctx.Err() == nil {
		s.cond.Wait()
	}

	if ctx.Err() != nil {
		return nil, false
	}
	if int64(len(s.chunks)) > cursor {
		return s.chunks[cursor:], !s.closed
	}
	return nil, false
}
