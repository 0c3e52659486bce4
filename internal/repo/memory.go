package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/runrelay/runrelay/pkg/logger"
)

// newMemory builds a process-local Repo used by tests and by
// single-node deployments that opt out of mongo.
func newMemory[T any](log logger.Logger) *memoryRepo[T] {
	return &memoryRepo[T]{
		data: make(map[string]T),
		log:  log.With("memory_repo"),
	}
}

type memoryRepo[T any] struct {
	mu    sync.Mutex
	data  map[string]T
	order []string
	log   logger.Logger
}

func (m *memoryRepo[T]) Txn(ctx context.Context, do func() error) (bool, error) {
	err := do()
	return err == nil, err
}

func (m *memoryRepo[T]) Insert(ctx context.Context, data T) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.data[id] = data
	m.order = append(m.order, id)
	return id, nil
}

func (m *memoryRepo[T]) Select(ctx context.Context, filters ...Filter) ([]T, error) {
	f := collect(filters)

	m.mu.Lock()
	defer m.mu.Unlock()

	var selected []T
	for _, id := range m.order {
		item, ok := m.data[id]
		if !ok {
			continue
		}
		if f.match(id, item) && matchFields(item, f.fields) {
			selected = append(selected, item)
		}
	}
	return selected, nil
}

func (m *memoryRepo[T]) Update(ctx context.Context, update func(*T), filters ...Filter) (int, error) {
	f := collect(filters)

	m.mu.Lock()
	defer m.mu.Unlock()

	updated := 0
	for _, id := range m.order {
		item, ok := m.data[id]
		if !ok || !f.match(id, item) || !matchFields(item, f.fields) {
			continue
		}
		update(&item)
		m.data[id] = item
		updated++
	}
	return updated, nil
}

func (m *memoryRepo[T]) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.data[id]
	delete(m.data, id)
	return ok, nil
}

func (m *memoryRepo[T]) Close(ctx context.Context) error {
	return nil
}

// matchFields compares item fields by their serialized names, the
// same names a mongo filter would use.
func matchFields(item any, fields map[string]any) bool {
	if len(fields) == 0 {
		return true
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return false
	}

	var doc map[string]any
	if json.Unmarshal(raw, &doc) != nil {
		return false
	}

	for name, want := range fields {
		got, ok := doc[name]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
