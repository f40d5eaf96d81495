package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and single-node deployments.
// A single mutex serializes transactions, matching the single-writer model:
// one operation runs to completion before the next observes anything.
type Memory struct {
	mu   sync.Mutex
	data map[Key][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[Key][]byte)}
}

func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return fn(&memoryTx{base: m.data, staged: make(map[Key][]byte)})
}

// Update stages writes in an overlay and commits only if fn succeeds, so a
// failed operation leaves no partial state behind.
func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{base: m.data, staged: make(map[Key][]byte)}
	if err := fn(tx); err != nil {
		return err
	}

	for k, v := range tx.staged {
		m.data[k] = v
	}
	return nil
}

type memoryTx struct {
	base   map[Key][]byte
	staged map[Key][]byte
}

func (tx *memoryTx) Get(key Key) ([]byte, bool, error) {
	if v, ok := tx.staged[key]; ok {
		return append([]byte(nil), v...), true, nil
	}
	v, ok := tx.base[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (tx *memoryTx) Set(key Key, value []byte) error {
	tx.staged[key] = append([]byte(nil), value...)
	return nil
}

func (tx *memoryTx) Has(key Key) (bool, error) {
	if _, ok := tx.staged[key]; ok {
		return true, nil
	}
	_, ok := tx.base[key]
	return ok, nil
}
