// Package memory is an in-process KV backend. Contents are lost on exit.
package memory

import (
	"context"
	"sync"

	"ledger/internal/log"
	"ledger/internal/store"
)

// KV keeps blobs in a map.
type KV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewKV() *KV {
	return &KV{data: make(map[string][]byte)}
}

// New returns a Store backed by a fresh in-memory KV.
func New(logger *log.Logger) *store.Collections {
	return store.NewCollections(NewKV(), logger)
}

func (m *KV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *KV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *KV) Ping(context.Context) error { return nil }

func (m *KV) Close() error { return nil }
