package invalidation

import (
	"context"
	"sync"
)

type mockCache struct {
	mu      sync.Mutex
	evictFn func(ctx context.Context, ids []string) (int64, error)
	flushFn func(ctx context.Context) (int64, error)
	evicted [][]string
	flushes int
}

func (m *mockCache) EvictIDs(ctx context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	m.evicted = append(m.evicted, ids)
	m.mu.Unlock()
	if m.evictFn != nil {
		return m.evictFn(ctx, ids)
	}
	return int64(len(ids)), nil
}

func (m *mockCache) Flush(ctx context.Context) (int64, error) {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	if m.flushFn != nil {
		return m.flushFn(ctx)
	}
	return 0, nil
}

func (m *mockCache) calls() (evicts, flushes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.evicted), m.flushes
}
