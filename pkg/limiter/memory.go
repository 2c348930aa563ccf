package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/mailgun/holster/v4/clock"
)

type counterState struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-process CounterStore.
//
// It is safe for concurrent use by multiple goroutines, but its state is
// local to the process and is not shared across replicas. Use RedisStore
// when you need a single global budget across multiple instances; use
// MemoryStore in tests, local development and single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counterState
}

var _ CounterStore = (*MemoryStore)(nil)

// NewMemoryStore constructs a MemoryStore with empty state.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counterState),
	}
}

// Increment adds 1 to the counter for key within the current window and
// returns the new count. The window expiry is fixed by the first request.
func (m *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := clock.Now()
	st, ok := m.counters[key]
	if !ok || !st.expiresAt.After(now) {
		m.counters[key] = &counterState{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}

	st.count++
	return st.count, nil
}

// Reset deletes the counter for key. Resetting an absent key is a no-op.
func (m *MemoryStore) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.counters, key)
	return nil
}
