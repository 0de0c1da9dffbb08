package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps revocations in process memory. Expired entries are
// dropped lazily on lookup and in bulk every sweepEvery writes, the same
// opportunistic GC the HTTP rate limiter uses.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	now        func() time.Time
	writes     uint64
	sweepEvery uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]time.Time),
		now:        time.Now,
		sweepEvery: 1024,
	}
}

// WithClock overrides the time source. Used by tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

// Add implements Store.
func (m *MemoryStore) Add(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writes%m.sweepEvery == 0 {
		for k, exp := range m.entries {
			if !now.Before(exp) {
				delete(m.entries, k)
			}
		}
	}
	m.entries[keyPrefix+key] = now.Add(ttl)
	return nil
}

// IsRevoked implements Store.
func (m *MemoryStore) IsRevoked(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[keyPrefix+key]
	if !ok {
		return false, nil
	}
	if !now.Before(exp) {
		delete(m.entries, keyPrefix+key)
		return false, nil
	}
	return true, nil
}

// Len returns the number of entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
