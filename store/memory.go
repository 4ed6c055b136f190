package store

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goThrottle/clock"
)

type memoryRecord struct {
	value     []byte
	expiresAt time.Time
}

func (r memoryRecord) live(now time.Time) bool {
	return r.expiresAt.IsZero() || now.Before(r.expiresAt)
}

// Memory is a process-local [Store] and [Swapper]. Expired values are
// dropped lazily on access.
type Memory struct {
	mu      sync.Mutex
	clock   clock.Clock
	records map[string]memoryRecord
}

// NewMemory returns an empty store. A nil clock uses the system clock.
func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.System{}
	}
	return &Memory{
		clock:   c,
		records: make(map[string]memoryRecord),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(rec.value), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(key, value, ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListKeys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	keys := make([]string, 0, len(m.records))
	for key, rec := range m.records {
		if !rec.live(now) {
			delete(m.records, key)
			continue
		}
		if hasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *Memory) CompareAndSwap(_ context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.lookup(key)
	if !matches(rec.value, ok, old) {
		return false, nil
	}
	m.put(key, next, ttl)
	return true, nil
}

func (m *Memory) CompareAndDelete(_ context.Context, key string, old []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.lookup(key)
	if !ok || !bytes.Equal(rec.value, old) {
		return false, nil
	}
	delete(m.records, key)
	return true, nil
}

// Len returns the number of live keys.
func (m *Memory) Len() int {
	keys, _ := m.ListKeys(context.Background(), "")
	return len(keys)
}

// lookup must be called with m.mu held.
func (m *Memory) lookup(key string) (memoryRecord, bool) {
	rec, ok := m.records[key]
	if !ok {
		return memoryRecord{}, false
	}
	if !rec.live(m.clock.Now()) {
		delete(m.records, key)
		return memoryRecord{}, false
	}
	return rec, true
}

// put must be called with m.mu held.
func (m *Memory) put(key string, value []byte, ttl time.Duration) {
	rec := memoryRecord{value: cloneBytes(value)}
	if ttl > 0 {
		rec.expiresAt = m.clock.Now().Add(ttl)
	}
	m.records[key] = rec
}

func matches(current []byte, found bool, old []byte) bool {
	if old == nil {
		return !found
	}
	return found && bytes.Equal(current, old)
}
