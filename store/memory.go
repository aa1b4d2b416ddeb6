package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is a process-local KV for tests and single-process deployments.
// Increments are serialized by the mutex, so they are atomic within one
// process only. Running multiple processes against their own Memory stores
// splits the counters; use Redis for shared accounting.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source. Tests use it to cross TTL and
// calendar boundaries without sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) getLocked(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// Read implements KV.
func (m *Memory) Read(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.getLocked(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

// Write implements KV.
func (m *Memory) Write(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: m.expiry(ttl)}
	return nil
}

// Exists implements KV.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.getLocked(key)
	return ok, nil
}

// Increment implements KV. The TTL applies only when the key is created,
// matching Redis counter semantics.
func (m *Memory) Increment(_ context.Context, key string, amount float64, ttl time.Duration) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := 0.0
	expiresAt := m.expiry(ttl)
	if e, ok := m.getLocked(key); ok {
		parsed, err := strconv.ParseFloat(e.value, 64)
		if err == nil {
			current = parsed
		}
		expiresAt = e.expiresAt
	}

	current += amount
	m.entries[key] = memoryEntry{
		value:     strconv.FormatFloat(current, 'f', -1, 64),
		expiresAt: expiresAt,
	}
	return current, nil
}

// SetNX implements KV.
func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.getLocked(key); ok {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: m.expiry(ttl)}
	return true, nil
}

// Delete implements KV.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}
