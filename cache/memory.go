// Package cache provides caching implementations for access lookup results.
package cache

import (
	"context"
	"sync"

	access "github.com/shanliu/lsys-access"
)

// Compile-time interface check.
var _ access.Cache = (*Memory)(nil)

// Memory is an in-memory keyed cache. Entries carry no TTL: staleness is
// bounded by the engine's invalidation discipline, not by time. A size cap
// keeps the map from growing without bound.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]any
	maxSize int
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]any),
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached value for key.
func (m *Memory) Get(_ context.Context, key string) (any, bool) {
	m.mu.RLock()
	v, ok := m.entries[key]
	m.mu.RUnlock()
	return v, ok
}

// Set stores a value under key.
func (m *Memory) Set(_ context.Context, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict if at capacity.
	if len(m.entries) >= m.maxSize {
		if _, exists := m.entries[key]; !exists {
			m.evictOne()
		}
	}
	m.entries[key] = value
}

// Clear removes the entry for key. Clearing an absent key is a no-op, so
// repeated or out-of-order invalidation deliveries are harmless.
func (m *Memory) Clear(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len reports the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// evictOne removes one arbitrary entry. Must hold write lock.
func (m *Memory) evictOne() {
	for k := range m.entries {
		delete(m.entries, k)
		return
	}
}
