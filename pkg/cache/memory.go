package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemorySize is the entry capacity used when none is configured
const DefaultMemorySize = 1024

// MemoryAdapter is an in-process LRU adapter with optional expiry
type MemoryAdapter struct {
	cache *lru.LRU[string, []string]
}

// NewMemoryAdapter creates a memory adapter. A zero ttl disables expiry.
func NewMemoryAdapter(size int, ttl time.Duration) *MemoryAdapter {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &MemoryAdapter{
		cache: lru.NewLRU[string, []string](size, nil, ttl),
	}
}

// Get returns a cached value
func (m *MemoryAdapter) Get(_ context.Context, key string) ([]string, bool, error) {
	if key == "" {
		return nil, false, ErrInvalidKey
	}
	value, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), value...), true, nil
}

// Set stores a copy of value
func (m *MemoryAdapter) Set(_ context.Context, key string, value []string) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.cache.Add(key, append([]string(nil), value...))
	return nil
}

// Clear drops every entry
func (m *MemoryAdapter) Clear(_ context.Context) error {
	m.cache.Purge()
	return nil
}

// ClearByPrefixes drops the entries of the given scopes
func (m *MemoryAdapter) ClearByPrefixes(_ context.Context, prefixes ...string) error {
	for _, key := range m.cache.Keys() {
		if hasScope(key, prefixes) {
			m.cache.Remove(key)
		}
	}
	return nil
}

// Len returns the number of cached entries
func (m *MemoryAdapter) Len() int {
	return m.cache.Len()
}
