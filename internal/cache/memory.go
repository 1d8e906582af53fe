package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider used for tests and single-node
// local runs where a Valkey cluster is not available.
type MemoryProvider struct {
	mu    sync.RWMutex
	items map[string]memoryItem
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider constructs an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{items: make(map[string]memoryItem)}
}

// Get returns the cached value or ErrCacheMiss when absent or expired.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	item, ok := p.items[key]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		p.mu.Lock()
		delete(p.items, key)
		p.mu.Unlock()
		return nil, ErrCacheMiss
	}
	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, nil
}

// Set stores the value with an optional TTL; ttl <= 0 means no expiry.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: make([]byte, len(value))}
	copy(item.value, value)
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.items[key] = item
	p.mu.Unlock()
	return nil
}

// Del removes a key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.items, key)
	p.mu.Unlock()
	return nil
}

// Close releases nothing for the in-memory cache.
func (p *MemoryProvider) Close() error { return nil }
