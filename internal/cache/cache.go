// Package cache provides a content-addressed cache for simulation results.
// Keys hash every input of a pure simulation call, seed included, so a hit
// is byte-for-byte equivalent to rerunning the call.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// Cache stores serialized results under content-derived keys.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
}

// Key derives the content address of a call from its inputs: a SHA-256 over
// the JSON encoding of the argument list. Arguments must be JSON-encodable
// value types.
func Key(parts ...any) (string, error) {
	payload, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// MemoryCache is a process-local cache safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (c *MemoryCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries[key] = stored
	return nil
}
