// Copyright 2025 Certen Protocol
//
// RPC Response Cache
//
// Insert-only map from (method, args) to the canonicalized JSON response.
// A preflight recorded into a cache file is replayable without a node, which
// is how the integration fixtures work.

package provider

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Cache stores canonicalized responses keyed by "method(argsJSON)". Writes
// are idempotent: concurrent preflights may store the same entry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]json.RawMessage)}
}

// LoadCache reads a cache file written by Save.
func LoadCache(path string) (*Cache, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rpc cache %s: %w", path, err)
	}
	entries := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse rpc cache %s: %w", path, err)
	}
	return &Cache{entries: entries}, nil
}

// cacheKey canonicalizes a method invocation.
func cacheKey(method string, args ...interface{}) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		// Arguments are addresses, hashes and integers; this cannot fail.
		panic(err)
	}
	return fmt.Sprintf("%s(%s)", method, encoded)
}

// get decodes the cached response for key into out.
func (c *Cache) get(key string, out interface{}) (bool, error) {
	c.mu.RLock()
	raw, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return true, nil
}

// put stores the canonical JSON form of value under key.
func (c *Cache) put(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to canonicalize response for %s: %w", key, err)
	}
	c.mu.Lock()
	c.entries[key] = raw
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Save writes the cache to path as a JSON object.
func (c *Cache) Save(path string) error {
	c.mu.RLock()
	raw, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
