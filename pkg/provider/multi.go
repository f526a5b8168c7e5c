// Copyright 2025 Certen Protocol
//
// Multi-Chain Provider Multiplexer

package provider

import (
	"fmt"
	"sync"
)

// CachedMultiProvider maps chain ids to cached providers. Lookups for a chain
// with neither an endpoint nor a recorded cache fail; teleport destinations
// must be configured up front.
type CachedMultiProvider struct {
	mu        sync.RWMutex
	providers map[uint64]*CachedProvider
	dial      func(chainID uint64) (BlockingProvider, error)
}

// NewCachedMultiProvider builds a multiplexer from pre-constructed providers.
func NewCachedMultiProvider(providers map[uint64]*CachedProvider) *CachedMultiProvider {
	if providers == nil {
		providers = make(map[uint64]*CachedProvider)
	}
	return &CachedMultiProvider{providers: providers}
}

// NewDialingMultiProvider builds providers lazily through dial, wrapping each
// in a fresh cache.
func NewDialingMultiProvider(dial func(chainID uint64) (BlockingProvider, error)) *CachedMultiProvider {
	return &CachedMultiProvider{
		providers: make(map[uint64]*CachedProvider),
		dial:      dial,
	}
}

// Get returns the provider for chainID.
func (m *CachedMultiProvider) Get(chainID uint64) (*CachedProvider, error) {
	m.mu.RLock()
	p, ok := m.providers[chainID]
	m.mu.RUnlock()
	if ok {
		return p, nil
	}
	if m.dial == nil {
		return nil, fmt.Errorf("%w: No rpc cache for chain: %d", ErrNoProviderForChain, chainID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.providers[chainID]; ok {
		return p, nil
	}
	inner, err := m.dial(chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: No rpc cache for chain: %d", ErrNoProviderForChain, chainID)
	}
	p = NewCachedProvider(inner, NewCache())
	m.providers[chainID] = p
	return p, nil
}

// ChainIDs returns the configured chain ids.
func (m *CachedMultiProvider) ChainIDs() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint64, 0, len(m.providers))
	for id := range m.providers {
		ids = append(ids, id)
	}
	return ids
}
