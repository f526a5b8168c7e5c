// Copyright 2025 Certen Protocol
//
// Caching Provider

package provider

import (
	"fmt"
	"math/big"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CachedProvider layers a response cache over an inner provider. With a nil
// inner provider it replays a recorded cache file and fails on anything the
// recording did not cover, which keeps the preflight reproducible offline.
type CachedProvider struct {
	inner BlockingProvider
	cache *Cache
}

// NewCachedProvider wraps inner with cache. inner may be nil for pure replay.
func NewCachedProvider(inner BlockingProvider, cache *Cache) *CachedProvider {
	if cache == nil {
		cache = NewCache()
	}
	return &CachedProvider{inner: inner, cache: cache}
}

// Cache exposes the underlying cache (for saving recordings).
func (p *CachedProvider) Cache() *Cache {
	return p.cache
}

func (p *CachedProvider) missEntry(key string) error {
	return fmt.Errorf("rpc cache miss with no provider: %s", key)
}

// cachedHeader is the serialized form of a header cache entry; a null entry
// records a missing block.
type cachedHeader struct {
	Header []byte `json:"header"`
}

func (p *CachedProvider) GetBlockHeader(tag BlockTag) (blockheader.EvmBlockHeader, error) {
	key := cacheKey("eth_getBlockByNumber", tag)
	var entry cachedHeader
	if ok, err := p.cache.get(key, &entry); err != nil {
		return nil, err
	} else if ok {
		if entry.Header == nil {
			return nil, nil
		}
		return blockheader.UnmarshalHeader(entry.Header)
	}
	if p.inner == nil {
		return nil, p.missEntry(key)
	}
	header, err := p.inner.GetBlockHeader(tag)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, p.cache.put(key, cachedHeader{})
	}
	raw, err := blockheader.MarshalHeader(header)
	if err != nil {
		return nil, err
	}
	if err := p.cache.put(key, cachedHeader{Header: raw}); err != nil {
		return nil, err
	}
	return header, nil
}

func (p *CachedProvider) GetTransactionCount(addr common.Address, block uint64) (uint64, error) {
	key := cacheKey("eth_getTransactionCount", addr, block)
	var nonce hexutil.Uint64
	if ok, err := p.cache.get(key, &nonce); err != nil {
		return 0, err
	} else if ok {
		return uint64(nonce), nil
	}
	if p.inner == nil {
		return 0, p.missEntry(key)
	}
	value, err := p.inner.GetTransactionCount(addr, block)
	if err != nil {
		return 0, err
	}
	return value, p.cache.put(key, hexutil.Uint64(value))
}

func (p *CachedProvider) GetBalance(addr common.Address, block uint64) (*big.Int, error) {
	key := cacheKey("eth_getBalance", addr, block)
	var balance hexutil.Big
	if ok, err := p.cache.get(key, &balance); err != nil {
		return nil, err
	} else if ok {
		return balance.ToInt(), nil
	}
	if p.inner == nil {
		return nil, p.missEntry(key)
	}
	value, err := p.inner.GetBalance(addr, block)
	if err != nil {
		return nil, err
	}
	return value, p.cache.put(key, (*hexutil.Big)(value))
}

func (p *CachedProvider) GetCode(addr common.Address, block uint64) ([]byte, error) {
	key := cacheKey("eth_getCode", addr, block)
	var code hexutil.Bytes
	if ok, err := p.cache.get(key, &code); err != nil {
		return nil, err
	} else if ok {
		return code, nil
	}
	if p.inner == nil {
		return nil, p.missEntry(key)
	}
	value, err := p.inner.GetCode(addr, block)
	if err != nil {
		return nil, err
	}
	return value, p.cache.put(key, hexutil.Bytes(value))
}

func (p *CachedProvider) GetStorageAt(addr common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	key := cacheKey("eth_getStorageAt", addr, slot, block)
	var value common.Hash
	if ok, err := p.cache.get(key, &value); err != nil {
		return common.Hash{}, err
	} else if ok {
		return value, nil
	}
	if p.inner == nil {
		return common.Hash{}, p.missEntry(key)
	}
	fetched, err := p.inner.GetStorageAt(addr, slot, block)
	if err != nil {
		return common.Hash{}, err
	}
	return fetched, p.cache.put(key, fetched)
}

func (p *CachedProvider) GetProof(addr common.Address, storageKeys []common.Hash, block uint64) (*EIP1186Proof, error) {
	key := cacheKey("eth_getProof", addr, storageKeys, block)
	var proof EIP1186Proof
	if ok, err := p.cache.get(key, &proof); err != nil {
		return nil, err
	} else if ok {
		return &proof, nil
	}
	if p.inner == nil {
		return nil, p.missEntry(key)
	}
	fetched, err := p.inner.GetProof(addr, storageKeys, block)
	if err != nil {
		return nil, err
	}
	return fetched, p.cache.put(key, fetched)
}
