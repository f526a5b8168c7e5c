// Copyright 2025 Certen Protocol
//
// Provider Layer Tests

package provider

import (
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// stubProvider counts calls so tests can observe cache hits.
type stubProvider struct {
	calls int
}

func (s *stubProvider) GetBlockHeader(tag BlockTag) (blockheader.EvmBlockHeader, error) {
	s.calls++
	if tag.Latest {
		return blockheader.NewEthBlockHeader(&types.Header{Number: big.NewInt(100), Difficulty: big.NewInt(0)}), nil
	}
	if tag.Number > 100 {
		return nil, nil
	}
	return blockheader.NewEthBlockHeader(&types.Header{Number: new(big.Int).SetUint64(tag.Number), Difficulty: big.NewInt(0)}), nil
}

func (s *stubProvider) GetTransactionCount(common.Address, uint64) (uint64, error) {
	s.calls++
	return 7, nil
}

func (s *stubProvider) GetBalance(common.Address, uint64) (*big.Int, error) {
	s.calls++
	return big.NewInt(1_000_000), nil
}

func (s *stubProvider) GetCode(common.Address, uint64) ([]byte, error) {
	s.calls++
	return []byte{0x60, 0x01}, nil
}

func (s *stubProvider) GetStorageAt(_ common.Address, key common.Hash, _ uint64) (common.Hash, error) {
	s.calls++
	return key, nil
}

func (s *stubProvider) GetProof(addr common.Address, _ []common.Hash, _ uint64) (*EIP1186Proof, error) {
	s.calls++
	return &EIP1186Proof{Address: addr, Nonce: 7}, nil
}

func TestCachedProviderServesFromCache(t *testing.T) {
	stub := &stubProvider{}
	cached := NewCachedProvider(stub, NewCache())
	addr := common.HexToAddress("0x01")

	for i := 0; i < 3; i++ {
		nonce, err := cached.GetTransactionCount(addr, 42)
		if err != nil {
			t.Fatalf("get nonce: %v", err)
		}
		if nonce != 7 {
			t.Errorf("nonce: got %d, want 7", nonce)
		}
	}
	if stub.calls != 1 {
		t.Errorf("inner provider called %d times, want 1", stub.calls)
	}
}

func TestCachedProviderRecordsMissingBlock(t *testing.T) {
	stub := &stubProvider{}
	cached := NewCachedProvider(stub, NewCache())

	for i := 0; i < 2; i++ {
		header, err := cached.GetBlockHeader(NumberTag(999))
		if err != nil {
			t.Fatalf("get header: %v", err)
		}
		if header != nil {
			t.Fatal("expected missing block")
		}
	}
	if stub.calls != 1 {
		t.Errorf("missing block fetched %d times, want 1", stub.calls)
	}
}

// A recorded cache file must replay a preflight with no provider at all.
func TestCacheFileReplay(t *testing.T) {
	stub := &stubProvider{}
	recording := NewCachedProvider(stub, NewCache())
	addr := common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")

	if _, err := recording.GetBalance(addr, 19_493_153); err != nil {
		t.Fatalf("record balance: %v", err)
	}
	header, err := recording.GetBlockHeader(NumberTag(19_493_153))
	if err != nil {
		t.Fatalf("record header: %v", err)
	}

	path := filepath.Join(t.TempDir(), "rpc_cache.json")
	if err := recording.Cache().Save(path); err != nil {
		t.Fatalf("save cache: %v", err)
	}
	cache, err := LoadCache(path)
	if err != nil {
		t.Fatalf("load cache: %v", err)
	}

	replay := NewCachedProvider(nil, cache)
	balance, err := replay.GetBalance(addr, 19_493_153)
	if err != nil {
		t.Fatalf("replay balance: %v", err)
	}
	if balance.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("replayed balance: got %v", balance)
	}
	replayed, err := replay.GetBlockHeader(NumberTag(19_493_153))
	if err != nil {
		t.Fatalf("replay header: %v", err)
	}
	if replayed.Hash() != header.Hash() {
		t.Errorf("replayed header hash mismatch: got %x, want %x", replayed.Hash(), header.Hash())
	}

	// Anything not recorded must fail loudly.
	if _, err := replay.GetBalance(addr, 1); err == nil || !strings.Contains(err.Error(), "cache miss") {
		t.Errorf("expected cache miss error, got %v", err)
	}
}

func TestMultiProviderUnknownChain(t *testing.T) {
	multi := NewCachedMultiProvider(map[uint64]*CachedProvider{
		1: NewCachedProvider(&stubProvider{}, NewCache()),
	})
	if _, err := multi.Get(1); err != nil {
		t.Fatalf("configured chain: %v", err)
	}
	_, err := multi.Get(42_161)
	if !errors.Is(err, ErrNoProviderForChain) {
		t.Fatalf("expected ErrNoProviderForChain, got %v", err)
	}
	if want := "No rpc cache for chain: 42161"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not contain %q", err, want)
	}
}
