// Copyright 2025 Certen Protocol
//
// Provider Layer - blocking read interface over an archival chain node

package provider

import (
	"errors"
	"math/big"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Common errors
var (
	// ErrBlockNotFound is fatal at the location level: the archival node does
	// not have the requested block.
	ErrBlockNotFound = errors.New("block not found")
	// ErrNoProviderForChain is returned by the multiplexer for chain ids with
	// no configured endpoint or cache.
	ErrNoProviderForChain = errors.New("no provider for chain")
)

// TransientError marks a failure worth retrying (network hiccup, rate limit).
// Everything else a provider returns is fatal for the current location.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// BlockTag selects a block: a concrete number or the chain head.
type BlockTag struct {
	Number uint64
	Latest bool
}

// LatestBlock is the chain-head tag.
var LatestBlock = BlockTag{Latest: true}

// NumberTag selects block n.
func NumberTag(n uint64) BlockTag {
	return BlockTag{Number: n}
}

// StorageProof is one storage-slot branch of an EIP-1186 proof.
type StorageProof struct {
	Key   common.Hash     `json:"key"`
	Value *hexutil.Big    `json:"value"`
	Proof []hexutil.Bytes `json:"proof"`
}

// EIP1186Proof is the account proof plus per-key storage proofs returned by
// eth_getProof.
type EIP1186Proof struct {
	Address      common.Address  `json:"address"`
	AccountProof []hexutil.Bytes `json:"accountProof"`
	Balance      *hexutil.Big    `json:"balance"`
	CodeHash     common.Hash     `json:"codeHash"`
	Nonce        hexutil.Uint64  `json:"nonce"`
	StorageHash  common.Hash     `json:"storageHash"`
	StorageProof []StorageProof  `json:"storageProof"`
}

// BlockingProvider is the synchronous read interface the core consumes. The
// async edge is bridged inside implementations; callers never see a context.
// A missing block yields (nil, nil) from GetBlockHeader and ErrBlockNotFound
// from the state accessors.
type BlockingProvider interface {
	GetBlockHeader(tag BlockTag) (blockheader.EvmBlockHeader, error)
	GetTransactionCount(addr common.Address, block uint64) (uint64, error)
	GetBalance(addr common.Address, block uint64) (*big.Int, error)
	GetCode(addr common.Address, block uint64) ([]byte, error)
	GetStorageAt(addr common.Address, key common.Hash, block uint64) (common.Hash, error)
	GetProof(addr common.Address, storageKeys []common.Hash, block uint64) (*EIP1186Proof, error)
}
