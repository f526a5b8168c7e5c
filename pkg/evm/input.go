// Copyright 2025 Certen Protocol
//
// EVM Witness Input
//
// EvmInput is the serializable witness for one execution location: the block
// header, the sparse state trie covering every accessed account, one sparse
// storage trie per accessed contract, the accessed bytecodes, and the chain
// of ancestor headers needed to answer BLOCKHASH. MultiEvmInput maps each
// referenced location to its witness.

package evm

import (
	"fmt"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/mpt"
	"github.com/ethereum/go-ethereum/common"
)

// EvmInput is the per-location witness.
type EvmInput struct {
	Header       blockheader.EvmBlockHeader
	StateTrie    *mpt.Trie
	StorageTries map[common.Address]*mpt.Trie
	Contracts    map[common.Hash][]byte
	Ancestors    []blockheader.EvmBlockHeader
}

// BlockHashes returns every block hash the witness commits to: the execution
// header plus each ancestor.
func (in *EvmInput) BlockHashes() map[uint64]common.Hash {
	hashes := map[uint64]common.Hash{in.Header.Number(): in.Header.Hash()}
	for _, ancestor := range in.Ancestors {
		hashes[ancestor.Number()] = ancestor.Hash()
	}
	return hashes
}

// AssertCoherency panics unless the witness is internally consistent: the
// state trie must hash to the header's state root and the ancestors must form
// a parent-hash chain terminating at the header. An incoherent witness means
// the provider lied or a trie is corrupt; that is a bug, not an input error.
func (in *EvmInput) AssertCoherency() {
	in.assertStateRootCoherency()
	in.assertAncestorCoherency()
}

func (in *EvmInput) assertStateRootCoherency() {
	if root := in.StateTrie.Hash(); root != in.Header.StateRoot() {
		panic(fmt.Sprintf("state root mismatch: trie %x, header %x at block %d", root, in.Header.StateRoot(), in.Header.Number()))
	}
}

func (in *EvmInput) assertAncestorCoherency() {
	previous := in.Header
	for _, ancestor := range in.Ancestors {
		if hash := ancestor.Hash(); hash != previous.ParentHash() {
			panic(fmt.Sprintf("invalid chain: block %d is not the parent of block %d", ancestor.Number(), previous.Number()))
		}
		previous = ancestor
	}
}

// MultiEvmInput holds exactly one witness per referenced location.
type MultiEvmInput map[ExecutionLocation]*EvmInput

// AssertCoherency checks every location's witness.
func (m MultiEvmInput) AssertCoherency() {
	for _, input := range m {
		input.AssertCoherency()
	}
}

// BlocksByChain groups the committed (block number, block hash) pairs per
// chain id, for the chain-proof verifier.
func (m MultiEvmInput) BlocksByChain() map[uint64]map[uint64]common.Hash {
	blocks := make(map[uint64]map[uint64]common.Hash)
	for loc, input := range m {
		chainBlocks := blocks[loc.ChainID]
		if chainBlocks == nil {
			chainBlocks = make(map[uint64]common.Hash)
			blocks[loc.ChainID] = chainBlocks
		}
		chainBlocks[loc.BlockNumber] = input.Header.Hash()
	}
	return blocks
}

// ContainsTimeTravel reports whether any chain is executed at more than one
// block.
func (m MultiEvmInput) ContainsTimeTravel() bool {
	perChain := make(map[uint64]int)
	for loc := range m {
		perChain[loc.ChainID]++
		if perChain[loc.ChainID] > 1 {
			return true
		}
	}
	return false
}

// ContainsTeleport reports whether more than one chain is referenced.
func (m MultiEvmInput) ContainsTeleport() bool {
	var first *uint64
	for loc := range m {
		if first == nil {
			id := loc.ChainID
			first = &id
		} else if *first != loc.ChainID {
			return true
		}
	}
	return false
}
