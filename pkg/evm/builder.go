// Copyright 2025 Certen Protocol
//
// Witness Extraction
//
// At preflight end the recorded accesses of every environment are
// materialized: accounts and storage slots become sparse tries assembled from
// EIP-1186 proofs, bytecodes are listed by code hash, and ancestor headers
// cover the BLOCKHASH window actually used.

package evm

import (
	"fmt"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/mpt"
	"github.com/certen/offchain-prover/pkg/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// BuildMultiInput materializes one EvmInput per environment.
func BuildMultiInput(factory *EnvFactory) (MultiEvmInput, error) {
	multi := make(MultiEvmInput)
	for location, env := range factory.Environments() {
		chainProvider, err := factory.Providers().Get(location.ChainID)
		if err != nil {
			return nil, err
		}
		input, err := buildInput(env, chainProvider)
		if err != nil {
			return nil, fmt.Errorf("build witness for %s: %w", location, err)
		}
		multi[location] = input
	}
	return multi, nil
}

func buildInput(env *Env, chainProvider provider.BlockingProvider) (*EvmInput, error) {
	db := env.DB
	block := env.Location.BlockNumber

	var stateNodes [][]byte
	storageTries := make(map[common.Address]*mpt.Trie)
	contracts := make(map[common.Hash][]byte)

	for _, addr := range db.accessedAccounts() {
		slots := db.accessedSlots(addr)
		proof, err := chainProvider.GetProof(addr, slots, block)
		if err != nil {
			return nil, fmt.Errorf("get proof of %s: %w", addr, err)
		}
		for _, node := range proof.AccountProof {
			stateNodes = append(stateNodes, node)
		}
		if len(slots) > 0 {
			var storageNodes [][]byte
			for _, sp := range proof.StorageProof {
				for _, node := range sp.Proof {
					storageNodes = append(storageNodes, node)
				}
			}
			storageTrie, err := mpt.FromProofNodes(proof.StorageHash, storageNodes)
			if err != nil {
				return nil, fmt.Errorf("assemble storage trie of %s: %w", addr, err)
			}
			storageTries[addr] = storageTrie
		}
		if code := db.Code(addr); len(code) > 0 {
			contracts[crypto.Keccak256Hash(code)] = code
		}
	}

	stateTrie, err := mpt.FromProofNodes(env.Header.StateRoot(), stateNodes)
	if err != nil {
		return nil, fmt.Errorf("assemble state trie: %w", err)
	}

	ancestors, err := collectAncestors(env.Header, db.oldestAccessedBlock(), chainProvider)
	if err != nil {
		return nil, err
	}

	input := &EvmInput{
		Header:       env.Header,
		StateTrie:    stateTrie,
		StorageTries: storageTries,
		Contracts:    contracts,
		Ancestors:    ancestors,
	}
	input.AssertCoherency()
	return input, nil
}

// collectAncestors walks parent headers from header-1 down to oldest so the
// witness can answer every BLOCKHASH the execution issued.
func collectAncestors(header blockheader.EvmBlockHeader, oldest uint64, chainProvider provider.BlockingProvider) ([]blockheader.EvmBlockHeader, error) {
	var ancestors []blockheader.EvmBlockHeader
	parentHash := header.ParentHash()
	for number := header.Number(); number > oldest; number-- {
		ancestor, err := chainProvider.GetBlockHeader(provider.NumberTag(number - 1))
		if err != nil {
			return nil, fmt.Errorf("fetch ancestor %d: %w", number-1, err)
		}
		if ancestor == nil {
			return nil, fmt.Errorf("%w: ancestor %d", provider.ErrBlockNotFound, number-1)
		}
		if ancestor.Hash() != parentHash {
			return nil, fmt.Errorf("ancestor %d does not match parent hash %x", number-1, parentHash)
		}
		ancestors = append(ancestors, ancestor)
		parentHash = ancestor.ParentHash()
	}
	return ancestors, nil
}
