// Copyright 2025 Certen Protocol
//
// Block Trie - block-number -> block-hash Merkle-Patricia trie

package mpt

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

var ErrBlockNotInTrie = errors.New("block not present in trie")

// BlockTrie is the trie specialization used by the chain indexer and the
// chain-proof verifier: keys are RLP-encoded block numbers, values are block
// hashes. Range bookkeeping (append/prepend only) belongs to the callers; the
// trie itself enforces just the key/value shape.
type BlockTrie struct {
	trie *Trie
}

// NewBlockTrie returns an empty block trie.
func NewBlockTrie() *BlockTrie {
	return &BlockTrie{trie: New()}
}

// BlockTrieFromProofNodes reassembles a pruned block trie from proof nodes.
func BlockTrieFromProofNodes(root common.Hash, nodes [][]byte) (*BlockTrie, error) {
	trie, err := FromProofNodes(root, nodes)
	if err != nil {
		return nil, err
	}
	return &BlockTrie{trie: trie}, nil
}

// blockKey is RLP(block number): the canonical minimal big-endian integer.
func blockKey(number uint64) []byte {
	key, _ := rlp.EncodeToBytes(number)
	return key
}

// Insert stores the hash of block number. The caller is responsible for
// keeping insertions contiguous with the indexed range.
func (b *BlockTrie) Insert(number uint64, hash common.Hash) error {
	return b.trie.Insert(blockKey(number), hash.Bytes())
}

// Get returns the hash stored for block number.
func (b *BlockTrie) Get(number uint64) (common.Hash, error) {
	value, err := b.trie.Get(blockKey(number))
	if err != nil {
		return common.Hash{}, err
	}
	if value == nil {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrBlockNotInTrie, number)
	}
	if len(value) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %d byte value for block %d", ErrMalformedNode, len(value), number)
	}
	return common.BytesToHash(value), nil
}

// Hash returns the trie root hash.
func (b *BlockTrie) Hash() common.Hash {
	return b.trie.Hash()
}

// Prove returns the minimum proof for block number.
func (b *BlockTrie) Prove(number uint64) ([][]byte, error) {
	return b.trie.Prove(blockKey(number))
}

// RLPNodes returns the encodings of all resolved nodes.
func (b *BlockTrie) RLPNodes() [][]byte {
	return b.trie.RLPNodes()
}

// Size returns the number of resolved nodes.
func (b *BlockTrie) Size() int {
	return b.trie.Size()
}
