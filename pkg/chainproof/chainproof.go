// Copyright 2025 Certen Protocol
//
// Chain Proofs
//
// A chain proof pairs a zk receipt with the block trie it commits: the
// receipt journal decodes to the trie root and the chain guest id that
// produced it.

package chainproof

import (
	"encoding/json"
	"fmt"

	"github.com/certen/offchain-prover/pkg/mpt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// journalSize is the decoded journal shape: 32-byte root hash plus 32-byte
// guest id.
const journalSize = 64

// ChainProof is what callers consume: a serialized zk receipt plus the block
// trie it proves.
type ChainProof struct {
	Proof     hexutil.Bytes
	BlockTrie *mpt.BlockTrie
}

// EncodeJournal packs the guest commitment.
func EncodeJournal(rootHash common.Hash, guestID common.Hash) []byte {
	journal := make([]byte, 0, journalSize)
	journal = append(journal, rootHash[:]...)
	return append(journal, guestID[:]...)
}

// DecodeJournal unpacks (root hash, guest id).
func DecodeJournal(journal []byte) (common.Hash, common.Hash, error) {
	if len(journal) != journalSize {
		return common.Hash{}, common.Hash{}, fmt.Errorf("journal decoding error: %d bytes, want %d", len(journal), journalSize)
	}
	return common.BytesToHash(journal[:32]), common.BytesToHash(journal[32:]), nil
}

// chainProofJSON is the wire form used by v_getChainProof.
type chainProofJSON struct {
	Proof    hexutil.Bytes   `json:"proof"`
	RootHash common.Hash     `json:"root_hash"`
	Nodes    []hexutil.Bytes `json:"nodes"`
}

func (p *ChainProof) MarshalJSON() ([]byte, error) {
	encoded := chainProofJSON{Proof: p.Proof, RootHash: p.BlockTrie.Hash()}
	for _, node := range p.BlockTrie.RLPNodes() {
		encoded.Nodes = append(encoded.Nodes, node)
	}
	return json.Marshal(&encoded)
}

func (p *ChainProof) UnmarshalJSON(raw []byte) error {
	var decoded chainProofJSON
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	nodes := make([][]byte, len(decoded.Nodes))
	for i, node := range decoded.Nodes {
		nodes[i] = node
	}
	trie, err := mpt.BlockTrieFromProofNodes(decoded.RootHash, nodes)
	if err != nil {
		return fmt.Errorf("failed to reassemble block trie: %w", err)
	}
	p.Proof = decoded.Proof
	p.BlockTrie = trie
	return nil
}
