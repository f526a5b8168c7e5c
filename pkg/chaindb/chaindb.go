// Copyright 2025 Certen Protocol
//
// Chain Database
//
// Persistent store for the chain indexer: a `nodes` table mapping Keccak
// hashes to RLP-encoded trie nodes and a `chains` table mapping big-endian
// chain ids to RLP-encoded ChainInfo. Reads may run concurrently; writes are
// serialized behind a single writer lock and commit all-or-nothing.

package chaindb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/certen/offchain-prover/pkg/mpt"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	nodesPrefix  = []byte("nodes/")
	chainsPrefix = []byte("chains/")
)

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrBlockNotFound = errors.New("block not found")
)

// ChainInfo is the persisted indexer state for one chain.
type ChainInfo struct {
	FirstBlock uint64
	LastBlock  uint64
	RootHash   common.Hash
	ZkProof    []byte
}

// BlockRange returns the indexed [first, last] range.
func (info *ChainInfo) BlockRange() (uint64, uint64) {
	return info.FirstBlock, info.LastBlock
}

// ChainTrie is a chain's pruned block trie: enough nodes to read and extend
// both ends of the indexed range.
type ChainTrie struct {
	FirstBlock uint64
	LastBlock  uint64
	Trie       *mpt.BlockTrie
	ZkProof    []byte
}

// ChainUpdate is one atomic transition of a chain's persisted state.
type ChainUpdate struct {
	Info         ChainInfo
	AddedNodes   [][]byte
	RemovedNodes [][]byte
}

// ChainDB wraps the KV store with the two tables.
type ChainDB struct {
	writeMu sync.Mutex
	db      dbm.DB
}

// New wraps an open KV store.
func New(db dbm.DB) *ChainDB {
	return &ChainDB{db: db}
}

// Open creates or opens a GoLevelDB-backed chain database under dir.
func Open(dir string) (*ChainDB, error) {
	db, err := dbm.NewDB("chaindb", dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain db: %w", err)
	}
	return New(db), nil
}

// Close releases the underlying store.
func (c *ChainDB) Close() error {
	return c.db.Close()
}

func chainKey(chainID uint64) []byte {
	key := make([]byte, len(chainsPrefix)+8)
	copy(key, chainsPrefix)
	binary.BigEndian.PutUint64(key[len(chainsPrefix):], chainID)
	return key
}

func nodeKey(hash common.Hash) []byte {
	return append(append([]byte{}, nodesPrefix...), hash[:]...)
}

// GetChainInfo reads a chain's persisted state; nil when the chain has not
// been initialized.
func (c *ChainDB) GetChainInfo(chainID uint64) (*ChainInfo, error) {
	raw, err := c.db.Get(chainKey(chainID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	info := new(ChainInfo)
	if err := rlp.DecodeBytes(raw, info); err != nil {
		return nil, fmt.Errorf("corrupt chain info for chain %d: %w", chainID, err)
	}
	return info, nil
}

// GetNode reads one trie node by hash.
func (c *ChainDB) GetNode(hash common.Hash) ([]byte, error) {
	raw, err := c.db.Get(nodeKey(hash))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %x", ErrNodeNotFound, hash)
	}
	return raw, nil
}

// GetMerkleProof builds the minimum proof for blockNum under the trie rooted
// at rootHash.
func (c *ChainDB) GetMerkleProof(rootHash common.Hash, blockNum uint64) ([][]byte, error) {
	key, err := rlp.EncodeToBytes(blockNum)
	if err != nil {
		return nil, err
	}
	return mpt.WalkProof(rootHash, key, c.GetNode)
}

// GetChainTrie reconstructs a chain's pruned block trie from the minimum
// proofs of its leftmost and rightmost blocks.
func (c *ChainDB) GetChainTrie(chainID uint64) (*ChainTrie, error) {
	info, err := c.GetChainInfo(chainID)
	if err != nil || info == nil {
		return nil, err
	}
	firstProof, err := c.GetMerkleProof(info.RootHash, info.FirstBlock)
	if err != nil {
		return nil, err
	}
	lastProof, err := c.GetMerkleProof(info.RootHash, info.LastBlock)
	if err != nil {
		return nil, err
	}
	trie, err := mpt.BlockTrieFromProofNodes(info.RootHash, append(firstProof, lastProof...))
	if err != nil {
		return nil, err
	}
	return &ChainTrie{
		FirstBlock: info.FirstBlock,
		LastBlock:  info.LastBlock,
		Trie:       trie,
		ZkProof:    info.ZkProof,
	}, nil
}

// UpdateChain commits one chain transition atomically: the new chain info,
// the added nodes, and the removal of nodes the transition obsoleted.
func (c *ChainDB) UpdateChain(chainID uint64, update ChainUpdate) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	batch := c.db.NewBatch()
	defer batch.Close()

	info, err := rlp.EncodeToBytes(&update.Info)
	if err != nil {
		return err
	}
	if err := batch.Set(chainKey(chainID), info); err != nil {
		return err
	}
	for _, node := range update.AddedNodes {
		if err := batch.Set(nodeKey(crypto.Keccak256Hash(node)), node); err != nil {
			return err
		}
	}
	for _, node := range update.RemovedNodes {
		if err := batch.Delete(nodeKey(crypto.Keccak256Hash(node))); err != nil {
			return err
		}
	}
	return batch.WriteSync()
}
