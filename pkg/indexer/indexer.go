// Copyright 2025 Certen Protocol
//
// Chain Indexer
//
// An out-of-band polling service that maintains a proven block trie per
// chain. The first poll initializes a one-element trie at the chain head;
// every later poll appends confirmed head blocks and prepends towards
// genesis under the strategy's bounds, proves the new root, and commits the
// transition atomically.

package indexer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/chaindb"
	"github.com/certen/offchain-prover/pkg/chainproof"
	"github.com/certen/offchain-prover/pkg/mpt"
	"github.com/certen/offchain-prover/pkg/provider"
	"github.com/certen/offchain-prover/pkg/zk"
	"github.com/ethereum/go-ethereum/common"
)

// ChainProver produces the receipt committing a block-trie root; the fake
// implementation serves dev mode, production wires the external engine.
type ChainProver interface {
	Prove(journal []byte) (*zk.Receipt, error)
}

// FakeChainProver emits FAKE receipts under the configured chain guest id.
type FakeChainProver struct {
	ChainGuestID common.Hash
}

func (p FakeChainProver) Prove(journal []byte) (*zk.Receipt, error) {
	return zk.NewFakeReceipt(p.ChainGuestID, journal), nil
}

// Indexer drives one chain's block trie.
type Indexer struct {
	db           *chaindb.ChainDB
	provider     provider.BlockingProvider
	prover       ChainProver
	chainID      uint64
	chainGuestID common.Hash
	strategy     Strategy
}

// New wires an indexer for chainID.
func New(db *chaindb.ChainDB, p provider.BlockingProvider, prover ChainProver, chainID uint64, chainGuestID common.Hash, strategy Strategy) *Indexer {
	return &Indexer{
		db:           db,
		provider:     p,
		prover:       prover,
		chainID:      chainID,
		chainGuestID: chainGuestID,
		strategy:     strategy,
	}
}

// Run polls until the context is cancelled.
func (ix *Indexer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := ix.PollCommit(); err != nil {
			log.Printf("[indexer] chain %d poll failed: %v", ix.chainID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollCommit performs one poll and persists its transition.
func (ix *Indexer) PollCommit() error {
	update, err := ix.poll()
	if err != nil {
		return err
	}
	if update == nil {
		return nil
	}
	return ix.db.UpdateChain(ix.chainID, *update)
}

func (ix *Indexer) poll() (*chaindb.ChainUpdate, error) {
	info, err := ix.db.GetChainInfo(ix.chainID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return ix.initialize()
	}
	return ix.appendPrepend()
}

// initialize indexes the current chain head as a one-element trie.
func (ix *Indexer) initialize() (*chaindb.ChainUpdate, error) {
	latest, err := ix.latestHeader()
	if err != nil {
		return nil, err
	}
	log.Printf("[indexer] initializing chain %d at block %d", ix.chainID, latest.Number())

	trie := mpt.NewBlockTrie()
	if err := trie.Insert(latest.Number(), latest.Hash()); err != nil {
		return nil, err
	}
	return ix.buildUpdate(latest.Number(), latest.Number(), trie, nil)
}

// appendPrepend extends the indexed range per the strategy, proving
// continuity through parent hashes on both ends.
func (ix *Indexer) appendPrepend() (*chaindb.ChainUpdate, error) {
	chainTrie, err := ix.db.GetChainTrie(ix.chainID)
	if err != nil {
		return nil, err
	}
	if chainTrie == nil {
		return nil, fmt.Errorf("chain %d trie missing after initialization", ix.chainID)
	}
	latest, err := ix.latestHeader()
	if err != nil {
		return nil, err
	}

	plan := ix.strategy.Plan(chainTrie.FirstBlock, chainTrie.LastBlock, latest.Number())
	if plan.Append.Empty() && plan.Prepend.Empty() {
		return nil, nil
	}
	log.Printf("[indexer] chain %d: append %d blocks, prepend %d blocks", ix.chainID, plan.Append.Len(), plan.Prepend.Len())

	oldNodes := chainTrie.Trie.RLPNodes()
	trie := chainTrie.Trie

	if !plan.Append.Empty() {
		if err := ix.appendBlocks(trie, chainTrie.LastBlock, plan.Append); err != nil {
			return nil, err
		}
	}
	if !plan.Prepend.Empty() {
		if err := ix.prependBlocks(trie, chainTrie.FirstBlock, plan.Prepend); err != nil {
			return nil, err
		}
	}
	return ix.buildUpdate(plan.NewFirst, plan.NewLast, trie, oldNodes)
}

// appendBlocks inserts blocks (last, append.To], checking each header's
// parent hash against the previous block.
func (ix *Indexer) appendBlocks(trie *mpt.BlockTrie, last uint64, blocks Range) error {
	previousHash, err := trie.Get(last)
	if err != nil {
		return err
	}
	for number := blocks.From; number <= blocks.To; number++ {
		header, err := ix.headerByNumber(number)
		if err != nil {
			return err
		}
		if header.ParentHash() != previousHash {
			return fmt.Errorf("append discontinuity at block %d: parent %x, indexed %x", number, header.ParentHash(), previousHash)
		}
		if err := trie.Insert(number, header.Hash()); err != nil {
			return err
		}
		previousHash = header.Hash()
	}
	return nil
}

// prependBlocks inserts blocks [prepend.From, first), walking parent hashes
// down from the old leftmost block so the trie update proves continuity.
func (ix *Indexer) prependBlocks(trie *mpt.BlockTrie, first uint64, prepend Range) error {
	// The old leftmost header anchors the downward walk.
	leftmost, err := ix.headerByNumber(first)
	if err != nil {
		return err
	}
	indexedHash, err := trie.Get(first)
	if err != nil {
		return err
	}
	if leftmost.Hash() != indexedHash {
		return fmt.Errorf("prepend anchor mismatch at block %d: provider %x, indexed %x", first, leftmost.Hash(), indexedHash)
	}

	childParentHash := leftmost.ParentHash()
	for number := prepend.To; ; number-- {
		header, err := ix.headerByNumber(number)
		if err != nil {
			return err
		}
		if header.Hash() != childParentHash {
			return fmt.Errorf("prepend discontinuity at block %d: hash %x, child parent %x", number, header.Hash(), childParentHash)
		}
		if err := trie.Insert(number, header.Hash()); err != nil {
			return err
		}
		childParentHash = header.ParentHash()
		if number == prepend.From {
			return nil
		}
	}
}

// buildUpdate proves the new root and assembles the node deltas.
func (ix *Indexer) buildUpdate(first, last uint64, trie *mpt.BlockTrie, oldNodes [][]byte) (*chaindb.ChainUpdate, error) {
	rootHash := trie.Hash()
	receipt, err := ix.prover.Prove(chainproof.EncodeJournal(rootHash, ix.chainGuestID))
	if err != nil {
		return nil, fmt.Errorf("chain proof generation failed: %w", err)
	}
	zkProof, err := zk.EncodeReceipt(receipt)
	if err != nil {
		return nil, err
	}

	newNodes := trie.RLPNodes()
	return &chaindb.ChainUpdate{
		Info: chaindb.ChainInfo{
			FirstBlock: first,
			LastBlock:  last,
			RootHash:   rootHash,
			ZkProof:    zkProof,
		},
		AddedNodes:   diffNodes(newNodes, oldNodes),
		RemovedNodes: diffNodes(oldNodes, newNodes),
	}, nil
}

// diffNodes returns the elements of a not present in b.
func diffNodes(a, b [][]byte) [][]byte {
	seen := make(map[string]struct{}, len(b))
	for _, node := range b {
		seen[string(node)] = struct{}{}
	}
	var diff [][]byte
	for _, node := range a {
		if _, ok := seen[string(node)]; !ok {
			diff = append(diff, node)
		}
	}
	return diff
}

func (ix *Indexer) latestHeader() (blockheader.EvmBlockHeader, error) {
	header, err := ix.provider.GetBlockHeader(provider.LatestBlock)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, fmt.Errorf("chain %d has no latest block", ix.chainID)
	}
	return header, nil
}

func (ix *Indexer) headerByNumber(number uint64) (blockheader.EvmBlockHeader, error) {
	header, err := ix.provider.GetBlockHeader(provider.NumberTag(number))
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, fmt.Errorf("%w: block %d on chain %d", provider.ErrBlockNotFound, number, ix.chainID)
	}
	return header, nil
}
