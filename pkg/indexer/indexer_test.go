// Copyright 2025 Certen Protocol
//
// Chain Indexer Tests

package indexer

import (
	"math/big"
	"testing"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/chaindb"
	"github.com/certen/offchain-prover/pkg/provider"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const testChainID = uint64(1)

var chainGuestID = common.HexToHash("0x02")

// chainFixture serves a consistent parent-hash-linked header chain.
type chainFixture struct {
	headers []blockheader.EvmBlockHeader
	latest  uint64
}

func newChainFixture(length uint64) *chainFixture {
	fixture := &chainFixture{}
	parentHash := common.Hash{}
	for number := uint64(0); number < length; number++ {
		header := blockheader.NewEthBlockHeader(&types.Header{
			Number:     new(big.Int).SetUint64(number),
			ParentHash: parentHash,
			Difficulty: big.NewInt(0),
		})
		parentHash = header.Hash()
		fixture.headers = append(fixture.headers, header)
	}
	fixture.latest = length - 1
	return fixture
}

func (f *chainFixture) GetBlockHeader(tag provider.BlockTag) (blockheader.EvmBlockHeader, error) {
	number := tag.Number
	if tag.Latest {
		number = f.latest
	}
	if number >= uint64(len(f.headers)) {
		return nil, nil
	}
	return f.headers[number], nil
}

func (f *chainFixture) GetTransactionCount(common.Address, uint64) (uint64, error) { return 0, nil }
func (f *chainFixture) GetBalance(common.Address, uint64) (*big.Int, error) {
	return new(big.Int), nil
}
func (f *chainFixture) GetCode(common.Address, uint64) ([]byte, error) { return nil, nil }
func (f *chainFixture) GetStorageAt(common.Address, common.Hash, uint64) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *chainFixture) GetProof(addr common.Address, _ []common.Hash, _ uint64) (*provider.EIP1186Proof, error) {
	return &provider.EIP1186Proof{Address: addr}, nil
}

func newTestIndexer(fixture *chainFixture, db *chaindb.ChainDB, strategy Strategy) *Indexer {
	return New(db, fixture, FakeChainProver{ChainGuestID: chainGuestID}, testChainID, chainGuestID, strategy)
}

func TestStrategyPlan(t *testing.T) {
	strategy := Strategy{MaxHeadBlocks: 5, MaxBackPropagationBlocks: 10, Confirmations: 2}

	plan := strategy.Plan(100, 100, 110)
	if plan.Append.Empty() || plan.Append.From != 101 || plan.Append.To != 105 {
		t.Errorf("append: got %+v, want [101, 105]", plan.Append)
	}
	if plan.Prepend.Empty() || plan.Prepend.From != 90 || plan.Prepend.To != 99 {
		t.Errorf("prepend: got %+v, want [90, 99]", plan.Prepend)
	}
	if plan.NewFirst != 90 || plan.NewLast != 105 {
		t.Errorf("new range: got [%d, %d]", plan.NewFirst, plan.NewLast)
	}

	// The confirmation margin wins over MaxHeadBlocks.
	plan = strategy.Plan(100, 100, 103)
	if plan.Append.Empty() || plan.Append.To != 101 {
		t.Errorf("append under margin: got %+v, want to 101", plan.Append)
	}

	// Nothing to append when the safe head is at or below the tip.
	plan = strategy.Plan(100, 100, 101)
	if !plan.Append.Empty() {
		t.Errorf("append: got %+v, want empty", plan.Append)
	}

	// Prepend stops at genesis.
	plan = strategy.Plan(4, 100, 100)
	if plan.Prepend.From != 0 || plan.Prepend.To != 3 {
		t.Errorf("prepend near genesis: got %+v, want [0, 3]", plan.Prepend)
	}
	plan = strategy.Plan(0, 100, 100)
	if !plan.Prepend.Empty() {
		t.Errorf("prepend at genesis: got %+v, want empty", plan.Prepend)
	}
}

func TestFirstPollInitializes(t *testing.T) {
	fixture := newChainFixture(101)
	db := chaindb.New(dbm.NewMemDB())
	defer db.Close()
	indexer := newTestIndexer(fixture, db, DefaultStrategy())

	if err := indexer.PollCommit(); err != nil {
		t.Fatalf("poll: %v", err)
	}
	info, err := db.GetChainInfo(testChainID)
	if err != nil || info == nil {
		t.Fatalf("chain info: (%v, %v)", info, err)
	}
	if info.FirstBlock != 100 || info.LastBlock != 100 {
		t.Errorf("range: got [%d, %d], want [100, 100]", info.FirstBlock, info.LastBlock)
	}

	chainTrie, err := db.GetChainTrie(testChainID)
	if err != nil {
		t.Fatalf("chain trie: %v", err)
	}
	hash, err := chainTrie.Trie.Get(100)
	if err != nil {
		t.Fatalf("get block 100: %v", err)
	}
	if hash != fixture.headers[100].Hash() {
		t.Errorf("indexed hash mismatch at 100")
	}
}

func TestAppendAndPrepend(t *testing.T) {
	fixture := newChainFixture(101)
	db := chaindb.New(dbm.NewMemDB())
	defer db.Close()
	strategy := Strategy{MaxHeadBlocks: 5, MaxBackPropagationBlocks: 8, Confirmations: 2}
	indexer := newTestIndexer(fixture, db, strategy)

	if err := indexer.PollCommit(); err != nil {
		t.Fatalf("init poll: %v", err)
	}

	// The chain advances; the next poll appends within the margin and
	// prepends one batch.
	fixture.headers = newChainFixture(111).headers
	fixture.latest = 110

	if err := indexer.PollCommit(); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	info, _ := db.GetChainInfo(testChainID)
	if info.FirstBlock != 92 || info.LastBlock != 105 {
		t.Fatalf("range: got [%d, %d], want [92, 105]", info.FirstBlock, info.LastBlock)
	}

	chainTrie, err := db.GetChainTrie(testChainID)
	if err != nil {
		t.Fatalf("chain trie: %v", err)
	}
	for _, number := range []uint64{92, 105} {
		hash, err := chainTrie.Trie.Get(number)
		if err != nil {
			t.Fatalf("get block %d: %v", number, err)
		}
		if hash != fixture.headers[number].Hash() {
			t.Errorf("indexed hash mismatch at %d", number)
		}
	}

	// A third poll keeps extending both ends.
	if err := indexer.PollCommit(); err != nil {
		t.Fatalf("third poll: %v", err)
	}
	info, _ = db.GetChainInfo(testChainID)
	if info.FirstBlock != 84 || info.LastBlock != 108 {
		t.Errorf("range: got [%d, %d], want [84, 108]", info.FirstBlock, info.LastBlock)
	}
}
