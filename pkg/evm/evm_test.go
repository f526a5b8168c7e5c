// Copyright 2025 Certen Protocol
//
// Witness Database and State Tests

package evm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/mpt"
	"github.com/certen/offchain-prover/pkg/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// chainStub serves a deterministic single-account chain.
type chainStub struct {
	headerCalls int
}

func stubHeader(number uint64) blockheader.EvmBlockHeader {
	return blockheader.NewEthBlockHeader(&types.Header{
		Number:     new(big.Int).SetUint64(number),
		Difficulty: big.NewInt(0),
	})
}

var stubAccount = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")

func (s *chainStub) GetBlockHeader(tag provider.BlockTag) (blockheader.EvmBlockHeader, error) {
	s.headerCalls++
	if tag.Latest {
		return stubHeader(100), nil
	}
	if tag.Number > 100 {
		return nil, nil
	}
	return stubHeader(tag.Number), nil
}

func (s *chainStub) GetTransactionCount(common.Address, uint64) (uint64, error) { return 3, nil }
func (s *chainStub) GetBalance(common.Address, uint64) (*big.Int, error) {
	return big.NewInt(1_000), nil
}
func (s *chainStub) GetCode(addr common.Address, _ uint64) ([]byte, error) {
	if addr == stubAccount {
		return []byte{0x60, 0x01, 0x60, 0x02}, nil
	}
	return nil, nil
}
func (s *chainStub) GetStorageAt(_ common.Address, slot common.Hash, _ uint64) (common.Hash, error) {
	return slot, nil
}
func (s *chainStub) GetProof(addr common.Address, _ []common.Hash, _ uint64) (*provider.EIP1186Proof, error) {
	return &provider.EIP1186Proof{Address: addr}, nil
}

func testDB(t *testing.T) *WitnessDB {
	t.Helper()
	header := stubHeader(100)
	return NewWitnessDB(provider.NewCachedProvider(&chainStub{}, provider.NewCache()), Loc(1, 100), header)
}

func TestWitnessDBRecordsAccesses(t *testing.T) {
	db := testDB(t)

	nonce, balance, codeHash := db.Account(stubAccount)
	if nonce != 3 || balance.Int64() != 1_000 {
		t.Errorf("account: got nonce %d, balance %v", nonce, balance)
	}
	if codeHash == (common.Hash{}) {
		t.Error("code hash not computed")
	}
	slot := common.HexToHash("0x05")
	if value := db.Storage(stubAccount, slot); value != slot {
		t.Errorf("storage: got %x", value)
	}

	accounts := db.accessedAccounts()
	if len(accounts) != 1 || accounts[0] != stubAccount {
		t.Errorf("accessed accounts: %v", accounts)
	}
	slots := db.accessedSlots(stubAccount)
	if len(slots) != 1 || slots[0] != slot {
		t.Errorf("accessed slots: %v", slots)
	}
}

func TestWitnessDBBlockHash(t *testing.T) {
	db := testDB(t)
	hash := db.BlockHash(99)
	if hash != stubHeader(99).Hash() {
		t.Errorf("block hash: got %x", hash)
	}
	if oldest := db.oldestAccessedBlock(); oldest != 99 {
		t.Errorf("oldest accessed block: got %d, want 99", oldest)
	}
	// A missing block is a recorded failure, not a silent zero.
	_ = db.BlockHash(101)
	if err := db.Err(); !errors.Is(err, provider.ErrBlockNotFound) {
		t.Errorf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestStateDBOverlayAndSnapshots(t *testing.T) {
	statedb := NewStateDB(testDB(t), nil)
	slot := common.HexToHash("0x01")

	if got := statedb.GetState(stubAccount, slot); got != slot {
		t.Fatalf("committed state: got %x", got)
	}
	statedb.SetState(stubAccount, slot, common.HexToHash("0xff"))
	if got := statedb.GetState(stubAccount, slot); got != common.HexToHash("0xff") {
		t.Errorf("overlay write lost: got %x", got)
	}
	if got := statedb.GetCommittedState(stubAccount, slot); got != slot {
		t.Errorf("committed state changed: got %x", got)
	}

	snapshot := statedb.Snapshot()
	statedb.SetState(stubAccount, slot, common.HexToHash("0xee"))
	statedb.AddBalance(stubAccount, uint256.NewInt(5), tracing.BalanceChangeUnspecified)
	statedb.RevertToSnapshot(snapshot)

	if got := statedb.GetState(stubAccount, slot); got != common.HexToHash("0xff") {
		t.Errorf("revert lost pre-snapshot write: got %x", got)
	}
	if got := statedb.GetBalance(stubAccount); got.Uint64() != 1_000 {
		t.Errorf("revert lost balance: got %v", got)
	}
}

func TestStateDBCodeResolver(t *testing.T) {
	stub := []byte{0xfe}
	resolver := func(addr common.Address, witnessCode []byte) []byte {
		if addr == stubAccount {
			return stub
		}
		return witnessCode
	}
	statedb := NewStateDB(testDB(t), resolver)
	if got := statedb.GetCode(stubAccount); string(got) != string(stub) {
		t.Errorf("resolver ignored: got %x", got)
	}
	other := common.HexToAddress("0x02")
	if got := statedb.GetCode(other); len(got) != 0 {
		t.Errorf("resolver leaked to other address: got %x", got)
	}
}

func TestMultiInputTravelShape(t *testing.T) {
	header := stubHeader(1)
	single := MultiEvmInput{Loc(1, 1): {Header: header, StateTrie: mpt.New()}}
	if single.ContainsTimeTravel() || single.ContainsTeleport() {
		t.Error("single location misclassified")
	}
	travel := MultiEvmInput{
		Loc(1, 1): {Header: header, StateTrie: mpt.New()},
		Loc(1, 2): {Header: stubHeader(2), StateTrie: mpt.New()},
	}
	if !travel.ContainsTimeTravel() || travel.ContainsTeleport() {
		t.Error("time travel misclassified")
	}
	teleport := MultiEvmInput{
		Loc(1, 1):  {Header: header, StateTrie: mpt.New()},
		Loc(10, 2): {Header: stubHeader(2), StateTrie: mpt.New()},
	}
	if !teleport.ContainsTeleport() {
		t.Error("teleport misclassified")
	}
}

func TestAssertCoherencyPanicsOnBadRoot(t *testing.T) {
	header := blockheader.NewEthBlockHeader(&types.Header{
		Number:     big.NewInt(1),
		Root:       common.HexToHash("0xbad"),
		Difficulty: big.NewInt(0),
	})
	input := &EvmInput{Header: header, StateTrie: mpt.New()}
	defer func() {
		if recover() == nil {
			t.Error("expected state-root coherency panic")
		}
	}()
	input.AssertCoherency()
}
