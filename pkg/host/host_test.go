// Copyright 2025 Certen Protocol
//
// Preflight Host Tests

package host

import (
	"errors"
	"math/big"
	"testing"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/certen/offchain-prover/pkg/mpt"
	"github.com/certen/offchain-prover/pkg/zk"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func testAssumptions() *CallAssumptions {
	return &CallAssumptions{
		ProverContractAddress: common.HexToAddress("0x0000000000000000000000000000000000000001"),
		FunctionSelector:      [4]byte{1, 2, 3, 4},
		SettleChainID:         1,
		SettleBlockNumber:     19_493_153,
		SettleBlockHash:       common.HexToHash("0xabc"),
	}
}

func TestJournalRoundTrip(t *testing.T) {
	evmResult := []byte{0xde, 0xad, 0xbe, 0xef}
	journal, err := EncodeJournal(testAssumptions(), evmResult)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, result, err := DecodeJournal(journal)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != *testAssumptions() {
		t.Errorf("assumptions changed: got %+v", decoded)
	}
	if string(result) != string(evmResult) {
		t.Errorf("evm result changed: got %x", result)
	}
}

func testWitness(stateKeys int) evm.MultiEvmInput {
	header := blockheader.NewEthBlockHeader(&types.Header{Number: big.NewInt(1), Difficulty: big.NewInt(0)})
	trie := mpt.New()
	for i := 0; i < stateKeys; i++ {
		_ = trie.Insert([]byte{byte(i), byte(i >> 8)}, []byte{0x01})
	}
	return evm.MultiEvmInput{
		evm.Loc(1, 1): {Header: header, StateTrie: trie},
	}
}

func TestFakeProverJournalMatchesHostOutput(t *testing.T) {
	hostOutput, err := EncodeJournal(testAssumptions(), []byte{0x01})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	input := &ProvingInput{HostOutput: hostOutput, Input: testWitness(0)}

	// The fake prover asserts coherency: the mock witness has no accounts, so
	// the header's state root is set to the empty-trie hash.
	header := input.Input[evm.Loc(1, 1)].Header.(*blockheader.EthBlockHeader)
	header.Inner.Root = mpt.EmptyRootHash

	receipt, err := FakeProver{}.Prove(input, GuestELF{ID: common.HexToHash("0x11")})
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if receipt.Kind != zk.KindFake {
		t.Errorf("kind: got %d, want fake", receipt.Kind)
	}
	if err := CheckHostGuestOutput(receipt, hostOutput); err != nil {
		t.Errorf("host/guest outputs must match: %v", err)
	}
	if err := CheckHostGuestOutput(receipt, append(hostOutput, 0x00)); !errors.Is(err, ErrHostGuestMismatch) {
		t.Errorf("expected mismatch error, got %v", err)
	}
}

func TestCycleEstimatorIsDeterministicAndMonotonic(t *testing.T) {
	estimator := WitnessCycleEstimator{}
	small := &ProvingInput{Input: testWitness(2)}
	large := &ProvingInput{Input: testWitness(64)}

	first, err := estimator.Estimate(small, GuestELF{})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	second, err := estimator.Estimate(small, GuestELF{})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if first != second {
		t.Errorf("estimator is not deterministic: %d vs %d", first, second)
	}
	big, err := estimator.Estimate(large, GuestELF{})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if big <= first {
		t.Errorf("larger witness estimated at %d cycles, smaller at %d", big, first)
	}
}
