// Copyright 2025 Certen Protocol
//
// Chain-Proof Verifier Tests

package chainproof

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/certen/offchain-prover/pkg/mpt"
	"github.com/certen/offchain-prover/pkg/zk"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	chainGuestID   = common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000001")
	invalidGuestID = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000ff")
)

const testChainID = uint64(1)

func mockHeaders(t *testing.T, from, to uint64) []blockheader.EvmBlockHeader {
	t.Helper()
	var headers []blockheader.EvmBlockHeader
	parentHash := common.Hash{}
	for number := from; number <= to; number++ {
		header := blockheader.NewEthBlockHeader(&types.Header{
			Number:     new(big.Int).SetUint64(number),
			ParentHash: parentHash,
			Difficulty: big.NewInt(0),
		})
		parentHash = header.Hash()
		headers = append(headers, header)
	}
	return headers
}

func mockBlockTrie(t *testing.T, headers []blockheader.EvmBlockHeader) *mpt.BlockTrie {
	t.Helper()
	trie := mpt.NewBlockTrie()
	for _, header := range headers {
		if err := trie.Insert(header.Number(), header.Hash()); err != nil {
			t.Fatalf("insert block %d: %v", header.Number(), err)
		}
	}
	return trie
}

func mockChainProof(t *testing.T, trie *mpt.BlockTrie, journal []byte) *ChainProof {
	t.Helper()
	receipt := zk.NewFakeReceipt(chainGuestID, journal)
	raw, err := zk.EncodeReceipt(receipt)
	if err != nil {
		t.Fatalf("encode receipt: %v", err)
	}
	return &ChainProof{Proof: raw, BlockTrie: trie}
}

func fakeChainVerifier() *Verifier {
	return NewVerifier(chainGuestID, zk.FakeVerifier{})
}

func TestVerifyOK(t *testing.T) {
	trie := mockBlockTrie(t, mockHeaders(t, 0, 1))
	proof := mockChainProof(t, trie, EncodeJournal(trie.Hash(), chainGuestID))
	if err := fakeChainVerifier().Verify(proof); err != nil {
		t.Fatalf("verification should succeed: %v", err)
	}
}

func TestVerifyZkFailure(t *testing.T) {
	rejectAll := zk.VerifierFunc(func(*zk.Receipt, common.Hash) error {
		return zk.ErrInvalidProof
	})
	verifier := NewVerifier(chainGuestID, rejectAll)
	trie := mockBlockTrie(t, mockHeaders(t, 0, 1))
	proof := mockChainProof(t, trie, EncodeJournal(trie.Hash(), chainGuestID))
	if err := verifier.Verify(proof); !errors.Is(err, zk.ErrInvalidProof) {
		t.Errorf("expected zk failure, got %v", err)
	}
}

func TestVerifyRootHashMismatch(t *testing.T) {
	trie := mockBlockTrie(t, mockHeaders(t, 0, 1))
	proof := mockChainProof(t, trie, EncodeJournal(common.Hash{}, chainGuestID))

	err := fakeChainVerifier().Verify(proof)
	var mismatch *RootHashMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected RootHashMismatchError, got %v", err)
	}
	if mismatch.Proven != (common.Hash{}) || mismatch.Actual != trie.Hash() {
		t.Errorf("mismatch fields: proven=%x actual=%x", mismatch.Proven, mismatch.Actual)
	}
}

func TestVerifyGuestIDMismatch(t *testing.T) {
	trie := mockBlockTrie(t, mockHeaders(t, 0, 1))
	proof := mockChainProof(t, trie, EncodeJournal(trie.Hash(), invalidGuestID))

	err := fakeChainVerifier().Verify(proof)
	var mismatch *GuestIDMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected GuestIDMismatchError, got %v", err)
	}
	if mismatch.Expected != chainGuestID || mismatch.Got != invalidGuestID {
		t.Errorf("mismatch fields: expected=%x got=%x", mismatch.Expected, mismatch.Got)
	}
}

func multiInputForHeaders(headers []blockheader.EvmBlockHeader) evm.MultiEvmInput {
	input := make(evm.MultiEvmInput)
	for _, header := range headers {
		input[evm.Loc(testChainID, header.Number())] = &evm.EvmInput{Header: header, StateTrie: mpt.New()}
	}
	return input
}

func TestVerifyGuestInputOK(t *testing.T) {
	headers := mockHeaders(t, 0, 2)
	trie := mockBlockTrie(t, headers)
	proof := mockChainProof(t, trie, EncodeJournal(trie.Hash(), chainGuestID))
	client := NewCachedClient(map[uint64]*ChainProof{testChainID: proof})

	if err := VerifyGuestInput(client, fakeChainVerifier(), multiInputForHeaders(headers)); err != nil {
		t.Fatalf("verification should succeed: %v", err)
	}
}

func TestVerifyGuestInputMissingChainProof(t *testing.T) {
	headers := mockHeaders(t, 0, 0)
	client := NewCachedClient(nil)
	err := VerifyGuestInput(client, fakeChainVerifier(), multiInputForHeaders(headers))
	if err == nil || !strings.Contains(err.Error(), "chain client error") {
		t.Errorf("expected chain client error, got %v", err)
	}
}

func TestVerifyGuestInputBlockNotInTrie(t *testing.T) {
	headers := mockHeaders(t, 0, 0)
	emptyTrie := mpt.NewBlockTrie()
	proof := mockChainProof(t, emptyTrie, EncodeJournal(emptyTrie.Hash(), chainGuestID))
	client := NewCachedClient(map[uint64]*ChainProof{testChainID: proof})

	err := VerifyGuestInput(client, fakeChainVerifier(), multiInputForHeaders(headers))
	if err == nil || !strings.Contains(err.Error(), "block not found in chain proof trie: 0") {
		t.Errorf("expected block-not-found error, got %v", err)
	}
}

func TestVerifyGuestInputBlockHashMismatch(t *testing.T) {
	headers := mockHeaders(t, 0, 0)
	trie := mpt.NewBlockTrie()
	if err := trie.Insert(0, common.Hash{}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	proof := mockChainProof(t, trie, EncodeJournal(trie.Hash(), chainGuestID))
	client := NewCachedClient(map[uint64]*ChainProof{testChainID: proof})

	err := VerifyGuestInput(client, fakeChainVerifier(), multiInputForHeaders(headers))
	var mismatch *BlockHashMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected BlockHashMismatchError, got %v", err)
	}
	if mismatch.BlockNumber != 0 || mismatch.HashInInput != headers[0].Hash() {
		t.Errorf("mismatch fields: %+v", mismatch)
	}
}

func TestChainProofJSONRoundTrip(t *testing.T) {
	trie := mockBlockTrie(t, mockHeaders(t, 0, 3))
	proof := mockChainProof(t, trie, EncodeJournal(trie.Hash(), chainGuestID))

	raw, err := proof.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded := new(ChainProof)
	if err := decoded.UnmarshalJSON(raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.BlockTrie.Hash() != trie.Hash() {
		t.Errorf("trie root changed through serialization")
	}
	hash, err := decoded.BlockTrie.Get(2)
	if err != nil {
		t.Fatalf("get block 2: %v", err)
	}
	original, _ := trie.Get(2)
	if hash != original {
		t.Errorf("block hash changed through serialization")
	}
}
