// Copyright 2025 Certen Protocol
//
// Seal Encoder Tests

package seal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/certen/offchain-prover/pkg/zk"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var mockGuestID = common.HexToHash("0x0101010101010101010101010101010101010101010101010101010101010101")

func mockJournal() []byte {
	return []byte("journal-bytes")
}

func mockGroth16Receipt() *zk.Receipt {
	sealBytes := bytes.Repeat([]byte{0x11}, zk.Groth16SealSize)
	return &zk.Receipt{
		Kind:               zk.KindGroth16,
		Claim:              zk.ReceiptClaim{GuestID: mockGuestID, Journal: mockJournal()},
		Seal:               sealBytes,
		VerifierParameters: common.HexToHash("0x9f39696c00000000000000000000000000000000000000000000000000000000"),
	}
}

func TestEncodedSizeIsFixed(t *testing.T) {
	for _, receipt := range []*zk.Receipt{mockGroth16Receipt(), zk.NewFakeReceipt(mockGuestID, mockJournal())} {
		s, err := FromReceipt(receipt)
		if err != nil {
			t.Fatalf("from receipt: %v", err)
		}
		if got := len(s.Encode()); got != EncodedSize {
			t.Errorf("encoded size: got %d, want %d", got, EncodedSize)
		}
	}
	if EncodedSize != 292 {
		t.Errorf("EncodedSize is %d, want 292", EncodedSize)
	}
}

func TestFakeSealSelector(t *testing.T) {
	s, err := FromReceipt(zk.NewFakeReceipt(mockGuestID, mockJournal()))
	if err != nil {
		t.Fatalf("from receipt: %v", err)
	}
	if s.Mode != ModeFake {
		t.Errorf("mode: got %d, want %d", s.Mode, ModeFake)
	}
	if s.VerifierSelector != FakeVerifierSelector {
		t.Errorf("selector: got %x, want deafbeef", s.VerifierSelector)
	}
}

func TestFakeSealStartsWithClaimDigest(t *testing.T) {
	receipt := zk.NewFakeReceipt(mockGuestID, mockJournal())
	s, err := FromReceipt(receipt)
	if err != nil {
		t.Fatalf("from receipt: %v", err)
	}
	want := crypto.Keccak256(mockGuestID[:], mockJournal())
	sealBytes := s.SealBytes()
	if !bytes.Equal(sealBytes[:32], want) {
		t.Errorf("first word: got %x, want %x", sealBytes[:32], want)
	}
	for i, b := range sealBytes[32:] {
		if b != 0 {
			t.Fatalf("byte %d of padding is %#x, want zero", i+32, b)
		}
	}
}

func TestGroth16SealCarriesProofAndSelector(t *testing.T) {
	receipt := mockGroth16Receipt()
	s, err := FromReceipt(receipt)
	if err != nil {
		t.Fatalf("from receipt: %v", err)
	}
	if s.Mode != ModeGroth16 {
		t.Errorf("mode: got %d, want %d", s.Mode, ModeGroth16)
	}
	if !bytes.Equal(s.SealBytes(), receipt.Seal) {
		t.Error("seal words do not match the receipt proof")
	}
	if want := [4]byte{0x9f, 0x39, 0x69, 0x6c}; s.VerifierSelector != want {
		t.Errorf("selector: got %x, want %x", s.VerifierSelector, want)
	}
}

func TestGroth16SealRejectsWrongProofSize(t *testing.T) {
	receipt := mockGroth16Receipt()
	receipt.Seal = append(receipt.Seal, 0x01)
	if _, err := FromReceipt(receipt); !errors.Is(err, ErrNoSealBytes) {
		t.Errorf("expected ErrNoSealBytes, got %v", err)
	}
}

func TestUnknownKindRejected(t *testing.T) {
	receipt := mockGroth16Receipt()
	receipt.Kind = 7
	if _, err := FromReceipt(receipt); !errors.Is(err, ErrInvalidProofType) {
		t.Errorf("expected ErrInvalidProofType, got %v", err)
	}
}
