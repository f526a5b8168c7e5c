// Copyright 2025 Certen Protocol
//
// ZK Receipts
//
// A receipt commits a guest program run: the guest id (verifier key digest of
// the ELF), the journal it wrote, and the backend seal. GROTH16 receipts
// carry a 256-byte BN254 proof; FAKE receipts carry no cryptography and are
// accepted only by the dev-mode verifier.

package zk

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
)

// Receipt kinds.
const (
	KindGroth16 uint8 = iota
	KindFake
)

// Groth16SealSize is the serialized BN254 proof size.
const Groth16SealSize = 256

var (
	ErrUnknownReceiptKind = errors.New("unknown receipt kind")
	ErrMalformedSeal      = errors.New("malformed receipt seal")
)

// ReceiptClaim binds a guest id to the journal it produced.
type ReceiptClaim struct {
	GuestID common.Hash   `json:"guest_id"`
	Journal hexutil.Bytes `json:"journal"`
}

// Digest returns the claim commitment:
// SHA256(guest id || SHA256(journal)).
func (c *ReceiptClaim) Digest() common.Hash {
	journalDigest := sha256.Sum256(c.Journal)
	outer := sha256.New()
	outer.Write(c.GuestID[:])
	outer.Write(journalDigest[:])
	return common.BytesToHash(outer.Sum(nil))
}

// Receipt is a guest execution proof.
type Receipt struct {
	Kind  uint8         `json:"kind"`
	Claim ReceiptClaim  `json:"claim"`
	Seal  hexutil.Bytes `json:"seal"`
	// VerifierParameters digests the verifying key; its first four bytes are
	// the on-chain verifier selector for GROTH16 receipts.
	VerifierParameters common.Hash `json:"verifier_parameters"`
}

// NewFakeReceipt builds a dev-mode receipt for the given run.
func NewFakeReceipt(guestID common.Hash, journal []byte) *Receipt {
	return &Receipt{
		Kind:  KindFake,
		Claim: ReceiptClaim{GuestID: guestID, Journal: journal},
	}
}

// Validate checks structural well-formedness.
func (r *Receipt) Validate() error {
	switch r.Kind {
	case KindGroth16:
		if len(r.Seal) != Groth16SealSize {
			return fmt.Errorf("%w: %d seal bytes, want %d", ErrMalformedSeal, len(r.Seal), Groth16SealSize)
		}
		return nil
	case KindFake:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownReceiptKind, r.Kind)
	}
}

// receiptRLP is the serialization shape.
type receiptRLP struct {
	Kind               uint8
	GuestID            common.Hash
	Journal            []byte
	Seal               []byte
	VerifierParameters common.Hash
}

// EncodeReceipt serializes a receipt for transport and persistence.
func EncodeReceipt(r *Receipt) ([]byte, error) {
	return rlp.EncodeToBytes(&receiptRLP{
		Kind:               r.Kind,
		GuestID:            r.Claim.GuestID,
		Journal:            r.Claim.Journal,
		Seal:               r.Seal,
		VerifierParameters: r.VerifierParameters,
	})
}

// DecodeReceipt reverses EncodeReceipt.
func DecodeReceipt(raw []byte) (*Receipt, error) {
	var dec receiptRLP
	if err := rlp.DecodeBytes(raw, &dec); err != nil {
		return nil, fmt.Errorf("receipt deserialization error: %w", err)
	}
	receipt := &Receipt{
		Kind:               dec.Kind,
		Claim:              ReceiptClaim{GuestID: dec.GuestID, Journal: dec.Journal},
		Seal:               dec.Seal,
		VerifierParameters: dec.VerifierParameters,
	}
	return receipt, receipt.Validate()
}
