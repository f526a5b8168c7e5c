// Copyright 2025 Certen Protocol
//
// Receipt Verification
//
// ProofVerifier is satisfied by the dev-mode fake verifier and by the BN254
// Groth16 verifier. The proving engine itself is external; this package only
// checks its receipts.

package zk

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrGuestIDMismatch = errors.New("receipt guest id mismatch")
	ErrInvalidProof    = errors.New("invalid proof")
)

// ProofVerifier checks that a receipt proves an execution of the guest with
// the given id. Callers may hold an owned or a shared verifier.
type ProofVerifier interface {
	Verify(receipt *Receipt, guestID common.Hash) error
}

// VerifierFunc adapts a function to the ProofVerifier interface.
type VerifierFunc func(receipt *Receipt, guestID common.Hash) error

func (f VerifierFunc) Verify(receipt *Receipt, guestID common.Hash) error {
	return f(receipt, guestID)
}

// FakeVerifier accepts structurally valid FAKE receipts. Dev mode only.
type FakeVerifier struct{}

func (FakeVerifier) Verify(receipt *Receipt, guestID common.Hash) error {
	if err := receipt.Validate(); err != nil {
		return err
	}
	if receipt.Kind != KindFake {
		return fmt.Errorf("%w: fake verifier got kind %d", ErrInvalidProof, receipt.Kind)
	}
	if receipt.Claim.GuestID != guestID {
		return fmt.Errorf("%w: expected=%x got=%x", ErrGuestIDMismatch, guestID, receipt.Claim.GuestID)
	}
	return nil
}

// claimCircuit is the public-input layout of the receipt verifier circuit:
// the claim digest split into two 128-bit limbs, as the on-chain verifier
// consumes it.
type claimCircuit struct {
	ClaimHigh frontend.Variable `gnark:",public"`
	ClaimLow  frontend.Variable `gnark:",public"`
}

func (c *claimCircuit) Define(api frontend.API) error {
	// The constraints live in the guest verifying key; this declaration only
	// fixes the public witness shape.
	return nil
}

// Groth16Verifier verifies GROTH16 receipts against a verifying key.
type Groth16Verifier struct {
	mu sync.RWMutex
	vk groth16.VerifyingKey
}

// NewGroth16Verifier parses a serialized BN254 verifying key.
func NewGroth16Verifier(rawVK []byte) (*Groth16Verifier, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(rawVK)); err != nil {
		return nil, fmt.Errorf("failed to parse verifying key: %w", err)
	}
	return &Groth16Verifier{vk: vk}, nil
}

func (v *Groth16Verifier) Verify(receipt *Receipt, guestID common.Hash) error {
	if err := receipt.Validate(); err != nil {
		return err
	}
	if receipt.Kind != KindGroth16 {
		return fmt.Errorf("%w: groth16 verifier got kind %d", ErrInvalidProof, receipt.Kind)
	}
	if receipt.Claim.GuestID != guestID {
		return fmt.Errorf("%w: expected=%x got=%x", ErrGuestIDMismatch, guestID, receipt.Claim.GuestID)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(receipt.Seal)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSeal, err)
	}

	digest := receipt.Claim.Digest()
	assignment := &claimCircuit{
		ClaimHigh: new(big.Int).SetBytes(digest[:16]),
		ClaimLow:  new(big.Int).SetBytes(digest[16:]),
	}
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("failed to build public witness: %w", err)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := groth16.Verify(proof, v.vk, witness); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return nil
}
