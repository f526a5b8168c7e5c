// Copyright 2025 Certen Protocol
//
// Chain-Proof Verification
//
// Ties every block a witness accesses to a proven block-number -> block-hash
// trie: the zk receipt must verify, its journal must commit the trie root
// under the expected chain guest id, and each accessed block's hash must
// match the trie entry.

package chainproof

import (
	"errors"
	"fmt"

	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/certen/offchain-prover/pkg/mpt"
	"github.com/certen/offchain-prover/pkg/zk"
	"github.com/ethereum/go-ethereum/common"
)

// RootHashMismatchError reports a journal root that differs from the trie.
type RootHashMismatchError struct {
	Proven common.Hash
	Actual common.Hash
}

func (e *RootHashMismatchError) Error() string {
	return fmt.Sprintf("Root hash mismatch: proven=%x actual=%x", e.Proven, e.Actual)
}

// GuestIDMismatchError reports a journal guest id other than the expected
// chain guest.
type GuestIDMismatchError struct {
	Expected common.Hash
	Got      common.Hash
}

func (e *GuestIDMismatchError) Error() string {
	return fmt.Sprintf("ELF ID mismatch: expected=%x got=%x", e.Expected, e.Got)
}

// BlockHashMismatchError reports a witness block hash that differs from the
// proven trie entry.
type BlockHashMismatchError struct {
	BlockNumber uint64
	HashInInput common.Hash
	ProvenHash  common.Hash
}

func (e *BlockHashMismatchError) Error() string {
	return fmt.Sprintf("Block hash mismatch: block_num=%d, hash_in_input=%x, proven_hash=%x", e.BlockNumber, e.HashInInput, e.ProvenHash)
}

// Verifier checks chain proofs against a fixed chain guest id.
type Verifier struct {
	chainGuestID common.Hash
	zkVerifier   zk.ProofVerifier
}

// NewVerifier builds a verifier; zkVerifier may be shared.
func NewVerifier(chainGuestID common.Hash, zkVerifier zk.ProofVerifier) *Verifier {
	return &Verifier{chainGuestID: chainGuestID, zkVerifier: zkVerifier}
}

// Verify checks the receipt and its commitment to the trie.
func (v *Verifier) Verify(proof *ChainProof) error {
	receipt, err := zk.DecodeReceipt(proof.Proof)
	if err != nil {
		return err
	}
	if err := v.zkVerifier.Verify(receipt, v.chainGuestID); err != nil {
		return fmt.Errorf("ZK verification error: %w", err)
	}
	provenRoot, guestID, err := DecodeJournal(receipt.Claim.Journal)
	if err != nil {
		return err
	}
	if guestID != v.chainGuestID {
		return &GuestIDMismatchError{Expected: v.chainGuestID, Got: guestID}
	}
	if actual := proof.BlockTrie.Hash(); provenRoot != actual {
		return &RootHashMismatchError{Proven: provenRoot, Actual: actual}
	}
	return nil
}

// VerifyGuestInput fetches and checks a chain proof for every chain a
// witness references, then ties each accessed block hash to the proven trie.
func VerifyGuestInput(client Client, verifier *Verifier, input evm.MultiEvmInput) error {
	for chainID, blocks := range input.BlocksByChain() {
		blockNumbers := make([]uint64, 0, len(blocks))
		for number := range blocks {
			blockNumbers = append(blockNumbers, number)
		}
		proof, err := client.GetChainProof(chainID, blockNumbers)
		if err != nil {
			return fmt.Errorf("chain client error: %w", err)
		}
		if err := verifier.Verify(proof); err != nil {
			return err
		}
		for number, hash := range blocks {
			provenHash, err := proof.BlockTrie.Get(number)
			if err != nil {
				if errors.Is(err, mpt.ErrBlockNotInTrie) {
					return fmt.Errorf("block not found in chain proof trie: %d", number)
				}
				return err
			}
			if provenHash != hash {
				return &BlockHashMismatchError{BlockNumber: number, HashInInput: hash, ProvenHash: provenHash}
			}
		}
	}
	return nil
}
