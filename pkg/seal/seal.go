// Copyright 2025 Certen Protocol
//
// Seal Encoder
//
// Converts a zk receipt into the on-chain payload the verifier router
// consumes: a 4-byte verifier selector, eight 32-byte seal words, and a
// proof-mode tag. The selector tells the router which verifier contract to
// dispatch to.

package seal

import (
	"errors"
	"fmt"

	"github.com/certen/offchain-prover/pkg/zk"
	"github.com/ethereum/go-ethereum/crypto"
)

// Proof modes.
const (
	ModeGroth16 uint8 = iota
	ModeFake
)

const (
	selectorLength = 4
	sealWords      = 8
	wordSize       = 32
	// EncodedSize is the fixed ABI-encoded payload size:
	// selector + 8 words + mode word.
	EncodedSize = selectorLength + sealWords*wordSize + wordSize
)

// FakeVerifierSelector aligns with the constant in FakeProofVerifier.sol.
var FakeVerifierSelector = [selectorLength]byte{0xde, 0xaf, 0xbe, 0xef}

var (
	ErrInvalidProofType = errors.New("invalid proof type")
	ErrNoSealBytes      = errors.New("could not retrieve valid seal bytes")
)

// Seal is the on-chain-verifiable encoding of a receipt.
type Seal struct {
	VerifierSelector [selectorLength]byte      `json:"verifierSelector"`
	Words            [sealWords][wordSize]byte `json:"seal"`
	Mode             uint8                     `json:"mode"`
}

// FromReceipt encodes a receipt into a seal. GROTH16 receipts contribute
// their 256-byte proof and the head of the verifier-parameters digest; FAKE
// receipts contribute the Keccak claim digest padded with zeros and the
// constant fake selector.
func FromReceipt(receipt *zk.Receipt) (*Seal, error) {
	switch receipt.Kind {
	case zk.KindGroth16:
		if len(receipt.Seal) != zk.Groth16SealSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrNoSealBytes, len(receipt.Seal))
		}
		s := &Seal{Mode: ModeGroth16}
		copy(s.VerifierSelector[:], receipt.VerifierParameters[:selectorLength])
		splitWords(receipt.Seal, &s.Words)
		return s, nil

	case zk.KindFake:
		s := &Seal{Mode: ModeFake, VerifierSelector: FakeVerifierSelector}
		claimDigest := crypto.Keccak256(receipt.Claim.GuestID[:], receipt.Claim.Journal)
		padded := make([]byte, sealWords*wordSize)
		copy(padded, claimDigest)
		splitWords(padded, &s.Words)
		return s, nil

	default:
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidProofType, receipt.Kind)
	}
}

func splitWords(sealBytes []byte, words *[sealWords][wordSize]byte) {
	for i := 0; i < sealWords; i++ {
		copy(words[i][:], sealBytes[i*wordSize:(i+1)*wordSize])
	}
}

// Encode returns the fixed-width on-chain payload:
// bytes4 selector || bytes32[8] seal || uint8 mode (padded to a word).
func (s *Seal) Encode() []byte {
	out := make([]byte, 0, EncodedSize)
	out = append(out, s.VerifierSelector[:]...)
	for i := range s.Words {
		out = append(out, s.Words[i][:]...)
	}
	modeWord := make([]byte, wordSize)
	modeWord[wordSize-1] = s.Mode
	return append(out, modeWord...)
}

// SealBytes returns the concatenated seal words.
func (s *Seal) SealBytes() []byte {
	out := make([]byte, 0, sealWords*wordSize)
	for i := range s.Words {
		out = append(out, s.Words[i][:]...)
	}
	return out
}
