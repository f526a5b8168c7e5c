// Copyright 2025 Certen Protocol
//
// Prover and Cycle Estimation
//
// The zk proving engine is external; this package defines the interface the
// orchestrator drives plus the dev-mode fake prover and a deterministic
// cycle estimator used for vgas accounting when no engine-side estimator is
// available.

package host

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/certen/offchain-prover/pkg/zk"
)

// ErrHostGuestMismatch reports a guest journal that differs from the
// preflight host output.
var ErrHostGuestMismatch = errors.New("host and guest output mismatch")

// ProvingInput pairs the expected journal with the witness the guest
// re-executes.
type ProvingInput struct {
	HostOutput []byte
	Input      evm.MultiEvmInput
}

// Prover produces a receipt for a guest run.
type Prover interface {
	Prove(input *ProvingInput, guest GuestELF) (*zk.Receipt, error)
}

// CheckHostGuestOutput compares the receipt journal byte-for-byte against
// the preflight output.
func CheckHostGuestOutput(receipt *zk.Receipt, hostOutput []byte) error {
	if !bytes.Equal(receipt.Claim.Journal, hostOutput) {
		return fmt.Errorf("%w: guest journal %d bytes, host output %d bytes", ErrHostGuestMismatch, len(receipt.Claim.Journal), len(hostOutput))
	}
	return nil
}

// FakeProver emits FAKE receipts whose journal is the host output. Dev mode
// only; the fake verifier and 0xdeafbeef seal selector match it end to end.
type FakeProver struct{}

func (FakeProver) Prove(input *ProvingInput, guest GuestELF) (*zk.Receipt, error) {
	input.Input.AssertCoherency()
	return zk.NewFakeReceipt(guest.ID, input.HostOutput), nil
}

// CycleEstimator predicts guest cycles for an input.
type CycleEstimator interface {
	Estimate(input *ProvingInput, guest GuestELF) (uint64, error)
}

// Witness-size driven cost weights. The dominant guest costs are trie
// hashing and bytecode interpretation, both linear in witness size.
const (
	cyclesBase        = 2_000_000
	cyclesPerTrieNode = 25_000
	cyclesPerCodeByte = 30
	cyclesPerLocation = 500_000
	cyclesPerAncestor = 100_000
)

// WitnessCycleEstimator estimates from witness shape alone; deterministic
// for identical inputs.
type WitnessCycleEstimator struct{}

func (WitnessCycleEstimator) Estimate(input *ProvingInput, _ GuestELF) (uint64, error) {
	total := uint64(cyclesBase)
	for _, in := range input.Input {
		total += cyclesPerLocation
		total += uint64(in.StateTrie.Size()) * cyclesPerTrieNode
		for _, storage := range in.StorageTries {
			total += uint64(storage.Size()) * cyclesPerTrieNode
		}
		for _, code := range in.Contracts {
			total += uint64(len(code)) * cyclesPerCodeByte
		}
		total += uint64(len(in.Ancestors)) * cyclesPerAncestor
	}
	return total, nil
}
