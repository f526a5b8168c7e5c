// Copyright 2025 Certen Protocol
//
// Per-Call Proof State
//
// A call's state advances only forward through the pipeline lattice; Done
// and the error states are terminal and stable. Observers polling
// v_getProofReceipt see exactly one of these states.

package proof

import (
	"fmt"
	"time"

	"github.com/certen/offchain-prover/pkg/host"
	"github.com/certen/offchain-prover/pkg/seal"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// StateKind names one orchestrator state.
type StateKind string

const (
	StateAllocateGasPending      StateKind = "allocate_gas_pending"
	StatePreflightPending        StateKind = "preflight_pending"
	StateEstimatingCyclesPending StateKind = "estimating_cycles_pending"
	StateProvingPending          StateKind = "proving_pending"
	StateDone                    StateKind = "done"
	StateAllocateError           StateKind = "allocate_error"
	StatePreflightError          StateKind = "preflight_error"
	StateEstimatingCyclesError   StateKind = "estimating_cycles_error"
	StateProvingError            StateKind = "proving_error"
)

// stateRank orders the forward lattice; every error state ranks with done, so
// a failure is accepted from any pending state.
var stateRank = map[StateKind]int{
	StateAllocateGasPending:      0,
	StatePreflightPending:        1,
	StateEstimatingCyclesPending: 2,
	StateProvingPending:          3,
	StateDone:                    4,
	StateAllocateError:           4,
	StatePreflightError:          4,
	StateEstimatingCyclesError:   4,
	StateProvingError:            4,
}

// Terminal reports whether kind admits no further transitions.
func (k StateKind) Terminal() bool {
	switch k {
	case StateDone, StateAllocateError, StatePreflightError, StateEstimatingCyclesError, StateProvingError:
		return true
	}
	return false
}

// Metrics accumulates per-call measurements surfaced with the receipt.
type Metrics struct {
	PreflightElapsed time.Duration `json:"preflight_elapsed"`
	ProvingElapsed   time.Duration `json:"proving_elapsed"`
	EstimatedCycles  uint64        `json:"estimated_cycles"`
	Vgas             uint64        `json:"vgas"`
}

// ProofData is the final product stored under the call hash.
type ProofData struct {
	Seal          *seal.Seal            `json:"seal"`
	EvmCallResult hexutil.Bytes         `json:"evm_call_result"`
	Assumptions   *host.CallAssumptions `json:"call_assumptions"`
	ProofLength   int                   `json:"proof_length"`
	CyclesUsed    uint64                `json:"cycles_used"`
	ElapsedTime   time.Duration         `json:"elapsed_time"`
}

// State is one observable orchestrator state.
type State struct {
	Kind    StateKind  `json:"state"`
	Error   string     `json:"error,omitempty"`
	Data    *ProofData `json:"data,omitempty"`
	Metrics Metrics    `json:"metrics"`
}

// InsufficientVgasError aborts a call whose estimate exceeds the limit.
type InsufficientVgasError struct {
	Provided  uint64
	Estimated uint64
}

func (e *InsufficientVgasError) Error() string {
	return fmt.Sprintf("insufficient vgas: provided %d, estimated %d", e.Provided, e.Estimated)
}
