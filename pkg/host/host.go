// Copyright 2025 Certen Protocol
//
// Preflight Host
//
// Runs a prover call deterministically outside the zkVM to build the witness
// the guest will re-execute: travel-call execution, witness extraction,
// chain-proof and teleport verification, and journal assembly.

package host

import (
	"errors"
	"fmt"
	"log"

	"github.com/certen/offchain-prover/pkg/chainproof"
	"github.com/certen/offchain-prover/pkg/engine"
	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/certen/offchain-prover/pkg/precompiles"
	"github.com/certen/offchain-prover/pkg/provider"
	"github.com/certen/offchain-prover/pkg/teleport"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RevertError carries the revert data of a failed prover call.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("EVM execution reverted: %s", hexutil.Encode(e.Data))
}

// GuestELF identifies the guest program: its image id (the verifier key
// commitment) and, when running a local estimator, the ELF bytes.
type GuestELF struct {
	ID   common.Hash
	Data []byte
}

// PreflightResult is everything the proving stage needs.
type PreflightResult struct {
	// HostOutput is the journal the guest must reproduce byte-for-byte.
	HostOutput []byte
	// EvmCallResult is the raw output of the prover call.
	EvmCallResult []byte
	// Input is the per-location witness set.
	Input evm.MultiEvmInput
	// Assumptions is the settlement commitment.
	Assumptions *CallAssumptions
	// Metadata is the ordered interception sequence for gas billing.
	Metadata []engine.Metadata
	// Location is the settlement location the call ran at.
	Location evm.ExecutionLocation
}

// Host drives preflights for one configured provider set.
type Host struct {
	providers        *provider.CachedMultiProvider
	registry         *precompiles.Registry
	chainClient     chainproof.Client
	chainVerifier   *chainproof.Verifier
	teleportFactory func(*evm.EnvFactory) (*teleport.Verifier, error)
}

// NewHost builds a host. Chain-proof and teleport verification are optional:
// a nil client or factory skips the corresponding check (dev mode).
func NewHost(
	providers *provider.CachedMultiProvider,
	registry *precompiles.Registry,
	chainClient chainproof.Client,
	chainVerifier *chainproof.Verifier,
	teleportFactory func(*evm.EnvFactory) (*teleport.Verifier, error),
) *Host {
	return &Host{
		providers:       providers,
		registry:        registry,
		chainClient:     chainClient,
		chainVerifier:   chainVerifier,
		teleportFactory: teleportFactory,
	}
}

// Preflight executes call on chainID's chain head and gathers the witness.
func (h *Host) Preflight(call *engine.Call, chainID uint64) (*PreflightResult, error) {
	factory := evm.NewEnvFactory(h.providers)

	settleEnv, err := factory.Latest(chainID)
	if err != nil {
		return nil, fmt.Errorf("resolve settlement block: %w", err)
	}
	location := settleEnv.Location
	log.Printf("[host] preflight %s -> %s at %s", call.From, call.To, location)

	executor := engine.NewExecutor(factory, h.registry, chainID)
	result, err := executor.Execute(call, location)
	if err != nil {
		return nil, err
	}
	if result.Reverted {
		return nil, &RevertError{Data: result.Output}
	}

	input, err := evm.BuildMultiInput(factory)
	if err != nil {
		return nil, err
	}

	if h.chainClient != nil && h.chainVerifier != nil {
		if err := chainproof.VerifyGuestInput(h.chainClient, h.chainVerifier, input); err != nil {
			return nil, err
		}
	}
	if input.ContainsTeleport() && h.teleportFactory != nil {
		teleportVerifier, err := h.teleportFactory(factory)
		if err != nil {
			return nil, err
		}
		if err := teleportVerifier.Verify(executor, input, location); err != nil {
			return nil, err
		}
	}

	assumptions := &CallAssumptions{
		ProverContractAddress: call.To,
		SettleChainID:         chainID,
		SettleBlockNumber:     location.BlockNumber,
		SettleBlockHash:       settleEnv.Header.Hash(),
	}
	if len(call.Data) >= 4 {
		copy(assumptions.FunctionSelector[:], call.Data[:4])
	}
	hostOutput, err := EncodeJournal(assumptions, result.Output)
	if err != nil {
		return nil, fmt.Errorf("journal encoding failed: %w", err)
	}

	return &PreflightResult{
		HostOutput:    hostOutput,
		EvmCallResult: result.Output,
		Input:         input,
		Assumptions:   assumptions,
		Metadata:      executor.Metadata(),
		Location:      location,
	}, nil
}

// IsRevert reports whether err is a prover-call revert.
func IsRevert(err error) bool {
	var revert *RevertError
	return errors.As(err, &revert)
}
