// Copyright 2025 Certen Protocol
//
// Teleport Anchor Verification
//
// For every destination chain reached via setChain, the latest confirmed L2
// commitment is read from the destination's AnchorStateRegistry on the home
// chain (at the home preflight block), compared bit-exactly against the
// sequencer's output, and used to bound which destination blocks the witness
// may touch. A confirmed commitment older than the configured threshold is
// stale and fails verification.

package teleport

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/certen/offchain-prover/pkg/engine"
	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMaxCommitmentAge is the default staleness threshold.
const DefaultMaxCommitmentAge = 170 * time.Hour

const anchorReadGasLimit = 1_000_000

var (
	ErrStaleAnchor        = errors.New("anchor commitment is stale")
	ErrOutputRootMismatch = errors.New("sequencer output root mismatch")
	ErrAboveConfirmed     = errors.New("destination block above confirmed L2 block")
)

// L2Commitment is the anchor a registry confirms: an L2 block number and the
// output root committed for it.
type L2Commitment struct {
	BlockNumber uint64
	OutputRoot  common.Hash
}

// SequencerOutput is the sequencer's view of one L2 block's output.
type SequencerOutput struct {
	OutputRoot common.Hash `json:"output_root"`
	BlockHash  common.Hash `json:"block_hash"`
}

// OutputFetcher resolves sequencer outputs by block number.
type OutputFetcher interface {
	GetOutputAtBlock(chainID uint64, blockNumber uint64) (*SequencerOutput, error)
}

// CallExecutor executes a read-only EVM call at a location; the travel-call
// executor satisfies it.
type CallExecutor interface {
	Execute(call *engine.Call, location evm.ExecutionLocation) (*engine.CallResult, error)
}

const anchorRegistryABI = `[{
	"name": "anchors",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "gameType", "type": "uint32"}],
	"outputs": [
		{"name": "root", "type": "bytes32"},
		{"name": "l2BlockNumber", "type": "uint256"}
	]
}]`

// respectedGameType is the dispute game whose anchors the verifier trusts.
const respectedGameType = uint32(0)

// Verifier checks teleport accesses against on-chain anchors.
type Verifier struct {
	specs    ChainSpecs
	fetcher  OutputFetcher
	factory  *evm.EnvFactory
	maxAge   time.Duration
	registry abi.ABI
}

// NewVerifier builds a teleport verifier. maxAge <= 0 selects the default
// threshold.
func NewVerifier(specs ChainSpecs, fetcher OutputFetcher, factory *evm.EnvFactory, maxAge time.Duration) (*Verifier, error) {
	parsed, err := abi.JSON(strings.NewReader(anchorRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse anchor registry ABI: %w", err)
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxCommitmentAge
	}
	return &Verifier{
		specs:    specs,
		fetcher:  fetcher,
		factory:  factory,
		maxAge:   maxAge,
		registry: parsed,
	}, nil
}

// ReadCommitment reads the latest confirmed commitment for the destination
// from its registry on the home chain at the given home location.
func (v *Verifier) ReadCommitment(executor CallExecutor, spec ChainSpec, home evm.ExecutionLocation) (*L2Commitment, error) {
	data, err := v.registry.Pack("anchors", respectedGameType)
	if err != nil {
		return nil, err
	}
	result, err := executor.Execute(&engine.Call{
		To:       spec.AnchorStateRegistry,
		Data:     data,
		GasLimit: anchorReadGasLimit,
	}, home)
	if err != nil {
		return nil, fmt.Errorf("anchor registry read failed: %w", err)
	}
	if result.Reverted {
		return nil, fmt.Errorf("anchor registry read reverted")
	}
	values, err := v.registry.Unpack("anchors", result.Output)
	if err != nil {
		return nil, fmt.Errorf("anchor registry output decode failed: %w", err)
	}
	root, _ := values[0].([32]byte)
	blockNumber, _ := values[1].(*big.Int)
	return &L2Commitment{
		BlockNumber: blockNumber.Uint64(),
		OutputRoot:  common.BytesToHash(root[:]),
	}, nil
}

// Verify checks every teleported chain of the witness against its anchor.
// home is the start location of the preflight on the settlement chain.
func (v *Verifier) Verify(executor CallExecutor, input evm.MultiEvmInput, home evm.ExecutionLocation) error {
	for chainID, blocks := range input.BlocksByChain() {
		if chainID == home.ChainID {
			continue
		}
		spec, err := v.specs.Get(chainID)
		if err != nil {
			return err
		}
		if spec.HomeChainID != home.ChainID {
			return fmt.Errorf("destination chain %d settles on chain %d, not %d", chainID, spec.HomeChainID, home.ChainID)
		}

		commitment, err := v.ReadCommitment(executor, spec, home)
		if err != nil {
			return err
		}

		output, err := v.fetcher.GetOutputAtBlock(chainID, commitment.BlockNumber)
		if err != nil {
			return fmt.Errorf("sequencer output fetch failed: %w", err)
		}
		if !bytes.Equal(output.OutputRoot[:], commitment.OutputRoot[:]) {
			return fmt.Errorf("%w: anchor=%x sequencer=%x", ErrOutputRootMismatch, commitment.OutputRoot, output.OutputRoot)
		}

		confirmedEnv, err := v.factory.Get(evm.Loc(chainID, commitment.BlockNumber))
		if err != nil {
			return err
		}
		if hash := confirmedEnv.Header.Hash(); hash != output.BlockHash {
			return fmt.Errorf("%w: block hash anchor=%x sequencer=%x", ErrOutputRootMismatch, hash, output.BlockHash)
		}

		if err := v.checkFreshness(confirmedEnv, home); err != nil {
			return err
		}

		for blockNumber := range blocks {
			if blockNumber > commitment.BlockNumber {
				return fmt.Errorf("%w: accessed %d, confirmed %d", ErrAboveConfirmed, blockNumber, commitment.BlockNumber)
			}
		}
	}
	return nil
}

// checkFreshness compares the confirmed L2 block's timestamp against the
// home preflight block's timestamp.
func (v *Verifier) checkFreshness(confirmed *evm.Env, home evm.ExecutionLocation) error {
	homeEnv, err := v.factory.Get(home)
	if err != nil {
		return err
	}
	homeTime := homeEnv.Header.Time()
	l2Time := confirmed.Header.Time()
	if homeTime <= l2Time {
		return nil
	}
	if age := time.Duration(homeTime-l2Time) * time.Second; age > v.maxAge {
		return fmt.Errorf("%w: %s old, limit %s", ErrStaleAnchor, age, v.maxAge)
	}
	return nil
}
