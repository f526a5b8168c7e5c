// Copyright 2025 Certen Protocol
//
// Proof-Generation Pipeline
//
// Drives a single call: allocate vgas, preflight, estimate cycles, mid-stage
// refund, metadata flush, limit check, prove, final refund, done. Every
// stage failure lands in a terminal state readable via v_getProofReceipt;
// nothing here crashes the server. Witness-coherency panics are programmer
// faults: the supervisor converts them into a generic proving error.

package proof

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/certen/offchain-prover/pkg/engine"
	"github.com/certen/offchain-prover/pkg/gasmeter"
	"github.com/certen/offchain-prover/pkg/host"
	"github.com/certen/offchain-prover/pkg/retry"
	"github.com/certen/offchain-prover/pkg/seal"
	"github.com/ethereum/go-ethereum/common"
)

// PreflightRunner executes the preflight phase; *host.Host satisfies it.
type PreflightRunner interface {
	Preflight(call *engine.Call, chainID uint64) (*host.PreflightResult, error)
}

// Generator runs the pipeline for one call hash.
type Generator struct {
	gasMeter         gasmeter.Client
	store            *Store
	prover           host.Prover
	estimator        host.CycleEstimator
	guest            host.GuestELF
	vgasLimit        uint64
	callHash         common.Hash
	preflightTimeout time.Duration
	allocationTTL    time.Duration
	metrics          Metrics
}

// NewGenerator wires one pipeline run.
func NewGenerator(
	gasMeter gasmeter.Client,
	store *Store,
	prover host.Prover,
	estimator host.CycleEstimator,
	guest host.GuestELF,
	vgasLimit uint64,
	callHash common.Hash,
	preflightTimeout time.Duration,
) *Generator {
	return &Generator{
		gasMeter:         gasMeter,
		store:            store,
		prover:           prover,
		estimator:        estimator,
		guest:            guest,
		vgasLimit:        vgasLimit,
		callHash:         callHash,
		preflightTimeout: preflightTimeout,
		allocationTTL:    DefaultTTL,
	}
}

// Run executes the pipeline to a terminal state.
func (g *Generator) Run(preflightHost PreflightRunner, call *engine.Call, chainID uint64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[proof] pipeline panic for %x: %v", g.callHash, r)
			g.fail(StateProvingError, fmt.Errorf("internal proving error: %v", r))
		}
	}()

	log.Printf("[proof] generating proof for %x", g.callHash)
	start := time.Now()

	if !g.allocateVgas() {
		return
	}
	preflightResult, ok := g.preflight(preflightHost, call, chainID)
	if !ok {
		return
	}
	estimatedVgas, ok := g.estimateCycles(preflightResult)
	if !ok {
		return
	}
	if !g.refund(gasmeter.StagePreflight, estimatedVgas, StatePreflightError) {
		return
	}
	if !g.sendMetadata(preflightResult.Metadata) {
		return
	}
	if !g.validateVgasLimit(estimatedVgas) {
		return
	}
	data, ok := g.prove(preflightResult)
	if !ok {
		return
	}
	if !g.refund(gasmeter.StageProving, estimatedVgas, StateProvingError) {
		return
	}

	data.ElapsedTime = time.Since(start)
	data.CyclesUsed = g.metrics.EstimatedCycles
	g.setState(State{Kind: StateDone, Data: data, Metrics: g.metrics})
	log.Printf("[proof] proof generation completed for %x in %s", g.callHash, data.ElapsedTime)
}

func (g *Generator) setState(state State) {
	g.store.SetState(g.callHash, state)
}

func (g *Generator) fail(kind StateKind, err error) {
	log.Printf("[proof] %x failed at %s: %v", g.callHash, kind, err)
	g.setState(State{Kind: kind, Error: err.Error(), Metrics: g.metrics})
}

func (g *Generator) allocateVgas() bool {
	g.setState(State{Kind: StateAllocateGasPending, Metrics: g.metrics})
	if err := g.gasMeter.Allocate(g.callHash, g.vgasLimit, g.allocationTTL); err != nil {
		g.fail(StateAllocateError, fmt.Errorf("failed to allocate %d vgas: %w", g.vgasLimit, err))
		return false
	}
	g.setState(State{Kind: StatePreflightPending, Metrics: g.metrics})
	return true
}

func (g *Generator) preflight(preflightHost PreflightRunner, call *engine.Call, chainID uint64) (*host.PreflightResult, bool) {
	start := time.Now()
	// The host runs on the retry worker goroutine; a panic there is carried
	// back and re-raised here so Run's recover handles it.
	panics := make(chan any, 1)
	policy := retry.Policy{TotalTimeout: g.preflightTimeout, RetryOnly: func(error) bool { return len(panics) == 0 }}
	result, err := retry.Do(context.Background(), policy, func(context.Context) (res *host.PreflightResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				panics <- r
				err = fmt.Errorf("preflight panic: %v", r)
			}
		}()
		return preflightHost.Preflight(call, chainID)
	})
	if len(panics) > 0 {
		panic(<-panics)
	}
	g.metrics.PreflightElapsed = time.Since(start)
	if err != nil {
		g.fail(StatePreflightError, err)
		return nil, false
	}
	g.setState(State{Kind: StateEstimatingCyclesPending, Metrics: g.metrics})
	return result, true
}

func (g *Generator) estimateCycles(preflightResult *host.PreflightResult) (uint64, bool) {
	input := &host.ProvingInput{HostOutput: preflightResult.HostOutput, Input: preflightResult.Input}
	cycles, err := g.estimator.Estimate(input, g.guest)
	if err != nil {
		g.fail(StateEstimatingCyclesError, fmt.Errorf("cycle estimation failed: %w", err))
		return 0, false
	}
	g.metrics.EstimatedCycles = cycles
	g.metrics.Vgas = ToVgas(cycles)
	log.Printf("[proof] estimated %d cycles (%d vgas) for %x", cycles, g.metrics.Vgas, g.callHash)
	return g.metrics.Vgas, true
}

func (g *Generator) refund(stage gasmeter.ComputationStage, gasUsed uint64, failKind StateKind) bool {
	if err := g.gasMeter.Refund(g.callHash, stage, gasUsed); err != nil {
		g.fail(failKind, fmt.Errorf("%s refund failed: %w", stage, err))
		return false
	}
	return true
}

func (g *Generator) sendMetadata(metadata []engine.Metadata) bool {
	if err := g.gasMeter.SendMetadata(g.callHash, metadata); err != nil {
		g.fail(StatePreflightError, fmt.Errorf("send metadata failed: %w", err))
		return false
	}
	return true
}

func (g *Generator) validateVgasLimit(estimatedVgas uint64) bool {
	if estimatedVgas > g.vgasLimit {
		g.fail(StateEstimatingCyclesError, &InsufficientVgasError{Provided: g.vgasLimit, Estimated: estimatedVgas})
		return false
	}
	return true
}

func (g *Generator) prove(preflightResult *host.PreflightResult) (*ProofData, bool) {
	g.setState(State{Kind: StateProvingPending, Metrics: g.metrics})
	start := time.Now()

	input := &host.ProvingInput{HostOutput: preflightResult.HostOutput, Input: preflightResult.Input}
	receipt, err := g.prover.Prove(input, g.guest)
	g.metrics.ProvingElapsed = time.Since(start)
	if err != nil {
		g.fail(StateProvingError, fmt.Errorf("proving failed: %w", err))
		return nil, false
	}
	if err := host.CheckHostGuestOutput(receipt, preflightResult.HostOutput); err != nil {
		g.fail(StateProvingError, err)
		return nil, false
	}
	encodedSeal, err := seal.FromReceipt(receipt)
	if err != nil {
		g.fail(StateProvingError, fmt.Errorf("seal encoding failed: %w", err))
		return nil, false
	}

	return &ProofData{
		Seal:          encodedSeal,
		EvmCallResult: preflightResult.EvmCallResult,
		Assumptions:   preflightResult.Assumptions,
		ProofLength:   host.AssumptionsEncodedSize,
	}, true
}
