// Copyright 2025 Certen Protocol
//
// Travel-Call Executor
//
// Executes one prover call per execution location. Sentinel and oracle
// precompiles are installed into the EVM; while a travel location is pending,
// intercepted calls re-enter the executor against that location's dedicated
// environment and return the raw output to the caller frame.

package engine

import (
	"errors"
	"fmt"
	"log"
	"math/big"

	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/certen/offchain-prover/pkg/precompiles"
	"github.com/ethereum/go-ethereum/common"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// maxTravelDepth bounds travel-call nesting; each hop requires an explicit
// setBlock/setChain in contract code.
const maxTravelDepth = 16

var ErrTravelDepthExceeded = errors.New("travel call depth exceeded")

// Executor runs travel calls across per-location environments.
type Executor struct {
	factory  *evm.EnvFactory
	registry *precompiles.Registry
	recorder *MetadataRecorder
}

// NewExecutor builds an executor over the environment factory. The metadata
// recorder is seeded with the start chain of the outer call.
func NewExecutor(factory *evm.EnvFactory, registry *precompiles.Registry, startChainID uint64) *Executor {
	return &Executor{
		factory:  factory,
		registry: registry,
		recorder: NewMetadataRecorder(startChainID),
	}
}

// Metadata returns the recorded interception sequence.
func (e *Executor) Metadata() []Metadata {
	return e.recorder.Entries()
}

// Execute runs call at location.
func (e *Executor) Execute(call *Call, location evm.ExecutionLocation) (*CallResult, error) {
	return e.execute(call, location, 0)
}

func (e *Executor) execute(call *Call, location evm.ExecutionLocation, depth int) (*CallResult, error) {
	if depth > maxTravelDepth {
		return nil, fmt.Errorf("%w: %d", ErrTravelDepthExceeded, depth)
	}
	log.Printf("[engine] executing call %s -> %s at %s", call.From, call.To, location)

	env, err := e.factory.Get(location)
	if err != nil {
		return nil, err
	}

	inspector := NewInspector(location.ChainID, e.recorder, func(nested *Call, nestedLoc evm.ExecutionLocation) (*CallResult, error) {
		return e.execute(nested, nestedLoc, depth+1)
	})

	resolveCode := func(addr common.Address, witnessCode []byte) []byte {
		if inspector.PendingLocation() != nil {
			return DispatchStubCode()
		}
		return witnessCode
	}

	vmachine, statedb := env.NewEVM(resolveCode, e.buildPrecompiles(inspector, call.GasLimit))
	vmachine.SetTxContext(gethvm.TxContext{Origin: call.From, GasPrice: new(big.Int)})

	ret, gasLeft, vmErr := vmachine.Call(call.From, call.To, call.Data, call.GasLimit, new(uint256.Int))

	// Inspector faults outrank whatever the EVM frame unwound into.
	if fatal := inspector.Err(); fatal != nil {
		return nil, fatal
	}
	if dbErr := env.DB.Err(); dbErr != nil {
		return nil, dbErr
	}

	result := &CallResult{
		Output:  ret,
		GasUsed: call.GasLimit - gasLeft,
		Logs:    statedb.Logs(),
	}
	switch {
	case vmErr == nil:
		return result, nil
	case errors.Is(vmErr, gethvm.ErrExecutionReverted):
		result.Reverted = true
		return result, nil
	default:
		return nil, fmt.Errorf("evm execution failed: %w", vmErr)
	}
}

// buildPrecompiles assembles the per-run precompile set: the travel sentinel,
// the dispatch target, and the oracle suite wrapped with metadata recording.
func (e *Executor) buildPrecompiles(inspector *Inspector, travelGasLimit uint64) gethvm.PrecompiledContracts {
	contracts := gethvm.PrecompiledContracts{
		TravelContractAddress():   &sentinelContract{inspector: inspector},
		DispatchContractAddress(): &dispatchTarget{inspector: inspector, gasLimit: travelGasLimit},
	}
	for _, p := range e.registry.All() {
		contracts[p.Address] = &oracleContract{
			precompile: p,
			inspector:  inspector,
			recorder:   e.recorder,
		}
	}
	return contracts
}

// sentinelContract handles setBlock/setChain.
type sentinelContract struct {
	inspector *Inspector
}

func (c *sentinelContract) RequiredGas([]byte) uint64 { return 100 }

func (c *sentinelContract) Name() string { return "travelSentinel" }

func (c *sentinelContract) Run(input []byte) ([]byte, error) {
	return c.inspector.OnTravelCall(input)
}

// dispatchTarget receives forwarded calls from the stub and re-enters the
// executor at the pending location.
type dispatchTarget struct {
	inspector *Inspector
	gasLimit  uint64
}

func (c *dispatchTarget) RequiredGas([]byte) uint64 { return 100 }

func (c *dispatchTarget) Name() string { return "dispatchTarget" }

func (c *dispatchTarget) Run(input []byte) ([]byte, error) {
	if len(input) < 64 {
		err := Fatalf("malformed dispatch payload of %d bytes", len(input))
		c.inspector.Fail(err)
		return nil, err
	}
	target := common.BytesToAddress(input[12:32])
	caller := common.BytesToAddress(input[44:64])
	data := input[64:]

	call := &Call{From: caller, To: target, Data: data, GasLimit: c.gasLimit}
	result, err := c.inspector.OnInterceptedCall(call)
	if err != nil {
		var fatal *FatalError
		if !errors.As(err, &fatal) {
			fatal = Fatalf("intercepted call failed: %v", err)
		}
		c.inspector.Fail(fatal)
		return nil, fatal
	}
	if result.Reverted {
		return result.Output, gethvm.ErrExecutionReverted
	}
	return result.Output, nil
}

// oracleContract wraps a registry precompile with gas accounting, metadata
// recording and the time-dependence guard.
type oracleContract struct {
	precompile *precompiles.Precompile
	inspector  *Inspector
	recorder   *MetadataRecorder
}

func (c *oracleContract) RequiredGas(input []byte) uint64 {
	return c.precompile.Gas(len(input))
}

func (c *oracleContract) Name() string { return c.precompile.Tag }

func (c *oracleContract) Run(input []byte) ([]byte, error) {
	c.recorder.RecordPrecompile(c.precompile.Tag, len(input))

	if c.precompile.TimeDependent && c.recorder.HasTravel() {
		err := Fatalf("time-dependent precompile %s after travel call", c.precompile.Tag)
		c.inspector.Fail(err)
		return nil, err
	}
	output, err := c.precompile.Run(input)
	if err != nil {
		fatal := &FatalError{Msg: err.Error()}
		c.inspector.Fail(fatal)
		return nil, fatal
	}
	return output, nil
}
