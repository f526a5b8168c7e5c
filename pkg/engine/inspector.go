// Copyright 2025 Certen Protocol
//
// Travel-Call Inspector
//
// The inspector owns the pending execution location of one EVM run. Calls to
// the sentinel address set it; any later non-sentinel call is re-entered
// against the pending location's environment. The pending location persists
// until another setBlock/setChain overrides it, and setBlock keeps the latest
// chain id rather than resetting to the start chain.

package engine

import (
	"bytes"
	"fmt"
	"log"
	"sync"

	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Sentinel function selectors, the first four bytes of
// keccak("setBlock(uint256)") and keccak("setChain(uint256,uint256)").
var (
	setBlockSelector = [4]byte{0x87, 0xce, 0xa3, 0xae}
	setChainSelector = [4]byte{0xff, 0xbc, 0x56, 0x38}
)

const argLen = 32

var (
	travelContract     common.Address
	travelContractOnce sync.Once
)

// TravelContractAddress returns the sentinel address,
// address(uint160(uint256(keccak256("vlayer.traveler")))).
func TravelContractAddress() common.Address {
	travelContractOnce.Do(func() {
		hash := crypto.Keccak256([]byte("vlayer.traveler"))
		travelContract = common.BytesToAddress(hash[12:])
	})
	return travelContract
}

// FatalError short-circuits the current preflight: the EVM frame that raised
// it unwinds, and the executor reports the error at the call boundary instead
// of a revert.
type FatalError struct {
	Msg string
}

func (e *FatalError) Error() string { return e.Msg }

// Fatalf constructs a FatalError.
func Fatalf(format string, args ...interface{}) *FatalError {
	return &FatalError{Msg: fmt.Sprintf(format, args...)}
}

// executeFunc re-enters the executor for an intercepted call.
type executeFunc func(call *Call, location evm.ExecutionLocation) (*CallResult, error)

// Inspector tracks the pending location of one EVM run.
type Inspector struct {
	mu           sync.Mutex
	startChainID uint64
	location     *evm.ExecutionLocation
	execute      executeFunc
	recorder     *MetadataRecorder
	fatal        *FatalError
}

// NewInspector builds an inspector for a run starting on startChainID.
func NewInspector(startChainID uint64, recorder *MetadataRecorder, execute executeFunc) *Inspector {
	return &Inspector{
		startChainID: startChainID,
		recorder:     recorder,
		execute:      execute,
	}
}

// PendingLocation returns the current travel destination, or nil.
func (i *Inspector) PendingLocation() *evm.ExecutionLocation {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.location == nil {
		return nil
	}
	loc := *i.location
	return &loc
}

// chainID returns the chain the next setBlock applies to: the latest pending
// chain, not the start chain.
func (i *Inspector) chainID() uint64 {
	if i.location != nil {
		return i.location.ChainID
	}
	return i.startChainID
}

// Fail records the first fatal error of the run.
func (i *Inspector) Fail(err *FatalError) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.fatal == nil {
		i.fatal = err
	}
}

// Err returns the recorded fatal error, if any.
func (i *Inspector) Err() *FatalError {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fatal
}

// OnTravelCall handles a call to the sentinel address and returns the
// ABI-encoded true both directives respond with.
func (i *Inspector) OnTravelCall(input []byte) ([]byte, error) {
	if len(input) < 4 {
		err := Fatalf("Invalid travel call selector: %x", input)
		i.Fail(err)
		return nil, err
	}
	selector, args := input[:4], input[4:]

	i.mu.Lock()
	defer i.mu.Unlock()
	switch {
	case bytes.Equal(selector, setBlockSelector[:]):
		values, err := parseU64Args(args, 1, "setBlock")
		if err != nil {
			i.failLocked(err)
			return nil, err
		}
		location := evm.Loc(i.chainID(), values[0])
		log.Printf("[engine] setBlock(%d). Chain id remains %d.", location.BlockNumber, location.ChainID)
		i.recorder.RecordSetBlock(location)
		i.location = &location

	case bytes.Equal(selector, setChainSelector[:]):
		values, err := parseU64Args(args, 2, "setChain")
		if err != nil {
			i.failLocked(err)
			return nil, err
		}
		location := evm.Loc(values[0], values[1])
		log.Printf("[engine] setChain(%d, %d)", location.ChainID, location.BlockNumber)
		i.recorder.RecordSetChain(location)
		i.location = &location

	default:
		err := Fatalf("Invalid travel call selector: %x", selector)
		i.failLocked(err)
		return nil, err
	}

	return encodeBool(true), nil
}

func (i *Inspector) failLocked(err *FatalError) {
	if i.fatal == nil {
		i.fatal = err
	}
}

// OnInterceptedCall re-enters the executor for a non-sentinel call while a
// location is pending. The raw output becomes the caller frame's outcome.
func (i *Inspector) OnInterceptedCall(call *Call) (*CallResult, error) {
	location := i.PendingLocation()
	if location == nil {
		return nil, Fatalf("intercepted call with no pending location")
	}
	return i.execute(call, *location)
}

// parseU64Args splits args into n 32-byte big-endian words truncated to
// 64 bits. Missing words or non-zero excess upper bytes are fatal.
func parseU64Args(args []byte, n int, directive string) ([]uint64, *FatalError) {
	if len(args) != n*argLen {
		return nil, Fatalf("Invalid args for %s: got %d bytes, want %d", directive, len(args), n*argLen)
	}
	values := make([]uint64, n)
	for j := 0; j < n; j++ {
		word := args[j*argLen : (j+1)*argLen]
		for _, b := range word[:argLen-8] {
			if b != 0 {
				return nil, Fatalf("Invalid args for %s: value exceeds 64 bits", directive)
			}
		}
		for _, b := range word[argLen-8:] {
			values[j] = values[j]<<8 | uint64(b)
		}
	}
	return values, nil
}

// encodeBool returns the 32-byte ABI encoding of a boolean.
func encodeBool(v bool) []byte {
	word := make([]byte, 32)
	if v {
		word[31] = 1
	}
	return word
}
