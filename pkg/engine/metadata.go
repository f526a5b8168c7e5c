// Copyright 2025 Certen Protocol
//
// Travel-Call Metadata
//
// Every interception is recorded in execution order: the start chain, each
// setBlock/setChain, and each oracle precompile invocation with its input
// size. The gas meter bills per feature from this sequence.

package engine

import (
	"sync"

	"github.com/certen/offchain-prover/pkg/evm"
)

// Metadata kinds.
const (
	MetadataStartChain = "start_chain"
	MetadataSetBlock   = "set_block"
	MetadataSetChain   = "set_chain"
	MetadataPrecompile = "precompile"
)

// Metadata is one recorded pipeline event.
type Metadata struct {
	Kind string `json:"kind"`
	// Location is set for start_chain/set_block/set_chain entries; for
	// start_chain only the chain id is meaningful.
	Location *evm.ExecutionLocation `json:"location,omitempty"`
	// Tag and InputLen describe a precompile invocation.
	Tag      string `json:"tag,omitempty"`
	InputLen int    `json:"input_len,omitempty"`
}

// MetadataRecorder collects metadata across all nesting levels of one
// preflight, preserving global insertion order.
type MetadataRecorder struct {
	mu      sync.Mutex
	entries []Metadata
}

// NewMetadataRecorder seeds the sequence with the start chain.
func NewMetadataRecorder(startChainID uint64) *MetadataRecorder {
	r := &MetadataRecorder{}
	loc := evm.Loc(startChainID, 0)
	r.entries = append(r.entries, Metadata{Kind: MetadataStartChain, Location: &loc})
	return r
}

func (r *MetadataRecorder) record(entry Metadata) {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
}

// RecordSetBlock records a setBlock interception.
func (r *MetadataRecorder) RecordSetBlock(location evm.ExecutionLocation) {
	r.record(Metadata{Kind: MetadataSetBlock, Location: &location})
}

// RecordSetChain records a setChain interception.
func (r *MetadataRecorder) RecordSetChain(location evm.ExecutionLocation) {
	r.record(Metadata{Kind: MetadataSetChain, Location: &location})
}

// RecordPrecompile records an oracle precompile invocation.
func (r *MetadataRecorder) RecordPrecompile(tag string, inputLen int) {
	r.record(Metadata{Kind: MetadataPrecompile, Tag: tag, InputLen: inputLen})
}

// Entries returns the recorded sequence in insertion order.
func (r *MetadataRecorder) Entries() []Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Metadata{}, r.entries...)
}

// HasTravel reports whether a setBlock/setChain has been recorded. Some
// precompiles are time-dependent and must not run after a travel directive.
func (r *MetadataRecorder) HasTravel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.Kind == MetadataSetBlock || entry.Kind == MetadataSetChain {
			return true
		}
	}
	return false
}
