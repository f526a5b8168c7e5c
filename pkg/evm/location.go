// Copyright 2025 Certen Protocol
//
// Execution Locations

package evm

import "fmt"

// ExecutionLocation identifies where one nested EVM step runs: a chain and a
// block height on it. Locations are map keys throughout the pipeline.
type ExecutionLocation struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
}

// Loc is shorthand for constructing a location.
func Loc(chainID, blockNumber uint64) ExecutionLocation {
	return ExecutionLocation{ChainID: chainID, BlockNumber: blockNumber}
}

func (l ExecutionLocation) String() string {
	return fmt.Sprintf("chain %d, block %d", l.ChainID, l.BlockNumber)
}
