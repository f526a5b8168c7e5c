// Copyright 2025 Certen Protocol
//
// EVM Call Types

package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call is one EVM invocation.
type Call struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Data     hexutil.Bytes  `json:"data"`
	GasLimit uint64         `json:"gas_limit"`
}

// CallResult is the outcome of executing a Call.
type CallResult struct {
	// Output is the returned (or revert) data.
	Output []byte
	// GasUsed is the gas consumed by the call.
	GasUsed uint64
	// Logs are the events emitted during execution.
	Logs []*types.Log
	// Reverted is set when the call reverted; Output then carries the revert
	// reason encoding.
	Reverted bool
}
