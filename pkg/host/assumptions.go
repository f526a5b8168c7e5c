// Copyright 2025 Certen Protocol
//
// Call Assumptions
//
// The five-field commitment placed in the journal so an on-chain verifier
// can check a proof matches the call it intended to verify.

package host

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// AssumptionsEncodedSize is the ABI-encoded size of the assumptions head of
// the journal: five static words.
const AssumptionsEncodedSize = 5 * 32

// CallAssumptions commits the prover contract, its entry selector, and the
// settlement block on the home chain.
type CallAssumptions struct {
	ProverContractAddress common.Address `json:"proverContractAddress"`
	FunctionSelector      [4]byte        `json:"functionSelector"`
	SettleChainID         uint64         `json:"settleChainId"`
	SettleBlockNumber     uint64         `json:"settleBlockNumber"`
	SettleBlockHash       common.Hash    `json:"settleBlockHash"`
}

var journalArgs abi.Arguments

func init() {
	mustType := func(t string) abi.Type {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		return typ
	}
	journalArgs = abi.Arguments{
		{Type: mustType("address")},
		{Type: mustType("bytes4")},
		{Type: mustType("uint256")},
		{Type: mustType("uint256")},
		{Type: mustType("bytes32")},
		{Type: mustType("bytes")},
	}
}

// EncodeJournal packs the assumptions and the EVM call result into the guest
// journal layout the on-chain verifier decodes.
func EncodeJournal(assumptions *CallAssumptions, evmCallResult []byte) ([]byte, error) {
	return journalArgs.Pack(
		assumptions.ProverContractAddress,
		assumptions.FunctionSelector,
		new(big.Int).SetUint64(assumptions.SettleChainID),
		new(big.Int).SetUint64(assumptions.SettleBlockNumber),
		[32]byte(assumptions.SettleBlockHash),
		evmCallResult,
	)
}

// DecodeJournal reverses EncodeJournal.
func DecodeJournal(journal []byte) (*CallAssumptions, []byte, error) {
	values, err := journalArgs.Unpack(journal)
	if err != nil {
		return nil, nil, fmt.Errorf("journal decoding error: %w", err)
	}
	assumptions := &CallAssumptions{
		ProverContractAddress: values[0].(common.Address),
		FunctionSelector:      values[1].([4]byte),
		SettleChainID:         values[2].(*big.Int).Uint64(),
		SettleBlockNumber:     values[3].(*big.Int).Uint64(),
		SettleBlockHash:       common.Hash(values[4].([32]byte)),
	}
	result, _ := values[5].([]byte)
	return assumptions, result, nil
}
