// Copyright 2025 Certen Protocol
//
// Intercepted-Call Dispatch
//
// go-ethereum's interpreter has no per-call hook, so interception is routed
// through code substitution: while a travel location is pending, the witness
// state serves every callee a forwarding stub instead of its real bytecode.
// The stub calls the dispatch precompile with ADDRESS, CALLER and the
// original calldata; the precompile re-enters the executor at the pending
// location and hands the raw output back to the caller frame.

package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	dispatchContract     common.Address
	dispatchContractOnce sync.Once
)

// DispatchContractAddress returns the dispatch precompile's address,
// address(uint160(uint256(keccak256("vlayer.traveler.dispatcher")))).
func DispatchContractAddress() common.Address {
	dispatchContractOnce.Do(func() {
		hash := crypto.Keccak256([]byte("vlayer.traveler.dispatcher"))
		dispatchContract = common.BytesToAddress(hash[12:])
	})
	return dispatchContract
}

var (
	dispatchStub     []byte
	dispatchStubOnce sync.Once
)

// DispatchStubCode returns the forwarding stub bytecode. Layout of the
// payload it sends: 32-byte callee address word, 32-byte caller address word,
// then the unmodified calldata.
func DispatchStubCode() []byte {
	dispatchStubOnce.Do(func() {
		dispatchStub = assembleDispatchStub(DispatchContractAddress())
	})
	return dispatchStub
}

func assembleDispatchStub(dispatch common.Address) []byte {
	var code []byte
	push1 := func(v byte) { code = append(code, 0x60, v) }
	op := func(b byte) { code = append(code, b) }

	// mstore(0x00, address()); mstore(0x20, caller())
	op(0x30) // ADDRESS
	push1(0x00)
	op(0x52) // MSTORE
	op(0x33) // CALLER
	push1(0x20)
	op(0x52) // MSTORE

	// calldatacopy(0x40, 0x00, calldatasize())
	op(0x36) // CALLDATASIZE
	push1(0x00)
	push1(0x40)
	op(0x37) // CALLDATACOPY

	// call(gas(), dispatch, 0, 0x00, 0x40 + calldatasize(), 0, 0)
	push1(0x00) // ret size
	push1(0x00) // ret offset
	op(0x36)    // CALLDATASIZE
	push1(0x40)
	op(0x01) // ADD -> args size
	push1(0x00)
	push1(0x00)
	code = append(code, 0x73) // PUSH20
	code = append(code, dispatch.Bytes()...)
	op(0x5a) // GAS
	op(0xf1) // CALL

	// returndatacopy(0x00, 0x00, returndatasize())
	op(0x3d) // RETURNDATASIZE
	push1(0x00)
	push1(0x00)
	op(0x3e) // RETURNDATACOPY

	// success -> return, failure -> revert, both with the full returndata
	// 7 bytes between here and the JUMPDEST: PUSH1 x, JUMPI,
	// RETURNDATASIZE, PUSH1 0, REVERT
	okDest := byte(len(code) + 7)
	push1(okDest)
	op(0x57) // JUMPI
	op(0x3d) // RETURNDATASIZE
	push1(0x00)
	op(0xfd) // REVERT
	op(0x5b) // JUMPDEST
	op(0x3d) // RETURNDATASIZE
	push1(0x00)
	op(0xf3) // RETURN

	return code
}
