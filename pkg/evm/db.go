// Copyright 2025 Certen Protocol
//
// Witness Database
//
// WitnessDB answers the EVM's state reads from a provider pinned to one
// (chain, block) location and records every access. At preflight end the
// recorded access set is materialized into an EvmInput by the builder.

package evm

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// WitnessDB is the provider-backed state source for one execution location.
type WitnessDB struct {
	mu       sync.Mutex
	provider provider.BlockingProvider
	location ExecutionLocation
	header   blockheader.EvmBlockHeader

	// recorded accesses
	accounts map[common.Address]struct{}
	slots    map[common.Address]map[common.Hash]struct{}
	codes    map[common.Address][]byte
	blocks   map[uint64]blockheader.EvmBlockHeader

	// first provider failure; checked by the executor after the run since
	// StateDB reads cannot return errors mid-interpretation
	err error
}

// NewWitnessDB pins p to location. The header must be the location's header.
func NewWitnessDB(p provider.BlockingProvider, location ExecutionLocation, header blockheader.EvmBlockHeader) *WitnessDB {
	return &WitnessDB{
		provider: p,
		location: location,
		header:   header,
		accounts: make(map[common.Address]struct{}),
		slots:    make(map[common.Address]map[common.Hash]struct{}),
		codes:    make(map[common.Address][]byte),
		blocks:   map[uint64]blockheader.EvmBlockHeader{header.Number(): header},
	}
}

// Location returns the pinned location.
func (db *WitnessDB) Location() ExecutionLocation {
	return db.location
}

// Header returns the pinned block header.
func (db *WitnessDB) Header() blockheader.EvmBlockHeader {
	return db.header
}

// Err returns the first provider failure seen during execution, if any.
func (db *WitnessDB) Err() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.err
}

func (db *WitnessDB) fail(err error) {
	if db.err == nil {
		db.err = err
	}
}

// Account returns (nonce, balance, code hash), recording the access.
func (db *WitnessDB) Account(addr common.Address) (uint64, *big.Int, common.Hash) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts[addr] = struct{}{}

	nonce, err := db.provider.GetTransactionCount(addr, db.location.BlockNumber)
	if err != nil {
		db.fail(fmt.Errorf("get nonce of %s: %w", addr, err))
		return 0, new(big.Int), common.Hash{}
	}
	balance, err := db.provider.GetBalance(addr, db.location.BlockNumber)
	if err != nil {
		db.fail(fmt.Errorf("get balance of %s: %w", addr, err))
		return 0, new(big.Int), common.Hash{}
	}
	code := db.codeLocked(addr)
	codeHash := crypto.Keccak256Hash(code)
	return nonce, balance, codeHash
}

// Code returns the contract bytecode, recording the access.
func (db *WitnessDB) Code(addr common.Address) []byte {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts[addr] = struct{}{}
	return db.codeLocked(addr)
}

func (db *WitnessDB) codeLocked(addr common.Address) []byte {
	if code, ok := db.codes[addr]; ok {
		return code
	}
	code, err := db.provider.GetCode(addr, db.location.BlockNumber)
	if err != nil {
		db.fail(fmt.Errorf("get code of %s: %w", addr, err))
		return nil
	}
	db.codes[addr] = code
	return code
}

// Storage returns the value of a storage slot, recording the access.
func (db *WitnessDB) Storage(addr common.Address, slot common.Hash) common.Hash {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts[addr] = struct{}{}
	if db.slots[addr] == nil {
		db.slots[addr] = make(map[common.Hash]struct{})
	}
	db.slots[addr][slot] = struct{}{}

	value, err := db.provider.GetStorageAt(addr, slot, db.location.BlockNumber)
	if err != nil {
		db.fail(fmt.Errorf("get storage %x of %s: %w", slot, addr, err))
		return common.Hash{}
	}
	return value
}

// BlockHash returns the hash of block number, recording the header. The EVM
// only asks for the window [header-256, header-1]; this method does not check
// the range and fetches any block the provider has.
func (db *WitnessDB) BlockHash(number uint64) common.Hash {
	db.mu.Lock()
	defer db.mu.Unlock()
	if header, ok := db.blocks[number]; ok {
		return header.Hash()
	}
	header, err := db.provider.GetBlockHeader(provider.NumberTag(number))
	if err != nil {
		db.fail(fmt.Errorf("get block %d: %w", number, err))
		return common.Hash{}
	}
	if header == nil {
		db.fail(fmt.Errorf("get block %d: %w", number, provider.ErrBlockNotFound))
		return common.Hash{}
	}
	db.blocks[number] = header
	return header.Hash()
}

// accessedAccounts returns the recorded accounts in address order.
func (db *WitnessDB) accessedAccounts() []common.Address {
	db.mu.Lock()
	defer db.mu.Unlock()
	addrs := make([]common.Address, 0, len(db.accounts))
	for addr := range db.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })
	return addrs
}

// accessedSlots returns the recorded slots of addr in key order.
func (db *WitnessDB) accessedSlots(addr common.Address) []common.Hash {
	db.mu.Lock()
	defer db.mu.Unlock()
	slots := make([]common.Hash, 0, len(db.slots[addr]))
	for slot := range db.slots[addr] {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Cmp(slots[j]) < 0 })
	return slots
}

// oldestAccessedBlock returns the lowest block number recorded via BlockHash.
func (db *WitnessDB) oldestAccessedBlock() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	oldest := db.header.Number()
	for number := range db.blocks {
		if number < oldest {
			oldest = number
		}
	}
	return oldest
}
