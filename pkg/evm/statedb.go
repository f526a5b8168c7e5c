// Copyright 2025 Certen Protocol
//
// vm.StateDB Adapter
//
// StateDB satisfies go-ethereum's vm.StateDB over a WitnessDB. Reads are
// served (and recorded) by the witness database; writes land in an in-memory
// overlay that lives for the duration of one call, the way eth_call treats
// state. Snapshots copy the overlay; call frames are short and shallow.

package evm

import (
	"maps"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/stateless"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie/utils"
	"github.com/holiman/uint256"
)

// CodeResolver lets the engine substitute the code served for an address.
// The travel-call dispatcher uses it to route intercepted calls; outside an
// active travel segment it must return the witness code unchanged.
type CodeResolver func(addr common.Address, witnessCode []byte) []byte

type accessKey struct {
	addr common.Address
	slot common.Hash
}

type overlay struct {
	balances      map[common.Address]*uint256.Int
	nonces        map[common.Address]uint64
	codes         map[common.Address][]byte
	storage       map[accessKey]common.Hash
	transient     map[accessKey]common.Hash
	selfDestructs map[common.Address]struct{}
	created       map[common.Address]struct{}
	refund        uint64
	logs          []*types.Log
	accessList    map[common.Address]map[common.Hash]struct{}
}

func newOverlay() *overlay {
	return &overlay{
		balances:      make(map[common.Address]*uint256.Int),
		nonces:        make(map[common.Address]uint64),
		codes:         make(map[common.Address][]byte),
		storage:       make(map[accessKey]common.Hash),
		transient:     make(map[accessKey]common.Hash),
		selfDestructs: make(map[common.Address]struct{}),
		created:       make(map[common.Address]struct{}),
		accessList:    make(map[common.Address]map[common.Hash]struct{}),
	}
}

func (o *overlay) clone() *overlay {
	clone := &overlay{
		balances:      make(map[common.Address]*uint256.Int, len(o.balances)),
		nonces:        maps.Clone(o.nonces),
		codes:         maps.Clone(o.codes),
		storage:       maps.Clone(o.storage),
		transient:     maps.Clone(o.transient),
		selfDestructs: maps.Clone(o.selfDestructs),
		created:       maps.Clone(o.created),
		refund:        o.refund,
		logs:          append([]*types.Log{}, o.logs...),
		accessList:    make(map[common.Address]map[common.Hash]struct{}, len(o.accessList)),
	}
	for addr, balance := range o.balances {
		clone.balances[addr] = new(uint256.Int).Set(balance)
	}
	for addr, slots := range o.accessList {
		clone.accessList[addr] = maps.Clone(slots)
	}
	return clone
}

// StateDB adapts a WitnessDB to the go-ethereum EVM.
type StateDB struct {
	db          *WitnessDB
	overlay     *overlay
	snapshots   []*overlay
	pointCache  *utils.PointCache
	resolveCode CodeResolver
}

// NewStateDB builds a call-scoped state over db. resolveCode may be nil.
func NewStateDB(db *WitnessDB, resolveCode CodeResolver) *StateDB {
	return &StateDB{
		db:          db,
		overlay:     newOverlay(),
		pointCache:  utils.NewPointCache(1024),
		resolveCode: resolveCode,
	}
}

// Logs returns the logs emitted so far.
func (s *StateDB) Logs() []*types.Log {
	return s.overlay.logs
}

func (s *StateDB) CreateAccount(addr common.Address) {
	s.overlay.created[addr] = struct{}{}
}

func (s *StateDB) CreateContract(addr common.Address) {
	s.overlay.created[addr] = struct{}{}
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	if balance, ok := s.overlay.balances[addr]; ok {
		return balance
	}
	_, balance, _ := s.db.Account(addr)
	value, _ := uint256.FromBig(balance)
	return value
}

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	prev := *s.GetBalance(addr)
	next := new(uint256.Int).Sub(&prev, amount)
	s.overlay.balances[addr] = next
	return prev
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	prev := *s.GetBalance(addr)
	next := new(uint256.Int).Add(&prev, amount)
	s.overlay.balances[addr] = next
	return prev
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	if nonce, ok := s.overlay.nonces[addr]; ok {
		return nonce
	}
	nonce, _, _ := s.db.Account(addr)
	return nonce
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64, _ tracing.NonceChangeReason) {
	s.overlay.nonces[addr] = nonce
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	code, ok := s.overlay.codes[addr]
	if !ok {
		code = s.db.Code(addr)
	}
	if s.resolveCode != nil {
		return s.resolveCode(addr, code)
	}
	return code
}

func (s *StateDB) SetCode(addr common.Address, code []byte, _ tracing.CodeChangeReason) []byte {
	prev := s.GetCode(addr)
	s.overlay.codes[addr] = code
	return prev
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	return crypto.Keccak256Hash(s.GetCode(addr))
}

func (s *StateDB) GetCodeSize(addr common.Address) int {
	return len(s.GetCode(addr))
}

func (s *StateDB) AddRefund(gas uint64) {
	s.overlay.refund += gas
}

func (s *StateDB) SubRefund(gas uint64) {
	if gas > s.overlay.refund {
		s.overlay.refund = 0
		return
	}
	s.overlay.refund -= gas
}

func (s *StateDB) GetRefund() uint64 {
	return s.overlay.refund
}

func (s *StateDB) GetCommittedState(addr common.Address, slot common.Hash) common.Hash {
	return s.db.Storage(addr, slot)
}

func (s *StateDB) GetState(addr common.Address, slot common.Hash) common.Hash {
	if value, ok := s.overlay.storage[accessKey{addr, slot}]; ok {
		return value
	}
	return s.db.Storage(addr, slot)
}

func (s *StateDB) GetStateAndCommittedState(addr common.Address, slot common.Hash) (common.Hash, common.Hash) {
	return s.GetState(addr, slot), s.GetCommittedState(addr, slot)
}

func (s *StateDB) SetState(addr common.Address, slot, value common.Hash) common.Hash {
	prev := s.GetState(addr, slot)
	s.overlay.storage[accessKey{addr, slot}] = value
	return prev
}

func (s *StateDB) GetStorageRoot(addr common.Address) common.Hash {
	// Only consulted for the EIP-7610 create collision check; reporting the
	// empty root means no account ever counts as having storage there.
	return types.EmptyRootHash
}

func (s *StateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return s.overlay.transient[accessKey{addr, key}]
}

func (s *StateDB) SetTransientState(addr common.Address, key, value common.Hash) {
	s.overlay.transient[accessKey{addr, key}] = value
}

func (s *StateDB) SelfDestruct(addr common.Address) uint256.Int {
	prev := *s.GetBalance(addr)
	s.overlay.selfDestructs[addr] = struct{}{}
	s.overlay.balances[addr] = new(uint256.Int)
	return prev
}

func (s *StateDB) HasSelfDestructed(addr common.Address) bool {
	_, ok := s.overlay.selfDestructs[addr]
	return ok
}

func (s *StateDB) SelfDestruct6780(addr common.Address) (uint256.Int, bool) {
	_, created := s.overlay.created[addr]
	if created {
		return s.SelfDestruct(addr), true
	}
	return *s.GetBalance(addr), false
}

func (s *StateDB) Exist(addr common.Address) bool {
	if _, ok := s.overlay.created[addr]; ok {
		return true
	}
	nonce, balance, _ := s.db.Account(addr)
	return nonce != 0 || balance.Sign() != 0 || len(s.db.Code(addr)) != 0
}

func (s *StateDB) Empty(addr common.Address) bool {
	return !s.Exist(addr)
}

func (s *StateDB) AddressInAccessList(addr common.Address) bool {
	_, ok := s.overlay.accessList[addr]
	return ok
}

func (s *StateDB) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	slots, addrOk := s.overlay.accessList[addr]
	if !addrOk {
		return false, false
	}
	_, slotOk := slots[slot]
	return true, slotOk
}

func (s *StateDB) AddAddressToAccessList(addr common.Address) {
	if _, ok := s.overlay.accessList[addr]; !ok {
		s.overlay.accessList[addr] = make(map[common.Hash]struct{})
	}
}

func (s *StateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.AddAddressToAccessList(addr)
	s.overlay.accessList[addr][slot] = struct{}{}
}

func (s *StateDB) PointCache() *utils.PointCache {
	return s.pointCache
}

func (s *StateDB) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	s.AddAddressToAccessList(sender)
	if dest != nil {
		s.AddAddressToAccessList(*dest)
	}
	for _, addr := range precompiles {
		s.AddAddressToAccessList(addr)
	}
	for _, entry := range txAccesses {
		for _, slot := range entry.StorageKeys {
			s.AddSlotToAccessList(entry.Address, slot)
		}
	}
	if rules.IsShanghai {
		s.AddAddressToAccessList(coinbase)
	}
}

func (s *StateDB) Snapshot() int {
	s.snapshots = append(s.snapshots, s.overlay.clone())
	return len(s.snapshots) - 1
}

func (s *StateDB) RevertToSnapshot(id int) {
	s.overlay = s.snapshots[id]
	s.snapshots = s.snapshots[:id]
}

func (s *StateDB) AddLog(entry *types.Log) {
	s.overlay.logs = append(s.overlay.logs, entry)
}

func (s *StateDB) AddPreimage(common.Hash, []byte) {}

func (s *StateDB) Witness() *stateless.Witness {
	return nil
}

func (s *StateDB) AccessEvents() *state.AccessEvents {
	return nil
}

func (s *StateDB) Finalise(bool) {}
