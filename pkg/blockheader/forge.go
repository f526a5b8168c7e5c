// Copyright 2025 Certen Protocol
//
// Forge Block Header Variant

package blockheader

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// ForgeBlockHeader is the reduced header produced by Foundry-style dev nodes
// and some L2 sequencers: a reduced field set that keeps the base fee but has
// no ommers, difficulty, extra-data or nonce fields. Its hash commits exactly
// the fields below.
type ForgeBlockHeader struct {
	ParentHashField common.Hash    `json:"parentHash"`
	NumberField     hexutil.Uint64 `json:"number"`
	TimeField       hexutil.Uint64 `json:"timestamp"`
	StateRootField  common.Hash    `json:"stateRoot"`
	ReceiptsRoot    common.Hash    `json:"receiptsRoot"`
	TxRoot          common.Hash    `json:"transactionsRoot"`
	Beneficiary     common.Address `json:"miner"`
	GasLimitField   hexutil.Uint64 `json:"gasLimit"`
	GasUsed         hexutil.Uint64 `json:"gasUsed"`
	BaseFee         *hexutil.Big   `json:"baseFeePerGas"`
}

// forgeHeaderRLP is the field order committed by the hash.
type forgeHeaderRLP struct {
	ParentHash   common.Hash
	Number       uint64
	Time         uint64
	StateRoot    common.Hash
	ReceiptsRoot common.Hash
	TxRoot       common.Hash
	Beneficiary  common.Address
	GasLimit     uint64
	GasUsed      uint64
	BaseFee      *big.Int
}

func (h *ForgeBlockHeader) rlpFields() *forgeHeaderRLP {
	baseFee := new(big.Int)
	if h.BaseFee != nil {
		baseFee = h.BaseFee.ToInt()
	}
	return &forgeHeaderRLP{
		ParentHash:   h.ParentHashField,
		Number:       uint64(h.NumberField),
		Time:         uint64(h.TimeField),
		StateRoot:    h.StateRootField,
		ReceiptsRoot: h.ReceiptsRoot,
		TxRoot:       h.TxRoot,
		Beneficiary:  h.Beneficiary,
		GasLimit:     uint64(h.GasLimitField),
		GasUsed:      uint64(h.GasUsed),
		BaseFee:      baseFee,
	}
}

func (h *ForgeBlockHeader) Hash() common.Hash {
	encoded, err := rlp.EncodeToBytes(h.rlpFields())
	if err != nil {
		// The field set is fixed; encoding cannot fail.
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

func (h *ForgeBlockHeader) ParentHash() common.Hash { return h.ParentHashField }
func (h *ForgeBlockHeader) Number() uint64          { return uint64(h.NumberField) }
func (h *ForgeBlockHeader) Time() uint64            { return uint64(h.TimeField) }
func (h *ForgeBlockHeader) StateRoot() common.Hash  { return h.StateRootField }
func (h *ForgeBlockHeader) Variant() string         { return VariantForge }

func (h *ForgeBlockHeader) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, h.rlpFields())
}

func (h *ForgeBlockHeader) FillBlockEnv(blockCtx *vm.BlockContext) {
	var baseFee *big.Int
	if h.BaseFee != nil {
		baseFee = h.BaseFee.ToInt()
	}
	// Dev-node blocks are post-merge: zero difficulty, zero randao.
	random := common.Hash{}
	fillCommonBlockEnv(blockCtx, h.Number(), h.Time(), uint64(h.GasLimitField), h.Beneficiary, baseFee, new(big.Int), &random)
}
