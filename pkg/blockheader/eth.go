// Copyright 2025 Certen Protocol
//
// Ethereum Block Header Variant

package blockheader

import (
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
)

// EthBlockHeader wraps a canonical Ethereum header. Hashing and RLP encoding
// delegate to go-ethereum, which keeps the hash identical to the on-chain one
// across all forks (EIP-1559, withdrawals, blobs).
type EthBlockHeader struct {
	Inner types.Header
}

// NewEthBlockHeader wraps h. The header is copied; later mutations of h do
// not affect the wrapper.
func NewEthBlockHeader(h *types.Header) *EthBlockHeader {
	return &EthBlockHeader{Inner: *types.CopyHeader(h)}
}

func (h *EthBlockHeader) Hash() common.Hash       { return h.Inner.Hash() }
func (h *EthBlockHeader) ParentHash() common.Hash { return h.Inner.ParentHash }
func (h *EthBlockHeader) Number() uint64          { return h.Inner.Number.Uint64() }
func (h *EthBlockHeader) Time() uint64            { return h.Inner.Time }
func (h *EthBlockHeader) StateRoot() common.Hash  { return h.Inner.Root }
func (h *EthBlockHeader) Variant() string         { return VariantEth }

func (h *EthBlockHeader) EncodeRLP(w io.Writer) error {
	return h.Inner.EncodeRLP(w)
}

func (h *EthBlockHeader) FillBlockEnv(blockCtx *vm.BlockContext) {
	var random *common.Hash
	if h.Inner.Difficulty == nil || h.Inner.Difficulty.Sign() == 0 {
		// Post-merge headers carry prevRandao in the mix-digest field.
		mix := h.Inner.MixDigest
		random = &mix
	}
	fillCommonBlockEnv(blockCtx, h.Number(), h.Time(), h.Inner.GasLimit, h.Inner.Coinbase, h.Inner.BaseFee, h.Inner.Difficulty, random)
}

func (h *EthBlockHeader) MarshalJSON() ([]byte, error) {
	return h.Inner.MarshalJSON()
}

func (h *EthBlockHeader) UnmarshalJSON(data []byte) error {
	return h.Inner.UnmarshalJSON(data)
}
