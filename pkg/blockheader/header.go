// Copyright 2025 Certen Protocol
//
// Block Header Abstraction
//
// The proving pipeline is polymorphic over header variants: Ethereum mainnet
// headers and the reduced Forge (dev-node / L2) headers. Every variant hashes
// as Keccak(RLP(self)) and can populate an EVM block environment.

package blockheader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
)

// Variant tags used by the adjacent-tag serialization.
const (
	VariantEth   = "Eth"
	VariantForge = "Forge"
)

var ErrUnknownVariant = errors.New("unknown block header variant")

// EvmBlockHeader is the capability set the pipeline requires from a header.
// Callers accept either an owned or a shared handle; implementations must be
// safe for concurrent reads.
type EvmBlockHeader interface {
	// Hash returns Keccak(RLP(header)).
	Hash() common.Hash
	// ParentHash returns the parent block's header hash.
	ParentHash() common.Hash
	// Number returns the block number.
	Number() uint64
	// Time returns the block timestamp.
	Time() uint64
	// StateRoot returns the state trie root committed by the header.
	StateRoot() common.Hash
	// FillBlockEnv writes the header's data into an EVM block context.
	FillBlockEnv(blockCtx *vm.BlockContext)
	// EncodeRLP writes the canonical RLP encoding.
	EncodeRLP(w io.Writer) error
	// Variant returns the serialization tag of the concrete type.
	Variant() string
}

// taggedHeader is the adjacent-tag wire form: variant name plus the inner
// object. The guest-side deserializer cannot handle internally-tagged
// encodings, so the tag stays separate from the payload.
type taggedHeader struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalHeader serializes a header with its variant tag.
func MarshalHeader(h EvmBlockHeader) ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedHeader{Type: h.Variant(), Data: data})
}

// UnmarshalHeader deserializes a tagged header into its concrete variant.
func UnmarshalHeader(raw []byte) (EvmBlockHeader, error) {
	var tagged taggedHeader
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, err
	}
	switch tagged.Type {
	case VariantEth:
		h := new(EthBlockHeader)
		if err := json.Unmarshal(tagged.Data, h); err != nil {
			return nil, err
		}
		return h, nil
	case VariantForge:
		h := new(ForgeBlockHeader)
		if err := json.Unmarshal(tagged.Data, h); err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, tagged.Type)
	}
}

// fillCommonBlockEnv sets the fields shared by all variants.
func fillCommonBlockEnv(blockCtx *vm.BlockContext, number, time, gasLimit uint64, coinbase common.Address, baseFee *big.Int, difficulty *big.Int, random *common.Hash) {
	blockCtx.BlockNumber = new(big.Int).SetUint64(number)
	blockCtx.Time = time
	blockCtx.GasLimit = gasLimit
	blockCtx.Coinbase = coinbase
	if baseFee != nil {
		blockCtx.BaseFee = new(big.Int).Set(baseFee)
	} else {
		blockCtx.BaseFee = new(big.Int)
	}
	if difficulty != nil {
		blockCtx.Difficulty = new(big.Int).Set(difficulty)
	} else {
		blockCtx.Difficulty = new(big.Int)
	}
	blockCtx.Random = random
}
