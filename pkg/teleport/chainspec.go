// Copyright 2025 Certen Protocol
//
// Teleport Chain Specs

package teleport

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ChainSpec describes one teleportable destination: the dispute-game anchor
// registry on its settlement (home) chain.
type ChainSpec struct {
	// HomeChainID is the canonical settlement chain of the L2.
	HomeChainID uint64 `yaml:"home_chain_id"`
	// AnchorStateRegistry is the registry contract on the home chain.
	AnchorStateRegistry common.Address `yaml:"anchor_state_registry"`
}

// ChainSpecs maps destination chain ids to their specs.
type ChainSpecs map[uint64]ChainSpec

// DefaultChainSpecs covers the OP-stack chains the service supports out of
// the box; deployments extend or override the set through configuration.
func DefaultChainSpecs() ChainSpecs {
	return ChainSpecs{
		// OP Mainnet
		10: {
			HomeChainID:         1,
			AnchorStateRegistry: common.HexToAddress("0x18DAc71c228D1C32c99489B7323d441E1175e443"),
		},
		// Base
		8453: {
			HomeChainID:         1,
			AnchorStateRegistry: common.HexToAddress("0x496286e5eE7758de84Dd17e6d2d97afC2ACE4cc7"),
		},
		// OP Sepolia
		11155420: {
			HomeChainID:         11155111,
			AnchorStateRegistry: common.HexToAddress("0x218CD9489199F321E1177b56385d333c5B598629"),
		},
		// Base Sepolia
		84532: {
			HomeChainID:         11155111,
			AnchorStateRegistry: common.HexToAddress("0x4C8BA32A5DAC2A720bb35CeDB51D6B067D104205"),
		},
	}
}

// Get resolves the spec for a destination chain.
func (s ChainSpecs) Get(chainID uint64) (ChainSpec, error) {
	spec, ok := s[chainID]
	if !ok {
		return ChainSpec{}, fmt.Errorf("unknown teleport destination chain: %d", chainID)
	}
	return spec, nil
}
