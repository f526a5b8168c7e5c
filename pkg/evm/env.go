// Copyright 2025 Certen Protocol
//
// Per-Location EVM Environments

package evm

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/provider"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
)

// Env is one execution location's environment: the pinned witness database
// plus everything needed to spin up an EVM against it.
type Env struct {
	Location ExecutionLocation
	Header   blockheader.EvmBlockHeader
	DB       *WitnessDB
	config   *params.ChainConfig
}

// EnvFactory creates and caches one Env per execution location. The cache is
// also the witness source: at preflight end every cached environment's
// recorded accesses become one EvmInput.
type EnvFactory struct {
	mu        sync.Mutex
	providers *provider.CachedMultiProvider
	envs      map[ExecutionLocation]*Env
}

// NewEnvFactory builds a factory over the chain providers.
func NewEnvFactory(providers *provider.CachedMultiProvider) *EnvFactory {
	return &EnvFactory{
		providers: providers,
		envs:      make(map[ExecutionLocation]*Env),
	}
}

// Get returns the environment for location, creating it on first use.
// A location whose block does not exist is fatal.
func (f *EnvFactory) Get(location ExecutionLocation) (*Env, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if env, ok := f.envs[location]; ok {
		return env, nil
	}

	chainProvider, err := f.providers.Get(location.ChainID)
	if err != nil {
		return nil, err
	}
	header, err := chainProvider.GetBlockHeader(provider.NumberTag(location.BlockNumber))
	if err != nil {
		return nil, fmt.Errorf("fetch header for %s: %w", location, err)
	}
	if header == nil {
		return nil, fmt.Errorf("%w: block %d on chain %d", provider.ErrBlockNotFound, location.BlockNumber, location.ChainID)
	}

	env := &Env{
		Location: location,
		Header:   header,
		DB:       NewWitnessDB(chainProvider, location, header),
		config:   chainConfig(location.ChainID),
	}
	f.envs[location] = env
	return env, nil
}

// Latest resolves the chain head for chainID and returns its environment.
func (f *EnvFactory) Latest(chainID uint64) (*Env, error) {
	chainProvider, err := f.providers.Get(chainID)
	if err != nil {
		return nil, err
	}
	header, err := chainProvider.GetBlockHeader(provider.LatestBlock)
	if err != nil {
		return nil, fmt.Errorf("fetch latest header of chain %d: %w", chainID, err)
	}
	if header == nil {
		return nil, fmt.Errorf("%w: latest block of chain %d", provider.ErrBlockNotFound, chainID)
	}
	return f.Get(Loc(chainID, header.Number()))
}

// Environments returns every environment created so far.
func (f *EnvFactory) Environments() map[ExecutionLocation]*Env {
	f.mu.Lock()
	defer f.mu.Unlock()
	envs := make(map[ExecutionLocation]*Env, len(f.envs))
	for loc, env := range f.envs {
		envs[loc] = env
	}
	return envs
}

// Providers returns the underlying provider multiplexer.
func (f *EnvFactory) Providers() *provider.CachedMultiProvider {
	return f.providers
}

// NewEVM assembles a go-ethereum EVM over the environment. resolveCode and
// precompiles plug the travel-call engine in; either may be nil.
func (e *Env) NewEVM(resolveCode CodeResolver, precompiles vm.PrecompiledContracts) (*vm.EVM, *StateDB) {
	statedb := NewStateDB(e.DB, resolveCode)

	blockCtx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     e.DB.BlockHash,
	}
	e.Header.FillBlockEnv(&blockCtx)

	// Historical calls must not re-price gas against the current base fee.
	evm := vm.NewEVM(blockCtx, statedb, e.config, vm.Config{NoBaseFee: true})
	if len(precompiles) > 0 {
		merged := vm.ActivePrecompiledContracts(evm.ChainConfig().Rules(blockCtx.BlockNumber, blockCtx.Random != nil, blockCtx.Time))
		for addr, contract := range precompiles {
			merged[addr] = contract
		}
		evm.SetPrecompiles(merged)
	}
	return evm, statedb
}

// chainConfig returns a post-merge, all-forks chain config for chainID. The
// travel executor replays single calls, so fork scheduling by height is not
// needed; historical blocks carry their own base fee and randao.
func chainConfig(chainID uint64) *params.ChainConfig {
	cfg := *params.AllDevChainProtocolChanges
	cfg.ChainID = new(big.Int).SetUint64(chainID)
	return &cfg
}
