// Copyright 2025 Certen Protocol
//
// Teleport Verifier Tests

package teleport

import (
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/engine"
	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/certen/offchain-prover/pkg/mpt"
	"github.com/certen/offchain-prover/pkg/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	homeChain = uint64(1)
	destChain = uint64(10)
	homeBlock = uint64(20_000_000)
)

// headerProvider serves deterministic headers for any block number.
type headerProvider struct {
	chainID   uint64
	timestamp uint64
}

func (p *headerProvider) header(number uint64) blockheader.EvmBlockHeader {
	return blockheader.NewEthBlockHeader(&types.Header{
		Number:     new(big.Int).SetUint64(number),
		Time:       p.timestamp,
		Difficulty: big.NewInt(0),
		Extra:      new(big.Int).SetUint64(p.chainID).Bytes(),
	})
}

func (p *headerProvider) GetBlockHeader(tag provider.BlockTag) (blockheader.EvmBlockHeader, error) {
	if tag.Latest {
		return p.header(homeBlock), nil
	}
	return p.header(tag.Number), nil
}

func (p *headerProvider) GetTransactionCount(common.Address, uint64) (uint64, error) {
	return 0, nil
}
func (p *headerProvider) GetBalance(common.Address, uint64) (*big.Int, error) {
	return new(big.Int), nil
}
func (p *headerProvider) GetCode(common.Address, uint64) ([]byte, error) { return nil, nil }
func (p *headerProvider) GetStorageAt(common.Address, common.Hash, uint64) (common.Hash, error) {
	return common.Hash{}, nil
}
func (p *headerProvider) GetProof(addr common.Address, _ []common.Hash, _ uint64) (*provider.EIP1186Proof, error) {
	return &provider.EIP1186Proof{Address: addr}, nil
}

type stubExecutor struct {
	output []byte
	err    error
}

func (s *stubExecutor) Execute(*engine.Call, evm.ExecutionLocation) (*engine.CallResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &engine.CallResult{Output: s.output}, nil
}

type stubFetcher struct {
	output *SequencerOutput
	err    error
}

func (s *stubFetcher) GetOutputAtBlock(uint64, uint64) (*SequencerOutput, error) {
	return s.output, s.err
}

func testFactory(homeTime, destTime uint64) *evm.EnvFactory {
	providers := map[uint64]*provider.CachedProvider{
		homeChain: provider.NewCachedProvider(&headerProvider{chainID: homeChain, timestamp: homeTime}, provider.NewCache()),
		destChain: provider.NewCachedProvider(&headerProvider{chainID: destChain, timestamp: destTime}, provider.NewCache()),
	}
	return evm.NewEnvFactory(provider.NewCachedMultiProvider(providers))
}

func testVerifier(t *testing.T, factory *evm.EnvFactory, fetcher OutputFetcher, maxAge time.Duration) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(DefaultChainSpecs(), fetcher, factory, maxAge)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier
}

// anchorsOutput ABI-encodes an anchors() return value.
func anchorsOutput(t *testing.T, verifier *Verifier, root common.Hash, blockNumber uint64) []byte {
	t.Helper()
	method := verifier.registry.Methods["anchors"]
	out, err := method.Outputs.Pack([32]byte(root), new(big.Int).SetUint64(blockNumber))
	if err != nil {
		t.Fatalf("pack anchors output: %v", err)
	}
	return out
}

func destinationInput(t *testing.T, factory *evm.EnvFactory, destBlock uint64) evm.MultiEvmInput {
	t.Helper()
	env, err := factory.Get(evm.Loc(destChain, destBlock))
	if err != nil {
		t.Fatalf("get destination env: %v", err)
	}
	return evm.MultiEvmInput{
		evm.Loc(destChain, destBlock): {Header: env.Header, StateTrie: mpt.New()},
	}
}

func TestVerifyUnknownDestinationChain(t *testing.T) {
	factory := testFactory(1_700_000_000, 1_700_000_000)
	verifier := testVerifier(t, factory, &stubFetcher{}, 0)

	input := evm.MultiEvmInput{
		evm.Loc(777, 5): {Header: (&headerProvider{chainID: 777}).header(5), StateTrie: mpt.New()},
	}
	err := verifier.Verify(&stubExecutor{}, input, evm.Loc(homeChain, homeBlock))
	if err == nil || !strings.Contains(err.Error(), "unknown teleport destination chain: 777") {
		t.Errorf("expected unknown chain error, got %v", err)
	}
}

func TestVerifyConfirmedAccess(t *testing.T) {
	factory := testFactory(1_700_000_000, 1_700_000_000)
	verifier := testVerifier(t, factory, nil, 0)

	confirmed := uint64(500)
	root := common.HexToHash("0xaa")
	confirmedEnv, err := factory.Get(evm.Loc(destChain, confirmed))
	if err != nil {
		t.Fatalf("get confirmed env: %v", err)
	}
	verifier.fetcher = &stubFetcher{output: &SequencerOutput{OutputRoot: root, BlockHash: confirmedEnv.Header.Hash()}}
	executor := &stubExecutor{output: anchorsOutput(t, verifier, root, confirmed)}

	// Access at the confirmed block passes.
	if err := verifier.Verify(executor, destinationInput(t, factory, confirmed), evm.Loc(homeChain, homeBlock)); err != nil {
		t.Fatalf("verify at confirmed block: %v", err)
	}

	// Access above the confirmed block fails.
	err = verifier.Verify(executor, destinationInput(t, factory, confirmed+1), evm.Loc(homeChain, homeBlock))
	if !errors.Is(err, ErrAboveConfirmed) {
		t.Errorf("expected ErrAboveConfirmed, got %v", err)
	}
}

func TestVerifyOutputRootMismatch(t *testing.T) {
	factory := testFactory(1_700_000_000, 1_700_000_000)
	verifier := testVerifier(t, factory, nil, 0)

	confirmed := uint64(500)
	verifier.fetcher = &stubFetcher{output: &SequencerOutput{OutputRoot: common.HexToHash("0xbb")}}
	executor := &stubExecutor{output: anchorsOutput(t, verifier, common.HexToHash("0xaa"), confirmed)}

	err := verifier.Verify(executor, destinationInput(t, factory, confirmed), evm.Loc(homeChain, homeBlock))
	if !errors.Is(err, ErrOutputRootMismatch) {
		t.Errorf("expected ErrOutputRootMismatch, got %v", err)
	}
}

func TestVerifyStaleAnchor(t *testing.T) {
	homeTime := uint64(1_700_000_000)
	staleDestTime := homeTime - uint64((200 * time.Hour).Seconds())
	factory := testFactory(homeTime, staleDestTime)
	verifier := testVerifier(t, factory, nil, DefaultMaxCommitmentAge)

	confirmed := uint64(500)
	root := common.HexToHash("0xaa")
	confirmedEnv, err := factory.Get(evm.Loc(destChain, confirmed))
	if err != nil {
		t.Fatalf("get confirmed env: %v", err)
	}
	verifier.fetcher = &stubFetcher{output: &SequencerOutput{OutputRoot: root, BlockHash: confirmedEnv.Header.Hash()}}
	executor := &stubExecutor{output: anchorsOutput(t, verifier, root, confirmed)}

	err = verifier.Verify(executor, destinationInput(t, factory, confirmed), evm.Loc(homeChain, homeBlock))
	if !errors.Is(err, ErrStaleAnchor) {
		t.Errorf("expected ErrStaleAnchor, got %v", err)
	}
}
