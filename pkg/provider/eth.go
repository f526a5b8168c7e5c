// Copyright 2025 Certen Protocol
//
// Ethereum JSON-RPC Provider

package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/certen/offchain-prover/pkg/blockheader"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const defaultRequestTimeout = 30 * time.Second

// EthProvider adapts an archival node's async JSON-RPC surface to the
// BlockingProvider interface. Each call runs under its own deadline; the
// surrounding retry policy decides whether to try again.
type EthProvider struct {
	eth     *ethclient.Client
	geth    *gethclient.Client
	timeout time.Duration
	forge   bool
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(url string) (*EthProvider, error) {
	rpcClient, err := rpc.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node at %s: %w", url, err)
	}
	return NewEthProvider(rpcClient), nil
}

// NewEthProvider wraps an established RPC client.
func NewEthProvider(rpcClient *rpc.Client) *EthProvider {
	return &EthProvider{
		eth:     ethclient.NewClient(rpcClient),
		geth:    gethclient.New(rpcClient),
		timeout: defaultRequestTimeout,
	}
}

// WithForgeHeaders makes the provider parse headers as the reduced Forge
// variant instead of canonical Ethereum headers.
func (p *EthProvider) WithForgeHeaders() *EthProvider {
	p.forge = true
	return p
}

func (p *EthProvider) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.timeout)
}

// wrapRPCErr classifies an RPC failure: not-found is fatal, everything else
// coming back from the transport is considered transient.
func wrapRPCErr(err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return ErrBlockNotFound
	}
	return &TransientError{Err: err}
}

func (p *EthProvider) GetBlockHeader(tag BlockTag) (blockheader.EvmBlockHeader, error) {
	ctx, cancel := p.callCtx()
	defer cancel()

	var number *big.Int
	if !tag.Latest {
		number = new(big.Int).SetUint64(tag.Number)
	}
	header, err := p.eth.HeaderByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, &TransientError{Err: err}
	}
	if p.forge {
		return &blockheader.ForgeBlockHeader{
			ParentHashField: header.ParentHash,
			NumberField:     hexutil.Uint64(header.Number.Uint64()),
			TimeField:       hexutil.Uint64(header.Time),
			StateRootField:  header.Root,
			ReceiptsRoot:    header.ReceiptHash,
			TxRoot:          header.TxHash,
			Beneficiary:     header.Coinbase,
			GasLimitField:   hexutil.Uint64(header.GasLimit),
			GasUsed:         hexutil.Uint64(header.GasUsed),
			BaseFee:         (*hexutil.Big)(header.BaseFee),
		}, nil
	}
	return blockheader.NewEthBlockHeader(header), nil
}

func (p *EthProvider) GetTransactionCount(addr common.Address, block uint64) (uint64, error) {
	ctx, cancel := p.callCtx()
	defer cancel()
	nonce, err := p.eth.NonceAt(ctx, addr, new(big.Int).SetUint64(block))
	if err != nil {
		return 0, wrapRPCErr(err)
	}
	return nonce, nil
}

func (p *EthProvider) GetBalance(addr common.Address, block uint64) (*big.Int, error) {
	ctx, cancel := p.callCtx()
	defer cancel()
	balance, err := p.eth.BalanceAt(ctx, addr, new(big.Int).SetUint64(block))
	if err != nil {
		return nil, wrapRPCErr(err)
	}
	return balance, nil
}

func (p *EthProvider) GetCode(addr common.Address, block uint64) ([]byte, error) {
	ctx, cancel := p.callCtx()
	defer cancel()
	code, err := p.eth.CodeAt(ctx, addr, new(big.Int).SetUint64(block))
	if err != nil {
		return nil, wrapRPCErr(err)
	}
	return code, nil
}

func (p *EthProvider) GetStorageAt(addr common.Address, key common.Hash, block uint64) (common.Hash, error) {
	ctx, cancel := p.callCtx()
	defer cancel()
	value, err := p.eth.StorageAt(ctx, addr, key, new(big.Int).SetUint64(block))
	if err != nil {
		return common.Hash{}, wrapRPCErr(err)
	}
	return common.BytesToHash(value), nil
}

func (p *EthProvider) GetProof(addr common.Address, storageKeys []common.Hash, block uint64) (*EIP1186Proof, error) {
	ctx, cancel := p.callCtx()
	defer cancel()

	keys := make([]string, len(storageKeys))
	for i, key := range storageKeys {
		keys[i] = key.Hex()
	}
	result, err := p.geth.GetProof(ctx, addr, keys, new(big.Int).SetUint64(block))
	if err != nil {
		return nil, wrapRPCErr(err)
	}

	proof := &EIP1186Proof{
		Address:      result.Address,
		AccountProof: decodeHexSlice(result.AccountProof),
		Balance:      (*hexutil.Big)(result.Balance),
		CodeHash:     result.CodeHash,
		Nonce:        hexutil.Uint64(result.Nonce),
		StorageHash:  result.StorageHash,
	}
	for _, sp := range result.StorageProof {
		proof.StorageProof = append(proof.StorageProof, StorageProof{
			Key:   common.HexToHash(sp.Key),
			Value: (*hexutil.Big)(sp.Value),
			Proof: decodeHexSlice(sp.Proof),
		})
	}
	return proof, nil
}

func decodeHexSlice(in []string) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(in))
	for i, s := range in {
		out[i] = hexutil.MustDecode(s)
	}
	return out
}
