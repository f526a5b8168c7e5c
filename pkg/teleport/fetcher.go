// Copyright 2025 Certen Protocol
//
// Sequencer Output Fetcher

package teleport

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCOutputFetcher resolves outputs through each destination's rollup node
// (optimism_outputAtBlock).
type RPCOutputFetcher struct {
	clients map[uint64]*rpc.Client
	timeout time.Duration
}

// NewRPCOutputFetcher dials one rollup-node endpoint per destination chain.
func NewRPCOutputFetcher(urls map[uint64]string) (*RPCOutputFetcher, error) {
	clients := make(map[uint64]*rpc.Client, len(urls))
	for chainID, url := range urls {
		client, err := rpc.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rollup node for chain %d: %w", chainID, err)
		}
		clients[chainID] = client
	}
	return &RPCOutputFetcher{clients: clients, timeout: 30 * time.Second}, nil
}

// outputAtBlockResponse is the subset of the rollup node's response the
// verifier consumes.
type outputAtBlockResponse struct {
	OutputRoot common.Hash `json:"outputRoot"`
	BlockRef   struct {
		Hash common.Hash `json:"hash"`
	} `json:"blockRef"`
}

func (f *RPCOutputFetcher) GetOutputAtBlock(chainID uint64, blockNumber uint64) (*SequencerOutput, error) {
	client, ok := f.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no rollup node configured for chain %d", chainID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	var resp outputAtBlockResponse
	if err := client.CallContext(ctx, &resp, "optimism_outputAtBlock", hexutil.Uint64(blockNumber)); err != nil {
		return nil, fmt.Errorf("optimism_outputAtBlock failed: %w", err)
	}
	return &SequencerOutput{OutputRoot: resp.OutputRoot, BlockHash: resp.BlockRef.Hash}, nil
}
