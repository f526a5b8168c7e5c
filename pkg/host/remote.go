// Copyright 2025 Certen Protocol
//
// Remote Proving Engine Client

package host

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/certen/offchain-prover/pkg/blockheader"
	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/certen/offchain-prover/pkg/zk"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RemoteProver submits proving jobs to an external zk engine and returns its
// receipt. The engine is opaque: this client only ships the witness and the
// expected journal.
type RemoteProver struct {
	url    string
	client *http.Client
}

// NewRemoteProver connects to the proving engine at url.
func NewRemoteProver(url string) *RemoteProver {
	return &RemoteProver{
		url: url,
		// Proving is slow; the pipeline bounds it through the cycle-limit
		// check, and this four-hour client timeout is only a backstop.
		client: &http.Client{Timeout: 4 * time.Hour},
	}
}

// proveRequest is the engine's job submission format.
type proveRequest struct {
	GuestID    common.Hash     `json:"guest_id"`
	HostOutput hexutil.Bytes   `json:"host_output"`
	Input      json.RawMessage `json:"input"`
}

// serializedInput is the wire form of one location's witness.
type serializedInput struct {
	Location     evm.ExecutionLocation      `json:"location"`
	Header       json.RawMessage            `json:"header"`
	StateNodes   []hexutil.Bytes            `json:"state_nodes"`
	StorageNodes map[string][]hexutil.Bytes `json:"storage_nodes"`
	Contracts    []hexutil.Bytes            `json:"contracts"`
	Ancestors    []json.RawMessage          `json:"ancestors"`
}

func serializeInput(input evm.MultiEvmInput) (json.RawMessage, error) {
	var entries []serializedInput
	for location, in := range input {
		header, err := blockheader.MarshalHeader(in.Header)
		if err != nil {
			return nil, err
		}
		entry := serializedInput{Location: location, Header: header, StorageNodes: make(map[string][]hexutil.Bytes)}
		for _, node := range in.StateTrie.RLPNodes() {
			entry.StateNodes = append(entry.StateNodes, node)
		}
		for addr, storage := range in.StorageTries {
			var nodes []hexutil.Bytes
			for _, node := range storage.RLPNodes() {
				nodes = append(nodes, node)
			}
			entry.StorageNodes[addr.Hex()] = nodes
		}
		for _, code := range in.Contracts {
			entry.Contracts = append(entry.Contracts, code)
		}
		for _, ancestor := range in.Ancestors {
			raw, err := blockheader.MarshalHeader(ancestor)
			if err != nil {
				return nil, err
			}
			entry.Ancestors = append(entry.Ancestors, raw)
		}
		entries = append(entries, entry)
	}
	return json.Marshal(entries)
}

func (p *RemoteProver) Prove(input *ProvingInput, guest GuestELF) (*zk.Receipt, error) {
	input.Input.AssertCoherency()

	witness, err := serializeInput(input.Input)
	if err != nil {
		return nil, fmt.Errorf("witness serialization failed: %w", err)
	}
	payload, err := json.Marshal(&proveRequest{
		GuestID:    guest.ID,
		HostOutput: input.HostOutput,
		Input:      witness,
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Post(p.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("prover engine request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("prover engine response read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prover engine returned status %d: %s", resp.StatusCode, body)
	}
	receipt, err := zk.DecodeReceipt(body)
	if err != nil {
		return nil, fmt.Errorf("prover engine receipt decode failed: %w", err)
	}
	return receipt, nil
}
