// Copyright 2025 Certen Protocol
//
// Chain-Proof RPC Client

package chainproof

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client fetches chain proofs for accessed block numbers.
type Client interface {
	GetChainProof(chainID uint64, blockNumbers []uint64) (*ChainProof, error)
}

// HTTPClient calls a chain-proof service's v_getChainProof endpoint.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient connects to the chain-proof service at url.
func NewHTTPClient(url string) *HTTPClient {
	return &HTTPClient{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) GetChainProof(chainID uint64, blockNumbers []uint64) (*ChainProof, error) {
	payload, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "v_getChainProof",
		Params:  []interface{}{chainID, blockNumbers},
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Post(c.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("chain proof request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chain proof response read failed: %w", err)
	}
	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("chain proof response parse failed: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("chain proof rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	proof := new(ChainProof)
	if err := json.Unmarshal(decoded.Result, proof); err != nil {
		return nil, fmt.Errorf("chain proof decode failed: %w", err)
	}
	return proof, nil
}

// CachedClient serves proofs from a fixed map; used by tests and replay.
type CachedClient struct {
	proofs map[uint64]*ChainProof
}

// NewCachedClient builds a client over pre-computed proofs per chain.
func NewCachedClient(proofs map[uint64]*ChainProof) *CachedClient {
	return &CachedClient{proofs: proofs}
}

func (c *CachedClient) GetChainProof(chainID uint64, _ []uint64) (*ChainProof, error) {
	proof, ok := c.proofs[chainID]
	if !ok {
		return nil, fmt.Errorf("no chain proof for chain %d", chainID)
	}
	return proof, nil
}
