// Copyright 2025 Certen Protocol
//
// Gas Meter Client
//
// JSON-RPC client of the external gas meter: allocate vgas for a call,
// refund the unused portion per computation stage, and push the metadata
// sequence for per-feature billing. Authentication is either a static API
// key header or a per-user bearer token passed through from the originating
// JSON-RPC call.

package gasmeter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/certen/offchain-prover/pkg/engine"
	"github.com/ethereum/go-ethereum/common"
)

// ComputationStage names a refundable pipeline stage.
type ComputationStage string

const (
	StagePreflight ComputationStage = "preflight"
	StageProving   ComputationStage = "proving"
)

// apiKeyHeader is the static-key authentication header.
const apiKeyHeader = "x-prover-api-key"

// Client is the gas-meter interface the orchestrator consumes. Callers may
// hold an owned or a shared client.
type Client interface {
	Allocate(hash common.Hash, gasLimit uint64, ttl time.Duration) error
	Refund(hash common.Hash, stage ComputationStage, gasUsed uint64) error
	SendMetadata(hash common.Hash, metadata []engine.Metadata) error
}

// Config selects the gas-meter endpoint and authentication.
type Config struct {
	URL string
	// APIKey is sent in the x-prover-api-key header when set.
	APIKey string
	// BearerToken is forwarded as an Authorization bearer when set.
	BearerToken string
	Timeout     time.Duration
}

// HTTPClient talks JSON-RPC to the gas meter.
type HTTPClient struct {
	config Config
	client *http.Client
}

// NewHTTPClient builds a client for config.
func NewHTTPClient(config Config) *HTTPClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{config: config, client: &http.Client{Timeout: timeout}}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Error *rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) call(method string, params interface{}) error {
	payload, err := json.Marshal(&rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.config.APIKey)
	}
	if c.config.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gas meter %s failed: %w", method, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gas meter %s response read failed: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gas meter %s returned status %d", method, resp.StatusCode)
	}
	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("gas meter %s response parse failed: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("gas meter %s error %d: %s", method, decoded.Error.Code, decoded.Error.Message)
	}
	return nil
}

type allocateParams struct {
	Hash       common.Hash `json:"hash"`
	GasLimit   uint64      `json:"gas_limit"`
	TimeToLive uint64      `json:"time_to_live"`
}

func (c *HTTPClient) Allocate(hash common.Hash, gasLimit uint64, ttl time.Duration) error {
	return c.call("v_allocateGas", &allocateParams{
		Hash:       hash,
		GasLimit:   gasLimit,
		TimeToLive: uint64(ttl.Seconds()),
	})
}

type refundParams struct {
	Hash             common.Hash      `json:"hash"`
	ComputationStage ComputationStage `json:"computation_stage"`
	GasUsed          uint64           `json:"gas_used"`
}

func (c *HTTPClient) Refund(hash common.Hash, stage ComputationStage, gasUsed uint64) error {
	return c.call("v_refundUnusedGas", &refundParams{Hash: hash, ComputationStage: stage, GasUsed: gasUsed})
}

type metadataParams struct {
	Hash     common.Hash       `json:"hash"`
	Metadata []engine.Metadata `json:"metadata"`
}

func (c *HTTPClient) SendMetadata(hash common.Hash, metadata []engine.Metadata) error {
	return c.call("v_sendMetadata", &metadataParams{Hash: hash, Metadata: metadata})
}

// NoopClient is used when no gas meter is configured: every call is free.
type NoopClient struct{}

func (NoopClient) Allocate(common.Hash, uint64, time.Duration) error  { return nil }
func (NoopClient) Refund(common.Hash, ComputationStage, uint64) error { return nil }
func (NoopClient) SendMetadata(common.Hash, []engine.Metadata) error  { return nil }
