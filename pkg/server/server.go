// Copyright 2025 Certen Protocol
//
// JSON-RPC Server
//
// The client-facing surface: v_versions, v_call (enqueue, returns the call
// hash) and v_getProofReceipt (polled until a terminal state). Transport
// errors follow JSON-RPC 2.0 conventions; pipeline failures are normal
// responses with status 0.

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/certen/offchain-prover/pkg/engine"
	"github.com/certen/offchain-prover/pkg/gasmeter"
	"github.com/certen/offchain-prover/pkg/host"
	"github.com/certen/offchain-prover/pkg/proof"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// JSON-RPC error codes.
const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Config carries the server's static identity and limits.
type Config struct {
	CallGuestID      common.Hash
	ChainGuestID     common.Hash
	APIVersion       string
	MaxCalldataSize  int
	DefaultVgasLimit uint64
	PreflightTimeout time.Duration
	// GasMeter builds the per-call gas meter client; the bearer token of the
	// originating request is passed through when present.
	GasMeter func(bearerToken string) gasmeter.Client
}

// Server handles the JSON-RPC surface.
type Server struct {
	config    Config
	store     *proof.Store
	host      *host.Host
	prover    host.Prover
	estimator host.CycleEstimator
	guest     host.GuestELF
}

// NewServer wires the RPC surface to the pipeline.
func NewServer(config Config, store *proof.Store, preflightHost *host.Host, prover host.Prover, estimator host.CycleEstimator, guest host.GuestELF) *Server {
	if config.GasMeter == nil {
		config.GasMeter = func(string) gasmeter.Client { return gasmeter.NoopClient{} }
	}
	if config.MaxCalldataSize <= 0 {
		config.MaxCalldataSize = 5 * 1024 * 1024
	}
	return &Server{
		config:    config,
		store:     store,
		host:      preflightHost,
		prover:    prover,
		estimator: estimator,
		guest:     guest,
	}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// ServeHTTP implements the JSON-RPC endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(s.config.MaxCalldataSize)+64*1024))
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, &rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeInvalidRequest, Message: "invalid request"}})
		return
	}

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	resp := s.dispatch(&req, bearer)
	resp.JSONRPC = "2.0"
	resp.ID = req.ID
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[server] failed to write response: %v", err)
	}
}

func (s *Server) dispatch(req *rpcRequest, bearer string) *rpcResponse {
	switch req.Method {
	case "v_versions":
		return &rpcResponse{Result: s.versions()}
	case "v_call":
		return s.vCall(req.Params, bearer)
	case "v_getProofReceipt":
		return s.vGetProofReceipt(req.Params)
	default:
		return &rpcResponse{Error: &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}}
	}
}

// versionsResult is the v_versions response.
type versionsResult struct {
	CallGuestID  string `json:"call_guest_id"`
	ChainGuestID string `json:"chain_guest_id"`
	APIVersion   string `json:"api_version"`
}

func (s *Server) versions() *versionsResult {
	return &versionsResult{
		CallGuestID:  s.config.CallGuestID.Hex(),
		ChainGuestID: s.config.ChainGuestID.Hex(),
		APIVersion:   s.config.APIVersion,
	}
}

// callParams is the first element of v_call params.
type callParams struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	GasLimit uint64 `json:"gas_limit"`
}

// chainParams is the second element of v_call params.
type chainParams struct {
	ChainID uint64 `json:"chain_id"`
}

func (s *Server) vCall(raw json.RawMessage, bearer string) *rpcResponse {
	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil || len(params) != 2 {
		return invalidParams("v_call expects [call, chain] parameters")
	}
	var call callParams
	if err := json.Unmarshal(params[0], &call); err != nil {
		return invalidParams(fmt.Sprintf("malformed call object: %v", err))
	}
	var chain chainParams
	if err := json.Unmarshal(params[1], &chain); err != nil {
		return invalidParams(fmt.Sprintf("malformed chain object: %v", err))
	}

	to, err := parseAddressField("to", call.To)
	if err != nil {
		return invalidParams(err.Error())
	}
	data, err := parseBytesField("data", call.Data)
	if err != nil {
		return invalidParams(err.Error())
	}
	if len(data) > s.config.MaxCalldataSize {
		return invalidParams(fmt.Sprintf("Invalid field: 'data' exceeds %d bytes", s.config.MaxCalldataSize))
	}
	gasLimit := call.GasLimit
	if gasLimit == 0 {
		gasLimit = s.config.DefaultVgasLimit
	}

	// gas_limit on the wire is the vgas budget; EVM gas for the preflight
	// itself is a fixed generous ceiling.
	evmCall := &engine.Call{To: to, Data: data, GasLimit: 30_000_000}
	hash := callHash(evmCall, chain.ChainID, gasLimit)

	if s.store.Contains(hash) {
		return &rpcResponse{Result: hash}
	}

	generator := proof.NewGenerator(
		s.config.GasMeter(bearer),
		s.store,
		s.prover,
		s.estimator,
		s.guest,
		gasLimit,
		hash,
		s.config.PreflightTimeout,
	)
	// Register synchronously so the hash is pollable the moment v_call
	// returns; the pipeline task advances it from there.
	s.store.SetState(hash, proof.State{Kind: proof.StateAllocateGasPending})
	go generator.Run(s.host, evmCall, chain.ChainID)

	return &rpcResponse{Result: hash}
}

// receiptParams selects the polled call.
type receiptParams struct {
	Hash common.Hash `json:"hash"`
}

// receiptResult is the v_getProofReceipt response.
type receiptResult struct {
	State   proof.StateKind  `json:"state"`
	Status  int              `json:"status"`
	Data    *proof.ProofData `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
	Metrics proof.Metrics    `json:"metrics"`
}

func (s *Server) vGetProofReceipt(raw json.RawMessage) *rpcResponse {
	var params receiptParams
	if err := json.Unmarshal(raw, &params); err != nil {
		// Also accept the positional form [{hash}].
		var list []receiptParams
		if err := json.Unmarshal(raw, &list); err != nil || len(list) != 1 {
			return invalidParams("v_getProofReceipt expects {hash}")
		}
		params = list[0]
	}
	state, ok := s.store.Get(params.Hash)
	if !ok {
		return &rpcResponse{Error: &rpcError{Code: codeInvalidRequest, Message: fmt.Sprintf("unknown call hash: %s", params.Hash)}}
	}
	status := 0
	if state.Kind == proof.StateDone {
		status = 1
	}
	return &rpcResponse{Result: &receiptResult{
		State:   state.Kind,
		Status:  status,
		Data:    state.Data,
		Error:   state.Error,
		Metrics: state.Metrics,
	}}
}

func invalidParams(message string) *rpcResponse {
	return &rpcResponse{Error: &rpcError{Code: codeInvalidParams, Message: message}}
}

// callHash identifies a call: Keccak over the RLP of its fields and the
// target chain.
func callHash(call *engine.Call, chainID, gasLimit uint64) common.Hash {
	encoded, err := rlp.EncodeToBytes([]interface{}{
		call.To,
		[]byte(call.Data),
		chainID,
		gasLimit,
	})
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

func parseAddressField(name, value string) (common.Address, error) {
	raw, err := decodeHexField(name, value)
	if err != nil {
		return common.Address{}, err
	}
	if len(raw) != common.AddressLength {
		return common.Address{}, fmt.Errorf("Invalid field: '%s' %d bytes, want %d", name, len(raw), common.AddressLength)
	}
	return common.BytesToAddress(raw), nil
}

func parseBytesField(name, value string) (hexutil.Bytes, error) {
	if value == "" {
		return nil, nil
	}
	return decodeHexField(name, value)
}

func decodeHexField(name, value string) ([]byte, error) {
	raw, err := hexutil.Decode(value)
	if err != nil {
		if err == hexutil.ErrOddLength {
			return nil, fmt.Errorf("Invalid field: '%s' Odd number of digits", name)
		}
		return nil, fmt.Errorf("Invalid field: '%s' %v", name, err)
	}
	return raw, nil
}
