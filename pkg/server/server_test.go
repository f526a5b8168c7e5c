// Copyright 2025 Certen Protocol
//
// JSON-RPC Server Tests

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/certen/offchain-prover/pkg/host"
	"github.com/certen/offchain-prover/pkg/proof"
	"github.com/ethereum/go-ethereum/common"
)

func testServer() (*Server, *proof.Store) {
	store := proof.NewStore(time.Hour)
	config := Config{
		CallGuestID:      common.HexToHash("0x01"),
		ChainGuestID:     common.HexToHash("0x02"),
		APIVersion:       "1.3.0",
		DefaultVgasLimit: 100,
		PreflightTimeout: time.Minute,
	}
	return NewServer(config, store, nil, host.FakeProver{}, host.WitnessCycleEstimator{}, host.GuestELF{}), store
}

func rpcCall(t *testing.T, server *Server, method string, params string) map[string]interface{} {
	t.Helper()
	body := `{"jsonrpc":"2.0","id":1,"method":"` + method + `","params":` + params + `}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("http status: got %d", rec.Code)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response parse: %v", err)
	}
	return decoded
}

func rpcErrorOf(t *testing.T, resp map[string]interface{}) (int, string) {
	t.Helper()
	errObj, ok := resp["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error, got %v", resp)
	}
	return int(errObj["code"].(float64)), errObj["message"].(string)
}

func TestVersions(t *testing.T) {
	server, _ := testServer()
	resp := rpcCall(t, server, "v_versions", `[]`)
	result := resp["result"].(map[string]interface{})
	if result["api_version"] != "1.3.0" {
		t.Errorf("api_version: got %v", result["api_version"])
	}
	if !strings.HasPrefix(result["call_guest_id"].(string), "0x") || len(result["call_guest_id"].(string)) != 66 {
		t.Errorf("call_guest_id: got %v", result["call_guest_id"])
	}
}

func TestMethodNotFound(t *testing.T) {
	server, _ := testServer()
	code, _ := rpcErrorOf(t, rpcCall(t, server, "v_unknown", `[]`))
	if code != codeMethodNotFound {
		t.Errorf("code: got %d, want %d", code, codeMethodNotFound)
	}
}

func TestCallRejectsOddHex(t *testing.T) {
	server, _ := testServer()
	resp := rpcCall(t, server, "v_call", `[{"to":"0xdAC17F958D2ee523a2206206994597C13D831ec","data":"0x"},{"chain_id":1}]`)
	code, message := rpcErrorOf(t, resp)
	if code != codeInvalidParams {
		t.Errorf("code: got %d, want %d", code, codeInvalidParams)
	}
	if !strings.Contains(message, "Invalid field: 'to' Odd number of digits") {
		t.Errorf("message: got %q", message)
	}
}

func TestCallRejectsShortAddress(t *testing.T) {
	server, _ := testServer()
	resp := rpcCall(t, server, "v_call", `[{"to":"0x1234","data":"0x"},{"chain_id":1}]`)
	code, message := rpcErrorOf(t, resp)
	if code != codeInvalidParams || !strings.Contains(message, "Invalid field: 'to'") {
		t.Errorf("got (%d, %q)", code, message)
	}
}

func TestGetProofReceiptUnknownHash(t *testing.T) {
	server, _ := testServer()
	resp := rpcCall(t, server, "v_getProofReceipt", `{"hash":"0x00000000000000000000000000000000000000000000000000000000000000aa"}`)
	code, message := rpcErrorOf(t, resp)
	if code != codeInvalidRequest {
		t.Errorf("code: got %d, want %d", code, codeInvalidRequest)
	}
	if !strings.Contains(message, "unknown call hash") {
		t.Errorf("message: got %q", message)
	}
}

func TestGetProofReceiptStates(t *testing.T) {
	server, store := testServer()
	hash := common.HexToHash("0xbeef")

	store.SetState(hash, proof.State{Kind: proof.StatePreflightPending})
	resp := rpcCall(t, server, "v_getProofReceipt", `{"hash":"`+hash.Hex()+`"}`)
	result := resp["result"].(map[string]interface{})
	if result["state"] != string(proof.StatePreflightPending) || result["status"].(float64) != 0 {
		t.Errorf("pending receipt: %v", result)
	}

	store.SetState(hash, proof.State{Kind: proof.StateDone, Data: &proof.ProofData{ProofLength: host.AssumptionsEncodedSize}})
	resp = rpcCall(t, server, "v_getProofReceipt", `{"hash":"`+hash.Hex()+`"}`)
	result = resp["result"].(map[string]interface{})
	if result["status"].(float64) != 1 {
		t.Errorf("done receipt status: %v", result["status"])
	}
	data := result["data"].(map[string]interface{})
	if data["proof_length"].(float64) != 160 {
		t.Errorf("proof length: %v", data["proof_length"])
	}

	failed := common.HexToHash("0xdead")
	store.SetState(failed, proof.State{Kind: proof.StatePreflightError, Error: "EVM execution reverted: 0x"})
	resp = rpcCall(t, server, "v_getProofReceipt", `{"hash":"`+failed.Hex()+`"}`)
	result = resp["result"].(map[string]interface{})
	if result["status"].(float64) != 0 || !strings.Contains(result["error"].(string), "reverted") {
		t.Errorf("failed receipt: %v", result)
	}
}

func TestCallHashIsDeterministic(t *testing.T) {
	call := "[{\"to\":\"0xdAC17F958D2ee523a2206206994597C13D831ec7\",\"data\":\"0x70a08231\"},{\"chain_id\":1}]"
	server, store := testServer()

	first := rpcCall(t, server, "v_call", call)["result"].(string)
	second := rpcCall(t, server, "v_call", call)["result"].(string)
	if first != second {
		t.Errorf("same call hashed differently: %s vs %s", first, second)
	}
	if !store.Contains(common.HexToHash(first)) {
		t.Error("call not registered in store")
	}
}
