// Copyright 2025 Certen Protocol
//
// Proof Receipt Repository

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/certen/offchain-prover/pkg/proof"
	"github.com/ethereum/go-ethereum/common"
)

// ReceiptRepository archives terminal pipeline states for audit. The live
// polling path reads the in-memory store; this table outlives the TTL.
type ReceiptRepository struct {
	client *Client
}

// NewReceiptRepository builds the repository.
func NewReceiptRepository(client *Client) *ReceiptRepository {
	return &ReceiptRepository{client: client}
}

// Save upserts a terminal state under its call hash.
func (r *ReceiptRepository) Save(ctx context.Context, callHash common.Hash, state *proof.State) error {
	var (
		sealBytes   []byte
		evmResult   []byte
		assumptions []byte
		proofLength int
		cyclesUsed  uint64
		elapsedMS   int64
	)
	if state.Data != nil {
		sealBytes = state.Data.Seal.Encode()
		evmResult = state.Data.EvmCallResult
		proofLength = state.Data.ProofLength
		cyclesUsed = state.Data.CyclesUsed
		elapsedMS = state.Data.ElapsedTime.Milliseconds()
		encoded, err := json.Marshal(state.Data.Assumptions)
		if err != nil {
			return fmt.Errorf("failed to encode call assumptions: %w", err)
		}
		assumptions = encoded
	}

	_, err := r.client.db.ExecContext(ctx, `
		INSERT INTO proof_receipts
			(call_hash, state, seal, evm_call_result, call_assumptions, proof_length, cycles_used, elapsed_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (call_hash) DO UPDATE SET
			state = EXCLUDED.state,
			seal = EXCLUDED.seal,
			evm_call_result = EXCLUDED.evm_call_result,
			call_assumptions = EXCLUDED.call_assumptions,
			proof_length = EXCLUDED.proof_length,
			cycles_used = EXCLUDED.cycles_used,
			elapsed_ms = EXCLUDED.elapsed_ms,
			error = EXCLUDED.error`,
		callHash.Hex(), string(state.Kind), sealBytes, evmResult, nullableJSON(assumptions),
		proofLength, int64(cyclesUsed), elapsedMS, nullableString(state.Error), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save proof receipt: %w", err)
	}
	return nil
}

// ArchivedReceipt is one persisted terminal state.
type ArchivedReceipt struct {
	CallHash    common.Hash
	State       proof.StateKind
	Seal        []byte
	EvmResult   []byte
	ProofLength int
	CyclesUsed  uint64
	Error       string
	CreatedAt   time.Time
}

// Get reads an archived receipt; nil when the hash is unknown.
func (r *ReceiptRepository) Get(ctx context.Context, callHash common.Hash) (*ArchivedReceipt, error) {
	row := r.client.db.QueryRowContext(ctx, `
		SELECT state, seal, evm_call_result, proof_length, cycles_used, error, created_at
		FROM proof_receipts WHERE call_hash = $1`, callHash.Hex())

	receipt := &ArchivedReceipt{CallHash: callHash}
	var (
		state     string
		errorText sql.NullString
		cycles    int64
	)
	err := row.Scan(&state, &receipt.Seal, &receipt.EvmResult, &receipt.ProofLength, &cycles, &errorText, &receipt.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read proof receipt: %w", err)
	}
	receipt.State = proof.StateKind(state)
	receipt.CyclesUsed = uint64(cycles)
	receipt.Error = errorText.String
	return receipt, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
