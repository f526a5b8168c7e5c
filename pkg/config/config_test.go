// Copyright 2025 Certen Protocol
//
// Configuration Tests

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeChainsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chains.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write chains file: %v", err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeChainsFile(t, `
1:
  rpc_url: https://mainnet.example/rpc
10:
  rpc_url: https://op.example/rpc
  rollup_node_url: https://op.example/rollup
31337:
  rpc_url: http://localhost:8545
  forge: true
`)
	t.Setenv("PROVER_CHAINS_FILE", path)
	t.Setenv("PROVER_PROOF_MODE", "fake")
	t.Setenv("TELEPORT_MAX_COMMITMENT_AGE", "48h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(cfg.Chains) != 3 {
		t.Errorf("chains: got %d, want 3", len(cfg.Chains))
	}
	if !cfg.Chains[31337].Forge {
		t.Error("forge flag lost")
	}
	if cfg.TeleportMaxCommitmentAge != 48*time.Hour {
		t.Errorf("teleport age: got %v, want 48h", cfg.TeleportMaxCommitmentAge)
	}
	urls := cfg.RollupNodeURLs()
	if urls[10] != "https://op.example/rollup" || len(urls) != 1 {
		t.Errorf("rollup urls: %v", urls)
	}
}

func TestValidateRejectsMissingChains(t *testing.T) {
	t.Setenv("PROVER_CHAINS_FILE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure with no chains")
	}
}

func TestValidateRejectsGroth16WithoutKey(t *testing.T) {
	path := writeChainsFile(t, "1:\n  rpc_url: https://mainnet.example/rpc\n")
	t.Setenv("PROVER_CHAINS_FILE", path)
	t.Setenv("PROVER_PROOF_MODE", "groth16")
	t.Setenv("PROVER_VERIFYING_KEY_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure without verifying key")
	}
}
