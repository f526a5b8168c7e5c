// Copyright 2025 Certen Protocol
//
// Service Configuration
//
// Configuration comes from environment variables, with the multi-chain
// endpoint map in a YAML file. Required variables have no defaults; call
// Validate() after Load().

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/certen/offchain-prover/pkg/teleport"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// APIVersion is reported by v_versions.
const APIVersion = "1.3.0"

// Proof modes.
const (
	ProofModeFake    = "fake"
	ProofModeGroth16 = "groth16"
)

// ChainConfig describes one configured chain.
type ChainConfig struct {
	// RPCURL is the archival node endpoint.
	RPCURL string `yaml:"rpc_url"`
	// RollupNodeURL serves optimism_outputAtBlock for teleport destinations.
	RollupNodeURL string `yaml:"rollup_node_url"`
	// Forge marks dev-node chains with the reduced header format.
	Forge bool `yaml:"forge"`
	// Teleport overrides the built-in anchor registry spec.
	Teleport *teleport.ChainSpec `yaml:"teleport"`
}

// Config holds all configuration for the proving service.
type Config struct {
	// Server Configuration
	ListenAddr  string
	MetricsAddr string

	// Proving Configuration
	ProofMode        string
	CallGuestID      common.Hash
	ChainGuestID     common.Hash
	VerifyingKeyPath string

	// Chain Configuration
	ChainsFile string
	Chains     map[uint64]ChainConfig

	// Gas Meter Configuration (optional)
	GasMeterURL    string
	GasMeterAPIKey string

	// Chain-Proof Service Configuration (optional)
	ChainProofURL string

	// Result Archive Configuration (optional)
	DatabaseURL string

	// Limits and Timeouts
	DefaultVgasLimit         uint64
	MaxCalldataSize          int
	PreflightTimeout         time.Duration
	ProofTTL                 time.Duration
	TeleportMaxCommitmentAge time.Duration
}

// Load reads configuration from environment variables and the chains file.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:               getEnv("PROVER_LISTEN_ADDR", "127.0.0.1:3000"),
		MetricsAddr:              getEnv("PROVER_METRICS_ADDR", "127.0.0.1:9090"),
		ProofMode:                getEnv("PROVER_PROOF_MODE", ProofModeFake),
		VerifyingKeyPath:         os.Getenv("PROVER_VERIFYING_KEY_PATH"),
		ChainsFile:               os.Getenv("PROVER_CHAINS_FILE"),
		GasMeterURL:              os.Getenv("GAS_METER_URL"),
		GasMeterAPIKey:           os.Getenv("GAS_METER_API_KEY"),
		ChainProofURL:            os.Getenv("CHAIN_PROOF_URL"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		DefaultVgasLimit:         getEnvUint("PROVER_DEFAULT_VGAS_LIMIT", 1000),
		MaxCalldataSize:          int(getEnvUint("PROVER_MAX_CALLDATA_SIZE", 5*1024*1024)),
		PreflightTimeout:         getEnvDuration("PROVER_PREFLIGHT_TIMEOUT", 4*time.Minute),
		ProofTTL:                 getEnvDuration("PROVER_PROOF_TTL", time.Hour),
		TeleportMaxCommitmentAge: getEnvDuration("TELEPORT_MAX_COMMITMENT_AGE", teleport.DefaultMaxCommitmentAge),
	}

	if id := os.Getenv("PROVER_CALL_GUEST_ID"); id != "" {
		cfg.CallGuestID = common.HexToHash(id)
	}
	if id := os.Getenv("PROVER_CHAIN_GUEST_ID"); id != "" {
		cfg.ChainGuestID = common.HexToHash(id)
	}

	if cfg.ChainsFile != "" {
		chains, err := loadChainsFile(cfg.ChainsFile)
		if err != nil {
			return nil, err
		}
		cfg.Chains = chains
	}
	return cfg, nil
}

// Validate ensures required configuration is present and consistent.
func (cfg *Config) Validate() error {
	if cfg.ProofMode != ProofModeFake && cfg.ProofMode != ProofModeGroth16 {
		return fmt.Errorf("invalid PROVER_PROOF_MODE %q", cfg.ProofMode)
	}
	if cfg.ProofMode == ProofModeGroth16 && cfg.VerifyingKeyPath == "" {
		return fmt.Errorf("PROVER_VERIFYING_KEY_PATH is required in groth16 mode")
	}
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("PROVER_CHAINS_FILE must configure at least one chain")
	}
	for chainID, chain := range cfg.Chains {
		if chain.RPCURL == "" {
			return fmt.Errorf("chain %d has no rpc_url", chainID)
		}
	}
	return nil
}

// TeleportSpecs merges the built-in chain specs with per-chain overrides.
func (cfg *Config) TeleportSpecs() teleport.ChainSpecs {
	specs := teleport.DefaultChainSpecs()
	for chainID, chain := range cfg.Chains {
		if chain.Teleport != nil {
			specs[chainID] = *chain.Teleport
		}
	}
	return specs
}

// RollupNodeURLs returns the configured rollup-node endpoints.
func (cfg *Config) RollupNodeURLs() map[uint64]string {
	urls := make(map[uint64]string)
	for chainID, chain := range cfg.Chains {
		if chain.RollupNodeURL != "" {
			urls[chainID] = chain.RollupNodeURL
		}
	}
	return urls
}

func loadChainsFile(path string) (map[uint64]ChainConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains file %s: %w", path, err)
	}
	chains := make(map[uint64]ChainConfig)
	if err := yaml.Unmarshal(raw, &chains); err != nil {
		return nil, fmt.Errorf("failed to parse chains file %s: %w", path, err)
	}
	return chains, nil
}

func getEnv(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func getEnvUint(name string, fallback uint64) uint64 {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(name string, fallback time.Duration) time.Duration {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
