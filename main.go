// Copyright 2025 Certen Protocol
//
// Verifiable Off-Chain Computation Service
//
// Entry point of the proving server: wires configuration, chain providers,
// the precompile suite, chain-proof and teleport verification, the proving
// backend, and the JSON-RPC surface.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/certen/offchain-prover/pkg/chainproof"
	"github.com/certen/offchain-prover/pkg/config"
	"github.com/certen/offchain-prover/pkg/database"
	"github.com/certen/offchain-prover/pkg/evm"
	"github.com/certen/offchain-prover/pkg/gasmeter"
	"github.com/certen/offchain-prover/pkg/host"
	"github.com/certen/offchain-prover/pkg/metrics"
	"github.com/certen/offchain-prover/pkg/precompiles"
	"github.com/certen/offchain-prover/pkg/proof"
	"github.com/certen/offchain-prover/pkg/provider"
	"github.com/certen/offchain-prover/pkg/server"
	"github.com/certen/offchain-prover/pkg/teleport"
	"github.com/certen/offchain-prover/pkg/zk"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func main() {
	log.SetPrefix("[prover] ")
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	metrics.Serve(cfg.MetricsAddr)
	metrics.New()
	log.Printf("metrics listening on %s", cfg.MetricsAddr)

	providers, err := buildProviders(cfg)
	if err != nil {
		log.Fatalf("failed to build providers: %v", err)
	}
	registry := buildRegistry()

	chainClient, chainVerifier, err := buildChainProof(cfg)
	if err != nil {
		log.Fatalf("failed to build chain-proof verification: %v", err)
	}
	teleportFactory, err := buildTeleport(cfg)
	if err != nil {
		log.Fatalf("failed to build teleport verification: %v", err)
	}

	preflightHost := host.NewHost(providers, registry, chainClient, chainVerifier, teleportFactory)

	prover, err := buildProver(cfg)
	if err != nil {
		log.Fatalf("failed to build prover: %v", err)
	}

	store := proof.NewStore(cfg.ProofTTL)
	if cfg.DatabaseURL != "" {
		client, err := database.NewClient(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to archive database: %v", err)
		}
		defer client.Close()
		receipts := database.NewReceiptRepository(client)
		store.OnTerminal(func(hash common.Hash, state proof.State) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := receipts.Save(ctx, hash, &state); err != nil {
				log.Printf("failed to archive receipt %x: %v", hash, err)
			}
		})
		log.Printf("archiving proof receipts to postgres")
	}

	serverConfig := server.Config{
		CallGuestID:      cfg.CallGuestID,
		ChainGuestID:     cfg.ChainGuestID,
		APIVersion:       config.APIVersion,
		MaxCalldataSize:  cfg.MaxCalldataSize,
		DefaultVgasLimit: cfg.DefaultVgasLimit,
		PreflightTimeout: cfg.PreflightTimeout,
		GasMeter:         buildGasMeterFactory(cfg),
	}
	rpcServer := server.NewServer(
		serverConfig,
		store,
		preflightHost,
		prover,
		host.WitnessCycleEstimator{},
		host.GuestELF{ID: cfg.CallGuestID},
	)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: rpcServer}
	go func() {
		log.Printf("json-rpc listening on %s (proof mode: %s)", cfg.ListenAddr, cfg.ProofMode)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// buildProviders dials every configured chain and wraps each endpoint in a
// response cache.
func buildProviders(cfg *config.Config) (*provider.CachedMultiProvider, error) {
	cached := make(map[uint64]*provider.CachedProvider, len(cfg.Chains))
	for chainID, chain := range cfg.Chains {
		eth, err := provider.Dial(chain.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", chainID, err)
		}
		if chain.Forge {
			eth = eth.WithForgeHeaders()
		}
		cached[chainID] = provider.NewCachedProvider(eth, provider.NewCache())
		log.Printf("chain %d provider: %s", chainID, chain.RPCURL)
	}
	return provider.NewCachedMultiProvider(cached), nil
}

// buildRegistry assembles the oracle precompile suite. Notary keys for web
// proofs come from PROVER_NOTARY_KEYS (comma-separated hex).
func buildRegistry() *precompiles.Registry {
	var notaryKeys []hexutil.Bytes
	for _, raw := range strings.Split(os.Getenv("PROVER_NOTARY_KEYS"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, err := hexutil.Decode(raw)
		if err != nil {
			log.Fatalf("invalid notary key %q: %v", raw, err)
		}
		notaryKeys = append(notaryKeys, key)
	}
	var web *precompiles.WebProofPreverifier
	if len(notaryKeys) > 0 {
		web = precompiles.NewWebProofPreverifier(notaryKeys)
	}
	return precompiles.NewRegistry(precompiles.NewEmailPreverifier(), web)
}

func buildChainProof(cfg *config.Config) (chainproof.Client, *chainproof.Verifier, error) {
	if cfg.ChainProofURL == "" {
		log.Printf("chain-proof verification disabled")
		return nil, nil, nil
	}
	zkVerifier, err := buildZkVerifier(cfg)
	if err != nil {
		return nil, nil, err
	}
	return chainproof.NewHTTPClient(cfg.ChainProofURL), chainproof.NewVerifier(cfg.ChainGuestID, zkVerifier), nil
}

func buildZkVerifier(cfg *config.Config) (zk.ProofVerifier, error) {
	if cfg.ProofMode == config.ProofModeFake {
		return zk.FakeVerifier{}, nil
	}
	rawVK, err := os.ReadFile(cfg.VerifyingKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read verifying key: %w", err)
	}
	return zk.NewGroth16Verifier(rawVK)
}

func buildTeleport(cfg *config.Config) (func(*evm.EnvFactory) (*teleport.Verifier, error), error) {
	urls := cfg.RollupNodeURLs()
	if len(urls) == 0 {
		log.Printf("teleport verification disabled: no rollup nodes configured")
		return nil, nil
	}
	fetcher, err := teleport.NewRPCOutputFetcher(urls)
	if err != nil {
		return nil, err
	}
	specs := cfg.TeleportSpecs()
	maxAge := cfg.TeleportMaxCommitmentAge
	return func(factory *evm.EnvFactory) (*teleport.Verifier, error) {
		return teleport.NewVerifier(specs, fetcher, factory, maxAge)
	}, nil
}

func buildProver(cfg *config.Config) (host.Prover, error) {
	if cfg.ProofMode == config.ProofModeFake {
		log.Printf("using fake prover")
		return host.FakeProver{}, nil
	}
	engineURL := os.Getenv("PROVER_ENGINE_URL")
	if engineURL == "" {
		return nil, fmt.Errorf("PROVER_ENGINE_URL is required in groth16 mode")
	}
	return host.NewRemoteProver(engineURL), nil
}

func buildGasMeterFactory(cfg *config.Config) func(bearer string) gasmeter.Client {
	if cfg.GasMeterURL == "" {
		log.Printf("gas metering disabled")
		return nil
	}
	return func(bearer string) gasmeter.Client {
		return gasmeter.NewHTTPClient(gasmeter.Config{
			URL:         cfg.GasMeterURL,
			APIKey:      cfg.GasMeterAPIKey,
			BearerToken: bearer,
		})
	}
}
