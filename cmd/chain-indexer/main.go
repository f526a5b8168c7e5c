// Copyright 2025 Certen Protocol
//
// Chain Indexer Service
//
// Out-of-band service that continuously extends a proven block trie per
// configured chain, producing the receipts the chain-proof verifier
// consumes.

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/certen/offchain-prover/pkg/chaindb"
	"github.com/certen/offchain-prover/pkg/config"
	"github.com/certen/offchain-prover/pkg/indexer"
	"github.com/certen/offchain-prover/pkg/provider"
)

func main() {
	log.SetPrefix("[chain-indexer] ")
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)

	var (
		dbPath       = flag.String("db", "chaindb", "chain database directory")
		pollInterval = flag.Duration("poll-interval", 12*time.Second, "poll interval per chain")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	db, err := chaindb.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open chain db: %v", err)
	}
	defer db.Close()

	if cfg.ProofMode != config.ProofModeFake {
		// Only the fake chain prover is wired into this service; any other
		// proof mode stops it here.
		log.Fatalf("chain indexing with proof mode %q is handled by the proving engine", cfg.ProofMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for chainID, chain := range cfg.Chains {
		eth, err := provider.Dial(chain.RPCURL)
		if err != nil {
			log.Fatalf("chain %d: %v", chainID, err)
		}
		if chain.Forge {
			eth = eth.WithForgeHeaders()
		}
		cached := provider.NewCachedProvider(eth, provider.NewCache())

		ix := indexer.New(
			db,
			cached,
			indexer.FakeChainProver{ChainGuestID: cfg.ChainGuestID},
			chainID,
			cfg.ChainGuestID,
			indexer.DefaultStrategy(),
		)
		wg.Add(1)
		go func(chainID uint64) {
			defer wg.Done()
			log.Printf("indexing chain %d", chainID)
			ix.Run(ctx, *pollInterval)
		}(chainID)
	}

	wg.Wait()
	log.Printf("stopped")
	os.Exit(0)
}
