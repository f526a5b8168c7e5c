// Copyright 2025 Certen Protocol
//
// Database Client for Proof Receipt Archival
// Provides connection pooling, health checks, and schema setup

package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Client represents a database client with connection pooling.
type Client struct {
	db     *sql.DB
	logger *log.Logger
}

// NewClient connects to the archive database.
func NewClient(databaseURL string) (*Client, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	client := &Client{
		db:     db,
		logger: log.New(log.Writer(), "[Database] ", log.LstdFlags),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if err := client.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS proof_receipts (
	call_hash      TEXT PRIMARY KEY,
	state          TEXT NOT NULL,
	seal           BYTEA,
	evm_call_result BYTEA,
	call_assumptions JSONB,
	proof_length   INTEGER NOT NULL DEFAULT 0,
	cycles_used    BIGINT NOT NULL DEFAULT 0,
	elapsed_ms     BIGINT NOT NULL DEFAULT 0,
	error          TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS proof_receipts_created_at_idx ON proof_receipts (created_at);
`

func (c *Client) migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	c.logger.Println("schema ready")
	return nil
}

// Health checks the database connection.
func (c *Client) Health(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}
