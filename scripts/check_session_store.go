//go:build ignore

// Connects to the configured Postgres session store, creates the schema if
// needed and prints how many sessions are live.
//
//	go run scripts/check_session_store.go
package main

import (
	"context"
	"fmt"
	"os"

	"kart-checkout/internal/config"
	"kart-checkout/internal/database"
	"kart-checkout/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.Database.Backend = config.StorePostgres

	ctx := context.Background()
	logger := config.NewLogger(cfg.Logger)

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to create schema: %v\n", err)
		os.Exit(1)
	}

	var dbName string
	var live int64
	err = pool.QueryRow(ctx,
		"SELECT current_database(), (SELECT COUNT(*) FROM checkout_sessions WHERE expires_at > NOW())",
	).Scan(&dbName, &live)
	if err != nil {
		fmt.Fprintf(os.Stderr, "QueryRow failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Connected to database %s: %d live checkout sessions\n", dbName, live)
}
