package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solana-range-watch/internal/observability"
	"solana-range-watch/internal/solana"
	"solana-range-watch/internal/storage"
	"solana-range-watch/internal/storage/memory"
	"solana-range-watch/internal/storage/migrations"
	pgstore "solana-range-watch/internal/storage/postgres"
	"solana-range-watch/internal/trader"
)

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	migrate := flag.Bool("migrate", true, "Apply embedded schema migrations at startup")
	pollInterval := flag.Duration("poll-interval", 5*time.Second, "Signal store poll cadence")
	sizeFraction := flag.Float64("size-fraction", 0.5, "Fraction of balance per action, (0, 1]")
	slippagePct := flag.Float64("slippage-pct", 0.01, "Settlement slippage tolerance")
	maxActions := flag.Int("max-actions", 10, "Hard cap on executed actions per session")
	minFloor := flag.Float64("min-floor", 10.0, "Minimum action size; smaller sizes are skipped")
	dryRun := flag.Bool("dry-run", true, "Settle synthetically without touching external balances")
	settleRate := flag.Float64("settle-rate", 6.0, "Settlement attempts allowed per minute")
	sessionID := flag.String("session", os.Getenv("TRADER_SESSION_ID"), "Session ID to resume (empty creates a new session)")
	wallet := flag.String("wallet", os.Getenv("TRADER_WALLET"), "Operator wallet address")
	balance := flag.Float64("balance", 0, "Balance available for sizing actions")
	httpAddr := flag.String("http-addr", ":9091", "HTTP address for health/status/metrics (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[trader] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if *balance <= 0 {
		logger.Fatal("--balance must be positive")
	}
	if !*dryRun {
		// No settlement backend ships with this build; a live run would stamp
		// audit records as real for settlements that never reached a chain.
		logger.Fatal("--dry-run=false requires a settlement backend, none is configured")
	}
	if *wallet != "" {
		if err := solana.ValidateWalletAddress(*wallet); err != nil {
			logger.Fatalf("Invalid wallet address: %v", err)
		}
		logger.Printf("Operating wallet: %s", *wallet)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *useMemory, *migrate)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Load or create the trading session
	session, err := trader.LoadOrCreateSession(ctx, stores.sessions, *sessionID)
	if err != nil {
		logger.Fatalf("Failed to load session: %v", err)
	}
	logger.Printf("Session %s: holding %s, actions %d/%d, last consumed signal %d",
		session.SessionID, session.HeldAsset, session.ActionsTaken, *maxActions,
		session.LastConsumedSignalID)

	// Rate limit settlement attempts regardless of how fast signals arrive
	settler, err := trader.NewRateLimitedSettler(&trader.DryRunSettler{Logger: logger}, *settleRate)
	if err != nil {
		logger.Fatalf("Invalid settle rate: %v", err)
	}

	consumer, err := trader.NewConsumer(trader.Options{
		Session:  session,
		Sessions: stores.sessions,
		Actions:  stores.actions,
		Settler:  settler,
		Balances: trader.StaticBalance(*balance),
		Config: trader.Config{
			PollInterval:    *pollInterval,
			SizeFraction:    *sizeFraction,
			SlippagePct:     *slippagePct,
			MaxActions:      *maxActions,
			MinBalanceFloor: *minFloor,
			DryRun:          *dryRun,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create consumer: %v", err)
	}

	runner, err := trader.NewRunner(trader.RunnerOptions{
		Consumer: consumer,
		Signals:  stores.signals,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create trader runner: %v", err)
	}

	// Start HTTP server for health/status/metrics
	if *httpAddr != "" {
		go startHTTPServer(logger, *httpAddr, stores.sessions, session.SessionID)
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Run the consumer poll loop
	err = runner.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Trader error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// traderStores holds the stores the consumer side needs.
type traderStores struct {
	signals  storage.SignalStore
	sessions storage.SessionStore
	actions  storage.ActionStore
}

// createStores creates signal, session, and action stores. The session and
// action tables belong to the trader, so with migrate set the embedded
// migrations run here too; they are idempotent against a watcher that already
// applied them.
func createStores(ctx context.Context, postgresDSN string, useMemory, migrate bool) (*traderStores, func(), error) {
	if useMemory {
		stores := &traderStores{
			signals:  memory.NewSignalStore(),
			sessions: memory.NewSessionStore(),
			actions:  memory.NewActionStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	stores := &traderStores{
		signals:  pgstore.NewSignalStore(pool),
		sessions: pgstore.NewSessionStore(pool),
		actions:  pgstore.NewActionStore(pool),
	}

	return stores, func() { pool.Close() }, nil
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	SessionID            string `json:"session_id"`
	HeldAsset            string `json:"held_asset"`
	LastConsumedSignalID int64  `json:"last_consumed_signal_id"`
	ActionsTaken         int    `json:"actions_taken"`
	SessionStartMs       int64  `json:"session_start_ms"`
	UpdatedAtMs          int64  `json:"updated_at_ms"`
}

// startHTTPServer serves health, the durable session row, and Prometheus
// metrics. The store is read instead of the consumer's in-memory state, so
// the handler never races the poll loop.
func startHTTPServer(logger *log.Logger, addr string, sessions storage.SessionStore, sessionID string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		session, err := sessions.Get(r.Context(), sessionID)
		if err != nil {
			http.Error(w, fmt.Sprintf("load session: %v", err), http.StatusInternalServerError)
			return
		}
		resp := StatusResponse{
			SessionID:            session.SessionID,
			HeldAsset:            session.HeldAsset.String(),
			LastConsumedSignalID: session.LastConsumedSignalID,
			ActionsTaken:         session.ActionsTaken,
			SessionStartMs:       session.SessionStartMs,
			UpdatedAtMs:          session.UpdatedAtMs,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}
}
