// Package main runs the pool watcher: the single writer that samples one AMM
// pool's vaults, aggregates ticks into candles, evaluates the breakout
// machine, and persists candles and signal records.
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

	"solana-range-watch/internal/breakout"
	"solana-range-watch/internal/candle"
	"solana-range-watch/internal/feed"
	"solana-range-watch/internal/feed/stub"
	"solana-range-watch/internal/observability"
	"solana-range-watch/internal/solana"
	"solana-range-watch/internal/storage"
	chstore "solana-range-watch/internal/storage/clickhouse"
	"solana-range-watch/internal/storage/memory"
	"solana-range-watch/internal/storage/migrations"
	pgstore "solana-range-watch/internal/storage/postgres"
	"solana-range-watch/internal/watch"
)

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	baseVault := flag.String("base-vault", os.Getenv("POOL_BASE_VAULT"), "Pool base vault token account")
	quoteVault := flag.String("quote-vault", os.Getenv("POOL_QUOTE_VAULT"), "Pool quote vault token account")
	feedMode := flag.String("feed", "poll", "Tick source: poll, ws, or stub")
	pollInterval := flag.Duration("poll-interval", feed.DefaultPollInterval, "Vault sampling interval (poll mode)")
	candleIntervalMs := flag.Int64("candle-interval-ms", candle.DefaultIntervalMs, "Candle bucket width in milliseconds")
	bandPct := flag.Float64("band-pct", breakout.DefaultBandPct, "Range half-width as a fraction of the center price")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	migrate := flag.Bool("migrate", true, "Apply embedded schema migrations at startup")
	httpAddr := flag.String("http-addr", ":9090", "HTTP address for health/status/metrics (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[watcher] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, *migrate)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create tick source
	source, closeSource, err := createSource(ctx, logger, sourceConfig{
		mode:         *feedMode,
		rpcEndpoint:  *rpcEndpoint,
		wsEndpoint:   *wsEndpoint,
		baseVault:    *baseVault,
		quoteVault:   *quoteVault,
		pollInterval: *pollInterval,
	})
	if err != nil {
		logger.Fatalf("Failed to create tick source: %v", err)
	}
	defer closeSource()

	// Create the writer path: aggregator, machine, runner
	aggregator, err := candle.NewAggregator(*candleIntervalMs)
	if err != nil {
		logger.Fatalf("Invalid candle interval: %v", err)
	}
	machine, err := breakout.NewMachine(*bandPct)
	if err != nil {
		logger.Fatalf("Invalid band pct: %v", err)
	}

	runner, err := watch.NewRunner(watch.RunnerOptions{
		Source:     source,
		Aggregator: aggregator,
		Machine:    machine,
		Candles:    stores.candles,
		Signals:    stores.signals,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create watch runner: %v", err)
	}

	// Resume from the last persisted signal record
	if err := runner.Restore(ctx); err != nil {
		logger.Fatalf("Failed to restore machine state: %v", err)
	}

	// Start HTTP server for health/status/metrics
	if *httpAddr != "" {
		go startHTTPServer(logger, *httpAddr, runner)
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

	// Run the watcher
	err = runner.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Watcher error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// watchStores holds the two stores the writer needs.
type watchStores struct {
	candles storage.CandleStore
	signals storage.SignalStore
}

// createStores creates candle and signal stores. Candles go to ClickHouse,
// signal records to PostgreSQL; --use-memory swaps both at once. The watcher
// is the single writer, so it owns schema application: with migrate set, the
// embedded migrations run before any store touches a table.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory, migrate bool) (*watchStores, func(), error) {
	if useMemory {
		stores := &watchStores{
			candles: memory.NewCandleStore(),
			signals: memory.NewSignalStore(),
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

	var chConn *chstore.Conn
	if migrate {
		chConn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
	} else {
		chConn, err = chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
	}

	stores := &watchStores{
		candles: chstore.NewCandleStore(chConn),
		signals: pgstore.NewSignalStore(pool),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// sourceConfig carries the flags that shape the tick source.
type sourceConfig struct {
	mode         string
	rpcEndpoint  string
	wsEndpoint   string
	baseVault    string
	quoteVault   string
	pollInterval time.Duration
}

// createSource builds the tick source for the configured feed mode. The stub
// mode needs no endpoints and produces a deterministic random walk for local
// runs.
func createSource(ctx context.Context, logger *log.Logger, cfg sourceConfig) (feed.Source, func(), error) {
	switch cfg.mode {
	case "poll":
		if cfg.rpcEndpoint == "" {
			return nil, nil, fmt.Errorf("--rpc-endpoint is required for poll feed")
		}
		rpc := solana.NewHTTPClient(cfg.rpcEndpoint)
		if err := verifyVaults(ctx, rpc, cfg.baseVault, cfg.quoteVault); err != nil {
			return nil, nil, err
		}
		source, err := feed.NewPollSource(feed.PollOptions{
			RPC:        rpc,
			BaseVault:  cfg.baseVault,
			QuoteVault: cfg.quoteVault,
			Interval:   cfg.pollInterval,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return source, func() {}, nil

	case "ws":
		if cfg.rpcEndpoint == "" {
			return nil, nil, fmt.Errorf("--rpc-endpoint is required for ws feed (startup vault check)")
		}
		if cfg.wsEndpoint == "" {
			return nil, nil, fmt.Errorf("--ws-endpoint is required for ws feed")
		}
		rpc := solana.NewHTTPClient(cfg.rpcEndpoint)
		if err := verifyVaults(ctx, rpc, cfg.baseVault, cfg.quoteVault); err != nil {
			return nil, nil, err
		}
		ws, err := solana.NewWSClient(ctx, cfg.wsEndpoint, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("create websocket client: %w", err)
		}
		source, err := feed.NewWSSource(feed.WSOptions{
			WS:         ws,
			BaseVault:  cfg.baseVault,
			QuoteVault: cfg.quoteVault,
			Logger:     logger,
		})
		if err != nil {
			ws.Close()
			return nil, nil, err
		}
		return source, func() { ws.Close() }, nil

	case "stub":
		source, err := stub.NewWalkSource(3100.0, 0.5, 50, 200*time.Millisecond)
		if err != nil {
			return nil, nil, err
		}
		logger.Println("Using stub feed (deterministic random walk)")
		return source, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown feed mode %q (expected poll, ws, or stub)", cfg.mode)
	}
}

// verifyVaults checks at startup that both vault accounts exist and are owned
// by the SPL token program. A misconfigured vault address fails here rather
// than on every poll cycle.
func verifyVaults(ctx context.Context, rpc solana.RPCClient, baseVault, quoteVault string) error {
	if err := solana.ValidateAddress(baseVault); err != nil {
		return fmt.Errorf("base vault: %w", err)
	}
	if err := solana.ValidateAddress(quoteVault); err != nil {
		return fmt.Errorf("quote vault: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, solana.DefaultTimeout)
	defer cancel()

	infos, err := rpc.GetMultipleAccounts(checkCtx, []string{baseVault, quoteVault})
	if err != nil {
		return fmt.Errorf("verify vault accounts: %w", err)
	}
	if len(infos) != 2 || infos[0] == nil || infos[1] == nil {
		return fmt.Errorf("vault account missing on chain (base found=%t, quote found=%t)",
			len(infos) == 2 && infos[0] != nil, len(infos) == 2 && infos[1] != nil)
	}
	if infos[0].Owner != solana.TokenProgramID {
		return fmt.Errorf("base vault %s is not an SPL token account (owner %s)", baseVault, infos[0].Owner)
	}
	if infos[1].Owner != solana.TokenProgramID {
		return fmt.Errorf("quote vault %s is not an SPL token account (owner %s)", quoteVault, infos[1].Owner)
	}
	return nil
}

// startHTTPServer serves health, runner status, and Prometheus metrics.
func startHTTPServer(logger *log.Logger, addr string, runner *watch.Runner) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runner.Status())
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
