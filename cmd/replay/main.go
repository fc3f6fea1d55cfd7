// Package main replays persisted history offline. --mode=verify re-derives
// the signal stream from stored candles and diffs it field by field against
// the stored records; --mode=simulate dry-runs the consumer's decision rules
// over the stored records without touching the live session.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solana-range-watch/internal/breakout"
	"solana-range-watch/internal/storage"
	chstore "solana-range-watch/internal/storage/clickhouse"
	"solana-range-watch/internal/storage/memory"
	pgstore "solana-range-watch/internal/storage/postgres"
	"solana-range-watch/internal/trader"
	"solana-range-watch/internal/verification"
)

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	mode := flag.String("mode", "verify", "Run mode: verify or simulate")
	fromTime := flag.String("from-time", "", "Start time (RFC3339), verify mode")
	toTime := flag.String("to-time", "", "End time (RFC3339), verify mode")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (verify mode)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	bandPct := flag.Float64("band-pct", breakout.DefaultBandPct, "Range band percent the watcher ran with")

	balance := flag.Float64("balance", 1000, "Fixed balance the simulated sizer sees")
	sizeFraction := flag.Float64("size-fraction", 0.5, "Fraction of balance per simulated action, (0, 1]")
	slippagePct := flag.Float64("slippage-pct", 0.01, "Simulated settlement slippage tolerance")
	maxActions := flag.Int("max-actions", 10, "Hard cap on simulated actions")
	minFloor := flag.Float64("min-floor", 10.0, "Minimum simulated action size; smaller sizes are skipped")
	sessionID := flag.String("session", verification.DefaultSimulationSessionID, "Simulation session ID (keeps action IDs stable across runs)")

	flag.Parse()

	// Setup structured logger
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	switch *mode {
	case "verify":
		runVerify(ctx, logger, verifyParams{
			postgresDSN:   *postgresDSN,
			clickhouseDSN: *clickhouseDSN,
			useMemory:     *useMemory,
			fromTime:      *fromTime,
			toTime:        *toTime,
			bandPct:       *bandPct,
			outputJSON:    *outputJSON,
		})
	case "simulate":
		if *fromTime != "" || *toTime != "" {
			logger.Fatal("--from-time/--to-time apply to verify mode only; simulation replays the full history")
		}
		runSimulate(ctx, logger, simulateParams{
			postgresDSN: *postgresDSN,
			useMemory:   *useMemory,
			balance:     *balance,
			sessionID:   *sessionID,
			outputJSON:  *outputJSON,
			config: trader.Config{
				SizeFraction:    *sizeFraction,
				SlippagePct:     *slippagePct,
				MaxActions:      *maxActions,
				MinBalanceFloor: *minFloor,
			},
		})
	default:
		logger.Fatalf("unknown mode %q (expected verify or simulate)", *mode)
	}
}

type verifyParams struct {
	postgresDSN   string
	clickhouseDSN string
	useMemory     bool
	fromTime      string
	toTime        string
	bandPct       float64
	outputJSON    bool
}

// DivergenceOutput is one divergent field in the JSON report.
type DivergenceOutput struct {
	TimestampMs int64       `json:"timestamp_ms"`
	Field       string      `json:"field"`
	Stored      interface{} `json:"stored"`
	Derived     interface{} `json:"derived"`
}

// VerifyOutput is the JSON shape of a verification run.
type VerifyOutput struct {
	TotalRecords     int                `json:"total_records"`
	MatchedRecords   int                `json:"matched_records"`
	DivergentRecords int                `json:"divergent_records"`
	Clean            bool               `json:"clean"`
	Divergences      []DivergenceOutput `json:"divergences,omitempty"`
}

// runVerify replays the stored candles and diffs the derived records against
// the stored ones. Exits non-zero when the window diverges, so the command
// doubles as an integrity check in scripts.
func runVerify(ctx context.Context, logger *log.Logger, p verifyParams) {
	var candles storage.CandleStore = memory.NewCandleStore()
	var signals storage.SignalStore = memory.NewSignalStore()

	if !p.useMemory {
		if p.postgresDSN == "" || p.clickhouseDSN == "" {
			logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
		}
		pool, err := pgstore.NewPool(ctx, p.postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		chConn, err := chstore.NewConn(ctx, p.clickhouseDSN)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer chConn.Close()

		candles = chstore.NewCandleStore(chConn)
		signals = pgstore.NewSignalStore(pool)
	}

	verifier, err := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		Candles: candles,
		Signals: signals,
		BandPct: p.bandPct,
	})
	if err != nil {
		logger.Fatalf("create verifier: %v", err)
	}

	// Either use explicit time range (both bounds required) or verify the
	// whole history.
	var report *verification.VerificationReport
	switch {
	case p.fromTime != "" && p.toTime != "":
		from, err := time.Parse(time.RFC3339, p.fromTime)
		if err != nil {
			logger.Fatalf("parse from-time: %v", err)
		}
		to, err := time.Parse(time.RFC3339, p.toTime)
		if err != nil {
			logger.Fatalf("parse to-time: %v", err)
		}
		logger.Printf("Verifying window %s to %s", p.fromTime, p.toTime)
		report, err = verifier.Verify(ctx, from.UnixMilli(), to.UnixMilli())
		if err != nil {
			fatalVerify(logger, err)
		}
	case p.fromTime != "" || p.toTime != "":
		logger.Fatal("Both --from-time and --to-time must be specified together for a bounded verification")
	default:
		logger.Printf("Verifying full persisted history")
		report, err = verifier.VerifyAll(ctx)
		if err != nil {
			fatalVerify(logger, err)
		}
	}

	if p.outputJSON {
		out := VerifyOutput{
			TotalRecords:     report.TotalRecords,
			MatchedRecords:   report.MatchedRecords,
			DivergentRecords: report.DivergentRecords,
			Clean:            report.Clean(),
		}
		for _, res := range report.Results {
			for _, d := range res.Divergences {
				out.Divergences = append(out.Divergences, DivergenceOutput{
					TimestampMs: res.TimestampMs,
					Field:       d.Field,
					Stored:      d.Expected,
					Derived:     d.Actual,
				})
			}
		}
		encoded, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(encoded))
	} else {
		for _, res := range report.Results {
			for _, d := range res.Divergences {
				fmt.Printf("[%s] bucket=%d field=%s stored=%v derived=%v\n",
					time.UnixMilli(res.TimestampMs).Format(time.RFC3339),
					res.TimestampMs, d.Field, d.Expected, d.Actual)
			}
		}

		fmt.Printf("\n=== Verification Summary ===\n")
		fmt.Printf("Buckets Compared:  %d\n", report.TotalRecords)
		fmt.Printf("Matched:           %d\n", report.MatchedRecords)
		fmt.Printf("Divergent:         %d\n", report.DivergentRecords)
		if report.Clean() {
			fmt.Printf("Result:            CLEAN\n")
		} else {
			fmt.Printf("Result:            DIVERGED\n")
		}
	}

	if !report.Clean() {
		os.Exit(1)
	}
}

func fatalVerify(logger *log.Logger, err error) {
	if errors.Is(err, verification.ErrNoCandles) {
		logger.Fatal("No candles in the verified window; nothing to replay")
	}
	logger.Fatalf("verification failed: %v", err)
}

type simulateParams struct {
	postgresDSN string
	useMemory   bool
	balance     float64
	sessionID   string
	outputJSON  bool
	config      trader.Config
}

// ActionOutput is one simulated action in the JSON report.
type ActionOutput struct {
	ActionID     string  `json:"action_id"`
	SignalTimeMs int64   `json:"signal_time_ms"`
	Action       string  `json:"action"`
	Size         float64 `json:"size"`
	Price        float64 `json:"price"`
}

// SimulateOutput is the JSON shape of a simulation run.
type SimulateOutput struct {
	RecordsProcessed int            `json:"records_processed"`
	Actions          []ActionOutput `json:"actions"`
	Noops            map[string]int `json:"noops"`
	FinalPosition    string         `json:"final_position"`
	ActionsTaken     int            `json:"actions_taken"`
	LastConsumedMs   int64          `json:"last_consumed_ms"`
}

// runSimulate dry-runs the consumer over the full stored record stream and
// prints the action log plus the final session state.
func runSimulate(ctx context.Context, logger *log.Logger, p simulateParams) {
	var signals storage.SignalStore = memory.NewSignalStore()

	if !p.useMemory {
		if p.postgresDSN == "" {
			logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
		}
		pool, err := pgstore.NewPool(ctx, p.postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		signals = pgstore.NewSignalStore(pool)
	}

	logger.Printf("Simulating consumer over full history (balance %.2f, session %s)", p.balance, p.sessionID)

	result, err := verification.Simulate(ctx, verification.SimulationOptions{
		Signals:   signals,
		Config:    p.config,
		Balance:   p.balance,
		SessionID: p.sessionID,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("simulation failed: %v", err)
	}

	if p.outputJSON {
		out := SimulateOutput{
			RecordsProcessed: result.RecordsProcessed,
			Actions:          make([]ActionOutput, 0, len(result.Actions)),
			Noops:            make(map[string]int, len(result.Noops)),
			FinalPosition:    result.FinalSession.HeldAsset.String(),
			ActionsTaken:     result.FinalSession.ActionsTaken,
			LastConsumedMs:   result.FinalSession.LastConsumedSignalID,
		}
		for _, a := range result.Actions {
			out.Actions = append(out.Actions, ActionOutput{
				ActionID:     a.ActionID,
				SignalTimeMs: a.SignalTimeMs,
				Action:       a.Action.String(),
				Size:         a.Size,
				Price:        a.Price,
			})
		}
		for reason, n := range result.Noops {
			out.Noops[string(reason)] = n
		}
		encoded, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(encoded))
		return
	}

	for _, a := range result.Actions {
		fmt.Printf("[%s] %s size=%.6f price=%.6f id=%s\n",
			time.UnixMilli(a.SignalTimeMs).Format(time.RFC3339),
			a.Action, a.Size, a.Price, a.ActionID)
	}

	fmt.Printf("\n=== Simulation Summary ===\n")
	fmt.Printf("Records Processed: %d\n", result.RecordsProcessed)
	fmt.Printf("Actions Executed:  %d\n", len(result.Actions))

	reasons := make([]string, 0, len(result.Noops))
	for reason := range result.Noops {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Printf("No-op %-12s %d\n", reason+":", result.Noops[trader.NoopReason(reason)])
	}

	fmt.Printf("Final Position:    %s\n", result.FinalSession.HeldAsset)
	fmt.Printf("Actions Taken:     %d\n", result.FinalSession.ActionsTaken)
	if result.FinalSession.LastConsumedSignalID > 0 {
		fmt.Printf("Last Consumed:     %s\n", time.UnixMilli(result.FinalSession.LastConsumedSignalID).Format(time.RFC3339))
	} else {
		fmt.Printf("Last Consumed:     N/A\n")
	}
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}
}
