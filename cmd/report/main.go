// Package main writes the windowed range-segment and trading-activity report:
// segments.md plus segments.csv and actions.csv in the output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"solana-range-watch/internal/reporting"
	"solana-range-watch/internal/storage"
	"solana-range-watch/internal/storage/memory"
	pgstore "solana-range-watch/internal/storage/postgres"
)

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	outputDir := flag.String("output-dir", "docs", "Output directory for generated files")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	fromTime := flag.String("from-time", "", "Window start (RFC3339), defaults to full history")
	toTime := flag.String("to-time", "", "Window end (RFC3339), defaults to full history")
	flag.Parse()

	ctx := context.Background()

	// Validate flags
	if !*useMemory && *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required when not using in-memory storage")
		fmt.Fprintln(os.Stderr, "Use --use-memory to run against empty in-memory stores")
		os.Exit(1)
	}

	// Determine the report window
	startMs, endMs := int64(0), int64(math.MaxInt64)
	switch {
	case *fromTime != "" && *toTime != "":
		from, err := time.Parse(time.RFC3339, *fromTime)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: parse from-time: %v\n", err)
			os.Exit(1)
		}
		to, err := time.Parse(time.RFC3339, *toTime)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: parse to-time: %v\n", err)
			os.Exit(1)
		}
		startMs, endMs = from.UnixMilli(), to.UnixMilli()
		if endMs < startMs {
			fmt.Fprintln(os.Stderr, "Error: --to-time precedes --from-time")
			os.Exit(1)
		}
	case *fromTime != "" || *toTime != "":
		fmt.Fprintln(os.Stderr, "Error: --from-time and --to-time must be specified together")
		os.Exit(1)
	}

	// Create stores based on mode
	var (
		signals storage.SignalStore
		actions storage.ActionStore
	)

	if *useMemory {
		signals, actions = memory.NewSignalStore(), memory.NewActionStore()
	} else {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()

		signals, actions = pgstore.NewSignalStore(pool), pgstore.NewActionStore(pool)
	}

	// Generate the report
	report, err := reporting.NewGenerator(signals, actions).Generate(ctx, startMs, endMs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	// Ensure output directory exists
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	// Write segments.md
	mdPath := filepath.Join(*outputDir, "segments.md")
	if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(report)), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", mdPath, err)
		os.Exit(1)
	}

	// Write segments.csv
	segPath := filepath.Join(*outputDir, "segments.csv")
	if err := os.WriteFile(segPath, []byte(reporting.RenderSegmentsCSV(report.Segments)), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", segPath, err)
		os.Exit(1)
	}

	// Write actions.csv
	actPath := filepath.Join(*outputDir, "actions.csv")
	if err := os.WriteFile(actPath, []byte(reporting.RenderActionsCSV(report.Actions)), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", actPath, err)
		os.Exit(1)
	}

	fmt.Println("Report generated successfully:")
	fmt.Printf("  - %s\n", mdPath)
	fmt.Printf("  - %s\n", segPath)
	fmt.Printf("  - %s\n", actPath)
	fmt.Printf("Window: %d to %d, %d records, %d segments, %d actions\n",
		report.WindowStartMs, report.WindowEndMs,
		report.Summary.TotalRecords, report.Summary.TotalSegments, report.Summary.TotalActions)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}
}
