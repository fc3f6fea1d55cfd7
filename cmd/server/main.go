// Package main serves the read-only query API over the persisted candle and
// signal-record stores: raw records and candles by time window, plus range
// segments reconstructed on demand for charting.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/observability"
	"solana-range-watch/internal/segment"
	"solana-range-watch/internal/storage"
	chstore "solana-range-watch/internal/storage/clickhouse"
	"solana-range-watch/internal/storage/memory"
	pgstore "solana-range-watch/internal/storage/postgres"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 500
)

// windows maps the recognized named query windows to durations. "all" is
// handled separately as an unbounded window.
var windows = map[string]time.Duration{
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"24h": 24 * time.Hour,
}

// Server holds the query API's stores and configuration.
type Server struct {
	candles storage.CandleStore
	signals storage.SignalStore
	logger  *log.Logger
	started time.Time
	now     func() time.Time
}

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	httpAddr := flag.String("http-addr", ":8080", "HTTP listen address")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	candles, signals, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	server := &Server{
		candles: candles,
		signals: signals,
		logger:  logger,
		started: time.Now(),
		now:     time.Now,
	}

	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: server.routes(),
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

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}

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

	logger.Printf("Query API listening on %s", *httpAddr)
	err = httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		err = nil
	}
	done <- err
	cancel()

	if err != nil {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates the candle and signal stores the API reads from.
// Candles come from ClickHouse, signal records from PostgreSQL; --use-memory
// swaps both at once.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.CandleStore, storage.SignalStore, func(), error) {
	if useMemory {
		return memory.NewCandleStore(), memory.NewSignalStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return chstore.NewCandleStore(chConn), pgstore.NewSignalStore(pool), cleanup, nil
}

// routes builds the HTTP mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	mux.HandleFunc("/api/candles", s.handleCandles)
	mux.HandleFunc("/api/signals", s.handleSignals)
	mux.HandleFunc("/api/segments", s.handleSegments)
	mux.HandleFunc("/api/segment", s.handleSegmentAt)

	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	SignalRecords int    `json:"signal_records"`
	LatestSignal  int64  `json:"latest_signal_ms,omitempty"`
	LatestBucket  int64  `json:"latest_bucket_ms,omitempty"`
}

// handleStatus returns store freshness as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Status: "running", Uptime: time.Since(s.started).String()}

	if n, err := s.signals.Count(r.Context()); err == nil {
		resp.SignalRecords = n
	}
	if rec, err := s.signals.GetLatest(r.Context()); err == nil {
		resp.LatestSignal = rec.TimestampMs
	}
	if c, err := s.candles.GetLatest(r.Context()); err == nil {
		resp.LatestBucket = c.BucketStart
	}

	writeJSON(w, resp)
}

// candleJSON is the API shape of one candle.
type candleJSON struct {
	BucketStart  int64   `json:"bucket_start"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	CompositionA float64 `json:"composition_a"`
	CompositionB float64 `json:"composition_b"`
}

// handleCandles serves candles for a window: /api/candles?window=1h or
// explicit ?start=&end= bounds in ms.
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r, s.now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	candles, err := s.candles.GetByTimeRange(r.Context(), start, end)
	if err != nil {
		s.logger.Printf("Candle query failed: %v", err)
		http.Error(w, "candle query failed", http.StatusInternalServerError)
		return
	}

	out := make([]candleJSON, 0, len(candles))
	for _, c := range candles {
		out = append(out, candleJSON{
			BucketStart:  c.BucketStart,
			Open:         c.Open,
			High:         c.High,
			Low:          c.Low,
			Close:        c.Close,
			CompositionA: c.CompositionA,
			CompositionB: c.CompositionB,
		})
	}
	writeJSON(w, out)
}

// signalJSON is the API shape of one signal record.
type signalJSON struct {
	Timestamp    int64   `json:"timestamp_ms"`
	Status       string  `json:"status"`
	UpperRange   float64 `json:"upper_range"`
	LowerRange   float64 `json:"lower_range"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	CompositionA float64 `json:"composition_a"`
	CompositionB float64 `json:"composition_b"`
	ResetKind    string  `json:"reset_kind"`
}

// SignalsResponse is one page of signal records.
type SignalsResponse struct {
	Page    int          `json:"page"`
	Limit   int          `json:"limit"`
	Order   string       `json:"order"`
	Count   int          `json:"count"`
	Records []signalJSON `json:"records"`
}

// handleSignals serves signal records by window with pagination:
// /api/signals?window=4h&order=desc&page=1&limit=100.
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r, s.now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, limit, desc, err := parsePagination(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.signals.GetPage(r.Context(), start, end, page, limit, desc)
	if err != nil {
		s.logger.Printf("Signal query failed: %v", err)
		http.Error(w, "signal query failed", http.StatusInternalServerError)
		return
	}

	order := "asc"
	if desc {
		order = "desc"
	}
	resp := SignalsResponse{
		Page:    page,
		Limit:   limit,
		Order:   order,
		Count:   len(records),
		Records: make([]signalJSON, 0, len(records)),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, toSignalJSON(rec))
	}
	writeJSON(w, resp)
}

// segmentJSON is the API shape of one reconstructed range segment.
type segmentJSON struct {
	Upper         float64 `json:"upper"`
	Lower         float64 `json:"lower"`
	StartTime     int64   `json:"start_time_ms"`
	EndTime       int64   `json:"end_time_ms"` // 0 while ongoing
	RecordCount   int     `json:"record_count"`
	ResetOccurred bool    `json:"reset_occurred"`
	ResetKind     string  `json:"reset_kind"`
}

// SegmentsResponse carries a window's reconstructed segments and their
// summary statistics.
type SegmentsResponse struct {
	Segments []segmentJSON `json:"segments"`
	Stats    segmentStats  `json:"stats"`
}

type segmentStats struct {
	TotalSegments  int     `json:"total_segments"`
	ClosedSegments int     `json:"closed_segments"`
	ResetUpCount   int     `json:"reset_up_count"`
	ResetDownCount int     `json:"reset_down_count"`
	MeanDurationMs float64 `json:"mean_duration_ms"`
	MaxDurationMs  int64   `json:"max_duration_ms"`
}

// handleSegments reconstructs the range segments for a window:
// /api/segments?window=24h. Reconstruction is pure, so concurrent requests
// each replay their own snapshot of the records.
func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r, s.now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.signals.GetByTimeRange(r.Context(), start, end)
	if err != nil {
		s.logger.Printf("Signal query failed: %v", err)
		http.Error(w, "signal query failed", http.StatusInternalServerError)
		return
	}

	segments := segment.Reconstruct(records)
	asOf := end
	if asOf == math.MaxInt64 {
		asOf = s.now().UnixMilli()
	}
	stats := segment.Stats(segments, asOf)

	resp := SegmentsResponse{
		Segments: make([]segmentJSON, 0, len(segments)),
		Stats: segmentStats{
			TotalSegments:  stats.TotalSegments,
			ClosedSegments: stats.ClosedSegments,
			ResetUpCount:   stats.ResetUpCount,
			ResetDownCount: stats.ResetDownCount,
			MeanDurationMs: stats.MeanDurationMs,
			MaxDurationMs:  stats.MaxDurationMs,
		},
	}
	for _, seg := range segments {
		resp.Segments = append(resp.Segments, toSegmentJSON(seg))
	}
	writeJSON(w, resp)
}

// handleSegmentAt returns the segment active at a point in time:
// /api/segment?at=<ms>. The full record stream is replayed so the segment's
// end and reset flags reflect everything persisted, not just the window up to
// the queried time.
func (s *Server) handleSegmentAt(w http.ResponseWriter, r *http.Request) {
	atStr := r.URL.Query().Get("at")
	if atStr == "" {
		http.Error(w, "missing required parameter: at", http.StatusBadRequest)
		return
	}
	at, err := strconv.ParseInt(atStr, 10, 64)
	if err != nil || at < 0 {
		http.Error(w, "parameter at must be a timestamp in ms", http.StatusBadRequest)
		return
	}

	records, err := s.signals.GetByTimeRange(r.Context(), 0, math.MaxInt64)
	if err != nil {
		s.logger.Printf("Signal query failed: %v", err)
		http.Error(w, "signal query failed", http.StatusInternalServerError)
		return
	}

	seg := segment.ActiveAt(segment.Reconstruct(records), at)
	if seg == nil {
		http.Error(w, "no segment active at the given time", http.StatusNotFound)
		return
	}
	writeJSON(w, toSegmentJSON(seg))
}

func toSignalJSON(rec *domain.SignalRecord) signalJSON {
	return signalJSON{
		Timestamp:    rec.TimestampMs,
		Status:       rec.Status.String(),
		UpperRange:   rec.UpperRange,
		LowerRange:   rec.LowerRange,
		Open:         rec.Open,
		High:         rec.High,
		Low:          rec.Low,
		Close:        rec.Close,
		CompositionA: rec.CompositionA,
		CompositionB: rec.CompositionB,
		ResetKind:    rec.Reset.String(),
	}
}

func toSegmentJSON(seg *domain.RangeSegment) segmentJSON {
	return segmentJSON{
		Upper:         seg.Upper,
		Lower:         seg.Lower,
		StartTime:     seg.StartTime,
		EndTime:       seg.EndTime,
		RecordCount:   seg.RecordCount,
		ResetOccurred: seg.ResetOccurred,
		ResetKind:     seg.Reset.String(),
	}
}

// parseWindow resolves the query's time bounds. Explicit ?start=&end= (ms)
// win; otherwise ?window=15m|1h|4h|24h|all is anchored at now, defaulting to
// all.
func parseWindow(r *http.Request, now func() time.Time) (int64, int64, error) {
	q := r.URL.Query()

	startStr, endStr := q.Get("start"), q.Get("end")
	if startStr != "" || endStr != "" {
		if startStr == "" || endStr == "" {
			return 0, 0, fmt.Errorf("start and end must be given together")
		}
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse start: %v", err)
		}
		end, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse end: %v", err)
		}
		if end < start {
			return 0, 0, fmt.Errorf("end %d precedes start %d", end, start)
		}
		return start, end, nil
	}

	window := q.Get("window")
	if window == "" || window == "all" {
		return 0, math.MaxInt64, nil
	}
	d, ok := windows[window]
	if !ok {
		return 0, 0, fmt.Errorf("unknown window %q (expected 15m, 1h, 4h, 24h, or all)", window)
	}
	end := now().UnixMilli()
	return end - d.Milliseconds(), end, nil
}

// parsePagination reads page/limit/order with defaults page=1, limit=100
// (capped at 500), order=asc.
func parsePagination(r *http.Request) (page, limit int, desc bool, err error) {
	q := r.URL.Query()

	page = 1
	if v := q.Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, false, fmt.Errorf("page must be a positive integer")
		}
	}

	limit = defaultPageLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, false, fmt.Errorf("limit must be a positive integer")
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
	}

	switch q.Get("order") {
	case "", "asc":
		desc = false
	case "desc":
		desc = true
	default:
		return 0, 0, false, fmt.Errorf("order must be asc or desc")
	}

	return page, limit, desc, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}
}
