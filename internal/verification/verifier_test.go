package verification

import (
	"context"
	"errors"
	"math"
	"testing"

	"solana-range-watch/internal/breakout"
	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage/memory"
)

func matchedRecord() *domain.SignalRecord {
	return &domain.SignalRecord{
		TimestampMs:  60_000,
		Status:       domain.StatusMonitoring,
		UpperRange:   3103.1,
		LowerRange:   3096.9,
		Open:         3100.0,
		High:         3101.0,
		Low:          3099.5,
		Close:        3100.5,
		CompositionA: 50.0,
		CompositionB: 50.0,
		Reset:        domain.ResetNone,
	}
}

func TestCompareSignalRecords_ExactMatch(t *testing.T) {
	stored := matchedRecord()
	derived := matchedRecord()

	divergences := CompareSignalRecords(stored, derived)

	if len(divergences) != 0 {
		t.Errorf("Expected 0 divergences, got %d: %v", len(divergences), divergences)
	}
}

func TestCompareSignalRecords_StatusDivergence(t *testing.T) {
	stored := matchedRecord()
	derived := matchedRecord()
	derived.Status = domain.StatusBreakoutPendingUp

	divergences := CompareSignalRecords(stored, derived)

	if len(divergences) != 1 {
		t.Fatalf("Expected 1 divergence, got %d: %v", len(divergences), divergences)
	}
	if divergences[0].Field != "Status" {
		t.Errorf("Expected Status divergence, got %s", divergences[0].Field)
	}
}

func TestCompareSignalRecords_WithinTolerance(t *testing.T) {
	stored := matchedRecord()
	derived := matchedRecord()
	derived.UpperRange += FloatTolerance / 2

	divergences := CompareSignalRecords(stored, derived)

	for _, d := range divergences {
		if d.Field == "UpperRange" {
			t.Errorf("UpperRange should not diverge within tolerance: stored=%v, derived=%v",
				d.Expected, d.Actual)
		}
	}
}

func TestCompareSignalRecords_RangeDivergence(t *testing.T) {
	stored := matchedRecord()
	derived := matchedRecord()
	derived.UpperRange += 1.0
	derived.Reset = domain.ResetUp

	divergences := CompareSignalRecords(stored, derived)

	var fields []string
	for _, d := range divergences {
		fields = append(fields, d.Field)
	}
	if len(fields) != 2 || fields[0] != "UpperRange" || fields[1] != "Reset" {
		t.Errorf("Expected UpperRange and Reset divergences, got %v", fields)
	}
}

func TestFloatEquals(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want bool
	}{
		{"exact match", 1.0, 1.0, true},
		{"within tolerance", 1.0, 1.0 + FloatTolerance/2, true},
		{"at tolerance boundary", 1.0, 1.0 + FloatTolerance, true},
		{"beyond tolerance", 1.0, 1.0 + FloatTolerance*2, false},
		{"zeros", 0.0, 0.0, true},
		{"small values", 1e-10, 1e-10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := floatEquals(tt.a, tt.b); got != tt.want {
				t.Errorf("floatEquals(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func candleAt(bucket int64, open, close float64) *domain.Candle {
	return &domain.Candle{
		BucketStart:  bucket,
		Open:         open,
		High:         math.Max(open, close),
		Low:          math.Min(open, close),
		Close:        close,
		CompositionA: 50.0,
		CompositionB: 50.0,
	}
}

// seedHistory runs the candles through a fresh machine and stores both the
// candles and the records a watcher would have written for them.
func seedHistory(t *testing.T, candles *memory.CandleStore, signals *memory.SignalStore, cs []*domain.Candle) []*domain.SignalRecord {
	t.Helper()
	ctx := context.Background()

	machine, err := breakout.NewMachine(breakout.DefaultBandPct)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}

	var records []*domain.SignalRecord
	for _, c := range cs {
		if err := candles.Insert(ctx, c); err != nil {
			t.Fatalf("Candle insert failed: %v", err)
		}
		rec, err := machine.Evaluate(*c)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if err := signals.Insert(ctx, rec); err != nil {
			t.Fatalf("Record insert failed: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

// breakoutCandles is a seed → pending → confirm sequence.
func breakoutCandles() []*domain.Candle {
	return []*domain.Candle{
		candleAt(60_000, 3100.0, 3100.0),  // seeds [3096.9, 3103.1]
		candleAt(120_000, 3104.0, 3105.0), // BREAKOUT_PENDING_UP
		candleAt(180_000, 3106.0, 3110.0), // CONFIRMED_UP, resets to [3106.89, 3113.11]
	}
}

func newVerifier(t *testing.T, candles *memory.CandleStore, signals *memory.SignalStore) *ReplayVerifier {
	t.Helper()
	v, err := NewReplayVerifier(ReplayVerifierOptions{Candles: candles, Signals: signals})
	if err != nil {
		t.Fatalf("NewReplayVerifier failed: %v", err)
	}
	return v
}

func TestReplayVerifier_CleanHistory(t *testing.T) {
	candles := memory.NewCandleStore()
	signals := memory.NewSignalStore()
	seedHistory(t, candles, signals, breakoutCandles())

	report, err := newVerifier(t, candles, signals).VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}

	if !report.Clean() {
		t.Errorf("Expected clean report, got %d divergent: %+v", report.DivergentRecords, report.Results)
	}
	if report.TotalRecords != 3 || report.MatchedRecords != 3 {
		t.Errorf("Expected 3/3 matched, got %d/%d", report.MatchedRecords, report.TotalRecords)
	}
}

func TestReplayVerifier_FlagsAlteredRecord(t *testing.T) {
	candles := memory.NewCandleStore()
	signals := memory.NewSignalStore()

	cs := breakoutCandles()
	records := seedHistory(t, candles, signals, cs)

	// Rewrite the stored record for the middle bucket with a doctored status.
	tampered := memory.NewSignalStore()
	ctx := context.Background()
	for i, rec := range records {
		cp := *rec
		if i == 1 {
			cp.Status = domain.StatusMonitoring
		}
		if err := tampered.Insert(ctx, &cp); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	report, err := newVerifier(t, candles, tampered).VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}

	if report.DivergentRecords != 1 || report.MatchedRecords != 2 {
		t.Fatalf("Expected exactly 1 divergent record, got %d/%d", report.DivergentRecords, report.TotalRecords)
	}

	bad := report.Results[1]
	if bad.TimestampMs != 120_000 || bad.Match {
		t.Fatalf("Wrong record flagged: %+v", bad)
	}
	if len(bad.Divergences) != 1 || bad.Divergences[0].Field != "Status" {
		t.Errorf("Expected Status divergence, got %+v", bad.Divergences)
	}
}

func TestReplayVerifier_FlagsMissingRecord(t *testing.T) {
	candles := memory.NewCandleStore()
	signals := memory.NewSignalStore()
	records := seedHistory(t, candles, signals, breakoutCandles())

	// Keep all but the confirmed record.
	pruned := memory.NewSignalStore()
	ctx := context.Background()
	for _, rec := range records[:2] {
		cp := *rec
		if err := pruned.Insert(ctx, &cp); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	report, err := newVerifier(t, candles, pruned).VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}

	if report.DivergentRecords != 1 {
		t.Fatalf("Expected 1 divergent record, got %d", report.DivergentRecords)
	}
	missing := report.Results[2]
	if missing.TimestampMs != 180_000 {
		t.Fatalf("Wrong bucket flagged: %+v", missing)
	}
	if len(missing.Divergences) != 1 || missing.Divergences[0].Field != "Record" ||
		missing.Divergences[0].Expected != nil {
		t.Errorf("Expected a missing-record divergence, got %+v", missing.Divergences)
	}
}

func TestReplayVerifier_FlagsUnexplainedRecord(t *testing.T) {
	candles := memory.NewCandleStore()
	signals := memory.NewSignalStore()
	seedHistory(t, candles, signals, breakoutCandles())

	// A record for a bucket that has no candle behind it.
	orphan := matchedRecord()
	orphan.TimestampMs = 240_000
	if err := signals.Insert(context.Background(), orphan); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	report, err := newVerifier(t, candles, signals).VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}

	if report.TotalRecords != 4 || report.DivergentRecords != 1 {
		t.Fatalf("Expected 4 buckets with 1 divergent, got %d/%d", report.DivergentRecords, report.TotalRecords)
	}
	unexplained := report.Results[3]
	if unexplained.TimestampMs != 240_000 {
		t.Fatalf("Wrong bucket flagged: %+v", unexplained)
	}
	if len(unexplained.Divergences) != 1 || unexplained.Divergences[0].Field != "Record" ||
		unexplained.Divergences[0].Actual != nil {
		t.Errorf("Expected an unexplained-record divergence, got %+v", unexplained.Divergences)
	}
}

func TestReplayVerifier_WindowSeedsFromPriorRecord(t *testing.T) {
	candles := memory.NewCandleStore()
	signals := memory.NewSignalStore()
	seedHistory(t, candles, signals, breakoutCandles())

	// Verifying only the tail of history must replay against the machine
	// state carried into the window, not re-seed from the window's first
	// candle.
	report, err := newVerifier(t, candles, signals).Verify(context.Background(), 120_000, math.MaxInt64)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if report.TotalRecords != 2 {
		t.Fatalf("Expected 2 buckets in window, got %d", report.TotalRecords)
	}
	if !report.Clean() {
		t.Errorf("Expected clean windowed report, got %+v", report.Results)
	}
}

func TestReplayVerifier_EmptyWindow(t *testing.T) {
	v := newVerifier(t, memory.NewCandleStore(), memory.NewSignalStore())

	_, err := v.VerifyAll(context.Background())
	if !errors.Is(err, ErrNoCandles) {
		t.Errorf("Expected ErrNoCandles, got %v", err)
	}
}

func TestNewReplayVerifier_Validation(t *testing.T) {
	if _, err := NewReplayVerifier(ReplayVerifierOptions{Signals: memory.NewSignalStore()}); err == nil {
		t.Error("Expected error for missing candle store")
	}
	if _, err := NewReplayVerifier(ReplayVerifierOptions{Candles: memory.NewCandleStore()}); err == nil {
		t.Error("Expected error for missing signal store")
	}
}
