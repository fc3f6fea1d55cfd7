package verification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"solana-range-watch/internal/breakout"
	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

// ErrNoCandles is returned when the verified window holds no candles to
// replay.
var ErrNoCandles = errors.New("no candles in window")

// ReplayVerifier re-runs the breakout machine over persisted candles and
// compares the derived records with the persisted ones bucket by bucket.
type ReplayVerifier struct {
	candles storage.CandleStore
	signals storage.SignalStore
	bandPct float64
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
// BandPct must match the watcher's band, else every range diverges.
type ReplayVerifierOptions struct {
	Candles storage.CandleStore
	Signals storage.SignalStore
	BandPct float64 // defaults to breakout.DefaultBandPct
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) (*ReplayVerifier, error) {
	if opts.Candles == nil {
		return nil, fmt.Errorf("verifier requires a candle store")
	}
	if opts.Signals == nil {
		return nil, fmt.Errorf("verifier requires a signal store")
	}
	bandPct := opts.BandPct
	if bandPct == 0 {
		bandPct = breakout.DefaultBandPct
	}
	return &ReplayVerifier{
		candles: opts.Candles,
		signals: opts.Signals,
		bandPct: bandPct,
	}, nil
}

// VerifyAll verifies the whole persisted history.
func (v *ReplayVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	return v.Verify(ctx, 0, math.MaxInt64)
}

// Verify replays the candles in [startMs, endMs] and diffs the derived
// records against the stored ones.
//
// The machine is seeded from the last stored record before the window, so a
// bounded window is verified against the state the watcher actually carried
// into it. Without a prior record the machine starts fresh and seeds its
// Range from the first candle, same as a first boot.
func (v *ReplayVerifier) Verify(ctx context.Context, startMs, endMs int64) (*VerificationReport, error) {
	candles, err := v.candles.GetByTimeRange(ctx, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}

	stored, err := v.signals.GetByTimeRange(ctx, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("load signal records: %w", err)
	}

	machine, err := v.machineAt(ctx, startMs)
	if err != nil {
		return nil, err
	}

	// Derive the record stream the stored candles imply.
	derived := make(map[int64]*domain.SignalRecord, len(candles))
	derivedErrs := make(map[int64]error)
	for _, c := range candles {
		rec, err := machine.Evaluate(*c)
		if err != nil {
			derivedErrs[c.BucketStart] = err
			continue
		}
		derived[rec.TimestampMs] = rec
	}

	storedByTS := make(map[int64]*domain.SignalRecord, len(stored))
	for _, rec := range stored {
		storedByTS[rec.TimestampMs] = rec
	}

	// Compare over the union of buckets, ascending, so both missing and
	// unexplained stored records surface.
	buckets := unionTimestamps(derived, derivedErrs, storedByTS)

	report := &VerificationReport{
		TotalRecords: len(buckets),
		Results:      make([]RecordResult, 0, len(buckets)),
	}

	for _, ts := range buckets {
		result := RecordResult{TimestampMs: ts}

		storedRec := storedByTS[ts]
		derivedRec := derived[ts]

		switch {
		case derivedErrs[ts] != nil:
			result.Divergences = []FieldDivergence{
				{Field: "Error", Expected: nil, Actual: derivedErrs[ts].Error()},
			}
		case storedRec == nil:
			result.Divergences = []FieldDivergence{
				{Field: "Record", Expected: nil, Actual: derivedRec.Status},
			}
		case derivedRec == nil:
			result.Divergences = []FieldDivergence{
				{Field: "Record", Expected: storedRec.Status, Actual: nil},
			}
		default:
			result.Divergences = CompareSignalRecords(storedRec, derivedRec)
		}

		result.Match = len(result.Divergences) == 0
		if result.Match {
			report.MatchedRecords++
		} else {
			report.DivergentRecords++
		}
		report.Results = append(report.Results, result)
	}

	return report, nil
}

// machineAt builds the machine state in effect just before startMs.
func (v *ReplayVerifier) machineAt(ctx context.Context, startMs int64) (*breakout.Machine, error) {
	machine, err := breakout.NewMachine(v.bandPct)
	if err != nil {
		return nil, err
	}
	if startMs <= 0 {
		return machine, nil
	}

	prior, err := v.signals.GetByTimeRange(ctx, 0, startMs-1)
	if err != nil {
		return nil, fmt.Errorf("load prior records: %w", err)
	}
	if len(prior) == 0 {
		return machine, nil
	}

	snap, err := breakout.SnapshotFromRecord(prior[len(prior)-1])
	if err != nil {
		return nil, fmt.Errorf("derive machine state before window: %w", err)
	}
	if err := machine.Restore(snap); err != nil {
		return nil, fmt.Errorf("restore machine state before window: %w", err)
	}
	return machine, nil
}

func unionTimestamps(derived map[int64]*domain.SignalRecord, derivedErrs map[int64]error, stored map[int64]*domain.SignalRecord) []int64 {
	seen := make(map[int64]bool, len(derived)+len(stored))
	var out []int64
	add := func(ts int64) {
		if !seen[ts] {
			seen[ts] = true
			out = append(out, ts)
		}
	}
	for ts := range derived {
		add(ts)
	}
	for ts := range derivedErrs {
		add(ts)
	}
	for ts := range stored {
		add(ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
