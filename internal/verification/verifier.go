// Package verification re-derives the signal stream from persisted candles
// and diffs it against the records the watcher wrote. A clean diff means the
// stored stream is exactly what the breakout machine produces from the stored
// candles; a divergence means a record was altered, dropped, or written by a
// differently configured watcher.
package verification

import (
	"math"

	"solana-range-watch/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons between stored and
// re-derived values.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between a stored and a re-derived
// value. Expected carries the stored side, Actual the replayed side.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // re-derived value
}

// RecordResult contains the comparison outcome for one candle bucket.
type RecordResult struct {
	TimestampMs int64             // bucket the record belongs to
	Match       bool              // true if all fields match
	Divergences []FieldDivergence // list of divergent fields
}

// VerificationReport contains results for a verified window.
type VerificationReport struct {
	TotalRecords     int            // buckets compared
	MatchedRecords   int            // buckets that matched
	DivergentRecords int            // buckets with divergences
	Results          []RecordResult // per-bucket results, ascending
}

// Clean reports whether the whole window verified without divergence.
func (r *VerificationReport) Clean() bool {
	return r.DivergentRecords == 0
}

// CompareSignalRecords compares a stored record against a re-derived one and
// returns the divergent fields. Uses FloatTolerance for float64 comparisons;
// statuses and reset kinds must match exactly.
func CompareSignalRecords(stored, derived *domain.SignalRecord) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.TimestampMs != derived.TimestampMs {
		divergences = append(divergences, FieldDivergence{
			Field:    "TimestampMs",
			Expected: stored.TimestampMs,
			Actual:   derived.TimestampMs,
		})
	}

	if stored.Status != derived.Status {
		divergences = append(divergences, FieldDivergence{
			Field:    "Status",
			Expected: stored.Status,
			Actual:   derived.Status,
		})
	}

	if !floatEquals(stored.UpperRange, derived.UpperRange) {
		divergences = append(divergences, FieldDivergence{
			Field:    "UpperRange",
			Expected: stored.UpperRange,
			Actual:   derived.UpperRange,
		})
	}

	if !floatEquals(stored.LowerRange, derived.LowerRange) {
		divergences = append(divergences, FieldDivergence{
			Field:    "LowerRange",
			Expected: stored.LowerRange,
			Actual:   derived.LowerRange,
		})
	}

	if !floatEquals(stored.Open, derived.Open) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Open",
			Expected: stored.Open,
			Actual:   derived.Open,
		})
	}

	if !floatEquals(stored.High, derived.High) {
		divergences = append(divergences, FieldDivergence{
			Field:    "High",
			Expected: stored.High,
			Actual:   derived.High,
		})
	}

	if !floatEquals(stored.Low, derived.Low) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Low",
			Expected: stored.Low,
			Actual:   derived.Low,
		})
	}

	if !floatEquals(stored.Close, derived.Close) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Close",
			Expected: stored.Close,
			Actual:   derived.Close,
		})
	}

	if !floatEquals(stored.CompositionA, derived.CompositionA) {
		divergences = append(divergences, FieldDivergence{
			Field:    "CompositionA",
			Expected: stored.CompositionA,
			Actual:   derived.CompositionA,
		})
	}

	if !floatEquals(stored.CompositionB, derived.CompositionB) {
		divergences = append(divergences, FieldDivergence{
			Field:    "CompositionB",
			Expected: stored.CompositionB,
			Actual:   derived.CompositionB,
		})
	}

	if stored.Reset != derived.Reset {
		divergences = append(divergences, FieldDivergence{
			Field:    "Reset",
			Expected: stored.Reset,
			Actual:   derived.Reset,
		})
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
