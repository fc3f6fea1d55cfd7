package candle

import (
	"errors"
	"fmt"
	"math"

	"solana-range-watch/internal/domain"
)

// DefaultIntervalMs is the candle bucket length used when none is configured.
const DefaultIntervalMs = 60_000

// ErrOutOfOrder marks a tick whose bucket precedes the currently open one.
// Callers distinguish it from malformed-tick errors with errors.Is.
var ErrOutOfOrder = errors.New("out-of-order tick")

// Aggregator buckets ticks into fixed-length intervals, producing OHLC candles
// with a composition snapshot taken at bucket close. At most one candle is
// open (mutable) at a time; once its bucket elapses it is finalized and
// returned to the caller, which owns persistence.
//
// The aggregator is not safe for concurrent use. It is driven by the single
// watch runner goroutine.
type Aggregator struct {
	intervalMs int64
	open       *domain.Candle
}

// NewAggregator creates an aggregator with the given bucket length in
// milliseconds.
func NewAggregator(intervalMs int64) (*Aggregator, error) {
	if intervalMs <= 0 {
		return nil, fmt.Errorf("candle interval must be positive, got %d", intervalMs)
	}
	return &Aggregator{intervalMs: intervalMs}, nil
}

// Ingest folds one tick into the current bucket.
//
// When the tick opens a new bucket, the previously open candle (if any) is
// finalized and returned; the new bucket starts with
// open=high=low=close=tick.Price. When the tick belongs to the open bucket,
// high/low/close and the composition snapshot are updated in place and the
// returned candle is nil.
//
// Malformed ticks (non-finite or non-positive price, invalid composition,
// non-positive timestamp) and ticks whose bucket precedes the open one are
// rejected with an error and no state mutation.
func (a *Aggregator) Ingest(tick domain.Tick) (*domain.Candle, error) {
	if err := validateTick(tick); err != nil {
		return nil, err
	}

	bucketStart := (tick.TimestampMs / a.intervalMs) * a.intervalMs

	if a.open == nil {
		a.open = openCandle(bucketStart, tick)
		return nil, nil
	}

	switch {
	case bucketStart == a.open.BucketStart:
		a.open.Close = tick.Price
		if tick.Price > a.open.High {
			a.open.High = tick.Price
		}
		if tick.Price < a.open.Low {
			a.open.Low = tick.Price
		}
		a.open.CompositionA = tick.CompositionA
		a.open.CompositionB = tick.CompositionB
		return nil, nil

	case bucketStart < a.open.BucketStart:
		return nil, fmt.Errorf("%w: bucket %d precedes open bucket %d",
			ErrOutOfOrder, bucketStart, a.open.BucketStart)

	default:
		closed := a.open
		a.open = openCandle(bucketStart, tick)
		return closed, nil
	}
}

// Flush returns the open candle and clears it. Used on shutdown drain; the
// caller decides what to do with the partial candle. Returns nil when no
// candle is open.
func (a *Aggregator) Flush() *domain.Candle {
	closed := a.open
	a.open = nil
	return closed
}

// IntervalMs reports the configured bucket length.
func (a *Aggregator) IntervalMs() int64 {
	return a.intervalMs
}

func openCandle(bucketStart int64, tick domain.Tick) *domain.Candle {
	return &domain.Candle{
		BucketStart:  bucketStart,
		Open:         tick.Price,
		High:         tick.Price,
		Low:          tick.Price,
		Close:        tick.Price,
		CompositionA: tick.CompositionA,
		CompositionB: tick.CompositionB,
	}
}

func validateTick(tick domain.Tick) error {
	if tick.TimestampMs <= 0 {
		return fmt.Errorf("tick timestamp must be positive, got %d", tick.TimestampMs)
	}
	if math.IsNaN(tick.Price) || math.IsInf(tick.Price, 0) {
		return fmt.Errorf("tick price is not finite")
	}
	if tick.Price <= 0 {
		return fmt.Errorf("tick price must be positive, got %f", tick.Price)
	}
	if !finiteNonNegative(tick.CompositionA) || !finiteNonNegative(tick.CompositionB) {
		return fmt.Errorf("tick composition is invalid: a=%f b=%f", tick.CompositionA, tick.CompositionB)
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
