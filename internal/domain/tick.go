package domain

// Tick is one price/composition sample from the pool feed.
// Ephemeral: owned by the candle aggregator, never persisted.
type Tick struct {
	TimestampMs  int64   // Unix timestamp in milliseconds
	Price        float64 // quote/base reserve ratio at sample time
	CompositionA float64 // base reserve share of the pool, percent
	CompositionB float64 // quote reserve share of the pool, percent
}
