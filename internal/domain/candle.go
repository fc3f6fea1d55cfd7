package domain

// Candle is a fixed-interval OHLC aggregation of ticks with the pool
// composition snapshotted at the last tick of the bucket.
// Corresponds to the candles table in ClickHouse.
type Candle struct {
	BucketStart  int64   // PRIMARY KEY, bucket start timestamp (ms)
	Open         float64 // first tick price in the bucket
	High         float64 // highest tick price in the bucket
	Low          float64 // lowest tick price in the bucket
	Close        float64 // last tick price in the bucket
	CompositionA float64 // base reserve share at bucket close, percent
	CompositionB float64 // quote reserve share at bucket close, percent
}
