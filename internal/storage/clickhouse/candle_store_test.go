package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

func testCandle(bucket int64) *domain.Candle {
	return &domain.Candle{
		BucketStart:  bucket,
		Open:         3100,
		High:         3106.4,
		Low:          3098.1,
		Close:        3105.2,
		CompositionA: 49.7,
		CompositionB: 50.3,
	}
}

func TestCandleStore_InsertAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(conn)

	candle := testCandle(60000)
	require.NoError(t, store.Insert(ctx, candle))

	candles, err := store.GetByTimeRange(ctx, 0, 120000)
	require.NoError(t, err)

	require.Len(t, candles, 1)
	assert.Equal(t, candle.BucketStart, candles[0].BucketStart)
	assert.InDelta(t, candle.Open, candles[0].Open, 0.0001)
	assert.InDelta(t, candle.High, candles[0].High, 0.0001)
	assert.InDelta(t, candle.Low, candles[0].Low, 0.0001)
	assert.InDelta(t, candle.Close, candles[0].Close, 0.0001)
	assert.InDelta(t, candle.CompositionA, candles[0].CompositionA, 0.0001)
	assert.InDelta(t, candle.CompositionB, candles[0].CompositionB, 0.0001)
}

func TestCandleStore_InsertDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(conn)

	require.NoError(t, store.Insert(ctx, testCandle(60000)))

	err := store.Insert(ctx, testCandle(60000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestCandleStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(conn)

	for _, bucket := range []int64{60000, 120000, 180000, 240000} {
		require.NoError(t, store.Insert(ctx, testCandle(bucket)))
	}

	candles, err := store.GetByTimeRange(ctx, 120000, 180000)
	require.NoError(t, err)

	require.Len(t, candles, 2)
	assert.Equal(t, int64(120000), candles[0].BucketStart)
	assert.Equal(t, int64(180000), candles[1].BucketStart)
}

func TestCandleStore_GetLatest(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(conn)

	_, err := store.GetLatest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for _, bucket := range []int64{120000, 60000, 180000} {
		require.NoError(t, store.Insert(ctx, testCandle(bucket)))
	}

	latest, err := store.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(180000), latest.BucketStart)
}
