package clickhouse

import (
	"context"
	"fmt"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// Insert adds a closed candle. Returns ErrDuplicateKey if bucket_start exists.
// MergeTree does not enforce uniqueness at insert time, so the key is checked
// explicitly first; the watcher is the only writer.
func (s *CandleStore) Insert(ctx context.Context, c *domain.Candle) error {
	if c == nil || c.BucketStart <= 0 {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, c.BucketStart)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			bucket_start, open, high, low, close, composition_a, composition_b
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		uint64(c.BucketStart), c.Open, c.High, c.Low, c.Close,
		c.CompositionA, c.CompositionB,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves candles within [start, end] (inclusive), ordered by bucket_start ASC.
func (s *CandleStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Candle, error) {
	query := `
		SELECT bucket_start, open, high, low, close, composition_a, composition_b
		FROM candles
		WHERE bucket_start >= ? AND bucket_start <= ?
		ORDER BY bucket_start ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query candles by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetLatest retrieves the most recent candle. Returns ErrNotFound when empty.
func (s *CandleStore) GetLatest(ctx context.Context) (*domain.Candle, error) {
	query := `
		SELECT bucket_start, open, high, low, close, composition_a, composition_b
		FROM candles
		ORDER BY bucket_start DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest candle: %w", err)
	}
	defer rows.Close()

	candles, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, storage.ErrNotFound
	}
	return candles[0], nil
}

// exists checks if a candle with the given bucket start exists.
func (s *CandleStore) exists(ctx context.Context, bucketStart int64) (bool, error) {
	query := `SELECT count(*) FROM candles WHERE bucket_start = ?`

	var count uint64
	err := s.conn.QueryRow(ctx, query, uint64(bucketStart)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanCandles scans multiple rows into a slice of Candle.
func scanCandles(rows chRows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		var bucketStart uint64

		err := rows.Scan(
			&bucketStart, &c.Open, &c.High, &c.Low, &c.Close,
			&c.CompositionA, &c.CompositionB,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		c.BucketStart = int64(bucketStart)
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
