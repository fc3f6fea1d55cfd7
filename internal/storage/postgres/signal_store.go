package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

const signalColumns = `
	timestamp_ms, status, upper_range, lower_range,
	open, high, low, close,
	composition_a, composition_b, reset_kind
`

// Insert adds a signal record. Returns ErrDuplicateKey if timestamp_ms exists.
func (s *SignalStore) Insert(ctx context.Context, r *domain.SignalRecord) error {
	if r == nil || r.TimestampMs <= 0 || !r.Status.IsValid() || !r.Reset.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO signal_records (` + signalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		r.TimestampMs, string(r.Status), r.UpperRange, r.LowerRange,
		r.Open, r.High, r.Low, r.Close,
		r.CompositionA, r.CompositionB, string(r.Reset),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert signal record: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves records within [start, end] (inclusive), ordered by timestamp ASC.
func (s *SignalStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SignalRecord, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signal_records
		WHERE timestamp_ms >= $1 AND timestamp_ms <= $2
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get signal records by time range: %w", err)
	}
	defer rows.Close()

	return scanSignalRecords(rows)
}

// GetAfter retrieves up to limit records with timestamp strictly greater than
// after, ordered by timestamp ASC.
func (s *SignalStore) GetAfter(ctx context.Context, after int64, limit int) ([]*domain.SignalRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + signalColumns + `
		FROM signal_records
		WHERE timestamp_ms > $1
		ORDER BY timestamp_ms ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("get signal records after %d: %w", after, err)
	}
	defer rows.Close()

	return scanSignalRecords(rows)
}

// GetPage retrieves one page of records within [start, end] (inclusive),
// ordered by timestamp ASC, or DESC when desc is true. Pages start at 1.
func (s *SignalStore) GetPage(ctx context.Context, start, end int64, page, limit int, desc bool) ([]*domain.SignalRecord, error) {
	if page < 1 || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	order := "ASC"
	if desc {
		order = "DESC"
	}
	query := `
		SELECT ` + signalColumns + `
		FROM signal_records
		WHERE timestamp_ms >= $1 AND timestamp_ms <= $2
		ORDER BY timestamp_ms ` + order + `
		LIMIT $3 OFFSET $4
	`

	rows, err := s.pool.Query(ctx, query, start, end, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("get signal records page %d: %w", page, err)
	}
	defer rows.Close()

	return scanSignalRecords(rows)
}

// GetLatest retrieves the most recent record. Returns ErrNotFound when empty.
func (s *SignalStore) GetLatest(ctx context.Context) (*domain.SignalRecord, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signal_records
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query)
	r, err := scanSignalRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest signal record: %w", err)
	}
	return r, nil
}

// Count returns the total number of stored records.
func (s *SignalStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signal_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count signal records: %w", err)
	}
	return n, nil
}

// scanSignalRecord scans a single row into a SignalRecord.
func scanSignalRecord(row pgx.Row) (*domain.SignalRecord, error) {
	var r domain.SignalRecord
	var statusStr, resetStr string

	err := row.Scan(
		&r.TimestampMs, &statusStr, &r.UpperRange, &r.LowerRange,
		&r.Open, &r.High, &r.Low, &r.Close,
		&r.CompositionA, &r.CompositionB, &resetStr,
	)
	if err != nil {
		return nil, err
	}

	r.Status = domain.SignalStatus(statusStr)
	r.Reset = domain.ResetKind(resetStr)
	return &r, nil
}

// scanSignalRecords scans multiple rows into a slice of SignalRecord.
func scanSignalRecords(rows pgx.Rows) ([]*domain.SignalRecord, error) {
	var records []*domain.SignalRecord

	for rows.Next() {
		var r domain.SignalRecord
		var statusStr, resetStr string

		err := rows.Scan(
			&r.TimestampMs, &statusStr, &r.UpperRange, &r.LowerRange,
			&r.Open, &r.High, &r.Low, &r.Close,
			&r.CompositionA, &r.CompositionB, &resetStr,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal record row: %w", err)
		}

		r.Status = domain.SignalStatus(statusStr)
		r.Reset = domain.ResetKind(resetStr)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal record rows: %w", err)
	}

	return records, nil
}
