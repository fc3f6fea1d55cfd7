package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

// ActionStore implements storage.ActionStore using PostgreSQL.
type ActionStore struct {
	pool *Pool
}

// NewActionStore creates a new ActionStore.
func NewActionStore(pool *Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ActionStore = (*ActionStore)(nil)

const actionColumns = `
	action_id, session_id, signal_time_ms, action,
	size, price, dry_run, executed_at_ms
`

// Insert adds an executed action. Returns ErrDuplicateKey if action_id exists.
func (s *ActionStore) Insert(ctx context.Context, a *domain.ActionRecord) error {
	if a == nil || a.ActionID == "" || a.SessionID == "" || !a.Action.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO action_records (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		a.ActionID, a.SessionID, a.SignalTimeMs, string(a.Action),
		a.Size, a.Price, a.DryRun, a.ExecutedAtMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert action record: %w", err)
	}
	return nil
}

// GetBySession retrieves all actions for a session, ordered by executed_at ASC.
func (s *ActionStore) GetBySession(ctx context.Context, sessionID string) ([]*domain.ActionRecord, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM action_records
		WHERE session_id = $1
		ORDER BY executed_at_ms ASC, signal_time_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get action records by session: %w", err)
	}
	defer rows.Close()

	return scanActionRecords(rows)
}

// GetByTimeRange retrieves actions executed within [start, end] (inclusive), ordered by executed_at ASC.
func (s *ActionStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ActionRecord, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM action_records
		WHERE executed_at_ms >= $1 AND executed_at_ms <= $2
		ORDER BY executed_at_ms ASC, signal_time_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get action records by time range: %w", err)
	}
	defer rows.Close()

	return scanActionRecords(rows)
}

// scanActionRecords scans multiple rows into a slice of ActionRecord.
func scanActionRecords(rows pgx.Rows) ([]*domain.ActionRecord, error) {
	var actions []*domain.ActionRecord

	for rows.Next() {
		var a domain.ActionRecord
		var actionStr string

		err := rows.Scan(
			&a.ActionID, &a.SessionID, &a.SignalTimeMs, &actionStr,
			&a.Size, &a.Price, &a.DryRun, &a.ExecutedAtMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan action record row: %w", err)
		}

		a.Action = domain.ActionType(actionStr)
		actions = append(actions, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action record rows: %w", err)
	}

	return actions, nil
}
