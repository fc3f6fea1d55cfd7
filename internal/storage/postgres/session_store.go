package postgres

import (
	"context"
	"fmt"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

// SessionStore implements storage.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *Pool
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool *Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// Create adds a new session. Returns ErrDuplicateKey if session_id exists.
func (s *SessionStore) Create(ctx context.Context, session *domain.TradingSession) error {
	if session == nil || session.SessionID == "" || !session.HeldAsset.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trading_sessions (
			session_id, held_asset, last_consumed_signal_id,
			actions_taken, session_start_ms, updated_at_ms
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		session.SessionID, string(session.HeldAsset), session.LastConsumedSignalID,
		session.ActionsTaken, session.SessionStartMs, session.UpdatedAtMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trading session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Returns ErrNotFound if not exists.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.TradingSession, error) {
	query := `
		SELECT session_id, held_asset, last_consumed_signal_id,
		       actions_taken, session_start_ms, updated_at_ms
		FROM trading_sessions
		WHERE session_id = $1
	`

	var session domain.TradingSession
	var assetStr string

	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&session.SessionID, &assetStr, &session.LastConsumedSignalID,
		&session.ActionsTaken, &session.SessionStartMs, &session.UpdatedAtMs,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trading session: %w", err)
	}

	session.HeldAsset = domain.Asset(assetStr)
	return &session, nil
}

// Update persists a session advance, guarded by a compare-and-swap on
// last_consumed_signal_id. Returns ErrConflict when the stored value no
// longer matches expectedLastConsumed.
func (s *SessionStore) Update(ctx context.Context, session *domain.TradingSession, expectedLastConsumed int64) error {
	if session == nil || session.SessionID == "" || !session.HeldAsset.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE trading_sessions
		SET held_asset = $2, last_consumed_signal_id = $3,
		    actions_taken = $4, updated_at_ms = $5
		WHERE session_id = $1 AND last_consumed_signal_id = $6
	`

	tag, err := s.pool.Exec(ctx, query,
		session.SessionID, string(session.HeldAsset), session.LastConsumedSignalID,
		session.ActionsTaken, session.UpdatedAtMs, expectedLastConsumed,
	)
	if err != nil {
		return fmt.Errorf("update trading session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing session from a lost CAS race
		if _, err := s.Get(ctx, session.SessionID); err != nil {
			return err
		}
		return storage.ErrConflict
	}

	return nil
}
