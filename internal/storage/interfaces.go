package storage

import (
	"context"

	"solana-range-watch/internal/domain"
)

// CandleStore provides access to candles storage.
type CandleStore interface {
	// Insert adds a closed candle. Returns ErrDuplicateKey if bucket_start exists.
	Insert(ctx context.Context, c *domain.Candle) error

	// GetByTimeRange retrieves candles within [start, end] (inclusive), ordered by bucket_start ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Candle, error)

	// GetLatest retrieves the most recent candle. Returns ErrNotFound when empty.
	GetLatest(ctx context.Context) (*domain.Candle, error)
}

// SignalStore provides access to signal_records storage.
type SignalStore interface {
	// Insert adds a signal record. Returns ErrDuplicateKey if timestamp_ms exists.
	Insert(ctx context.Context, r *domain.SignalRecord) error

	// GetByTimeRange retrieves records within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SignalRecord, error)

	// GetAfter retrieves up to limit records with timestamp strictly greater
	// than after, ordered by timestamp ASC. The consumer's poll boundary.
	GetAfter(ctx context.Context, after int64, limit int) ([]*domain.SignalRecord, error)

	// GetPage retrieves one page of records within [start, end] (inclusive),
	// ordered by timestamp ASC, or DESC when desc is true. Pages start at 1.
	GetPage(ctx context.Context, start, end int64, page, limit int, desc bool) ([]*domain.SignalRecord, error)

	// GetLatest retrieves the most recent record. Returns ErrNotFound when empty.
	GetLatest(ctx context.Context) (*domain.SignalRecord, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int, error)
}

// SessionStore provides access to trading_sessions storage.
type SessionStore interface {
	// Create adds a new session. Returns ErrDuplicateKey if session_id exists.
	Create(ctx context.Context, s *domain.TradingSession) error

	// Get retrieves a session by ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, sessionID string) (*domain.TradingSession, error)

	// Update persists a session advance. The write succeeds only when the
	// stored last_consumed_signal_id still equals expectedLastConsumed;
	// otherwise ErrConflict is returned and the caller must re-read.
	Update(ctx context.Context, s *domain.TradingSession, expectedLastConsumed int64) error
}

// ActionStore provides access to action_records storage.
type ActionStore interface {
	// Insert adds an executed action. Returns ErrDuplicateKey if action_id exists.
	Insert(ctx context.Context, a *domain.ActionRecord) error

	// GetBySession retrieves all actions for a session, ordered by executed_at ASC.
	GetBySession(ctx context.Context, sessionID string) ([]*domain.ActionRecord, error)

	// GetByTimeRange retrieves actions executed within [start, end] (inclusive), ordered by executed_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ActionRecord, error)
}
