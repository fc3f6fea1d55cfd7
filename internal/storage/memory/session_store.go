package memory

import (
	"context"
	"sync"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

// SessionStore is an in-memory implementation of storage.SessionStore.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradingSession // keyed by session_id
}

// NewSessionStore creates a new in-memory trading session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		data: make(map[string]*domain.TradingSession),
	}
}

// Create adds a new session. Returns ErrDuplicateKey if session_id exists.
func (s *SessionStore) Create(_ context.Context, session *domain.TradingSession) error {
	if session == nil || session.SessionID == "" || !session.HeldAsset.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[session.SessionID]; exists {
		return storage.ErrDuplicateKey
	}

	sessionCopy := *session
	s.data[session.SessionID] = &sessionCopy
	return nil
}

// Get retrieves a session by ID. Returns ErrNotFound if not exists.
func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.TradingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.data[sessionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	sessionCopy := *session
	return &sessionCopy, nil
}

// Update persists a session advance, guarded by a compare-and-swap on
// last_consumed_signal_id. Returns ErrConflict when the stored value no
// longer matches expectedLastConsumed.
func (s *SessionStore) Update(_ context.Context, session *domain.TradingSession, expectedLastConsumed int64) error {
	if session == nil || session.SessionID == "" || !session.HeldAsset.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[session.SessionID]
	if !exists {
		return storage.ErrNotFound
	}
	if stored.LastConsumedSignalID != expectedLastConsumed {
		return storage.ErrConflict
	}

	sessionCopy := *session
	s.data[session.SessionID] = &sessionCopy
	return nil
}

var _ storage.SessionStore = (*SessionStore)(nil)
