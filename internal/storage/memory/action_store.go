package memory

import (
	"context"
	"sort"
	"sync"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

// ActionStore is an in-memory implementation of storage.ActionStore.
type ActionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ActionRecord // keyed by action_id
}

// NewActionStore creates a new in-memory action record store.
func NewActionStore() *ActionStore {
	return &ActionStore{
		data: make(map[string]*domain.ActionRecord),
	}
}

// Insert adds an executed action. Returns ErrDuplicateKey if action_id exists.
func (s *ActionStore) Insert(_ context.Context, a *domain.ActionRecord) error {
	if a == nil || a.ActionID == "" || a.SessionID == "" || !a.Action.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ActionID]; exists {
		return storage.ErrDuplicateKey
	}

	actionCopy := *a
	s.data[a.ActionID] = &actionCopy
	return nil
}

// GetBySession retrieves all actions for a session, ordered by executed_at ASC.
func (s *ActionStore) GetBySession(_ context.Context, sessionID string) ([]*domain.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ActionRecord
	for _, a := range s.data {
		if a.SessionID == sessionID {
			actionCopy := *a
			result = append(result, &actionCopy)
		}
	}

	sortActions(result)
	return result, nil
}

// GetByTimeRange retrieves actions executed within [start, end] (inclusive), ordered by executed_at ASC.
func (s *ActionStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ActionRecord
	for _, a := range s.data {
		if a.ExecutedAtMs >= start && a.ExecutedAtMs <= end {
			actionCopy := *a
			result = append(result, &actionCopy)
		}
	}

	sortActions(result)
	return result, nil
}

// sortActions orders actions by executed_at, breaking ties on signal time.
func sortActions(actions []*domain.ActionRecord) {
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].ExecutedAtMs != actions[j].ExecutedAtMs {
			return actions[i].ExecutedAtMs < actions[j].ExecutedAtMs
		}
		return actions[i].SignalTimeMs < actions[j].SignalTimeMs
	})
}

var _ storage.ActionStore = (*ActionStore)(nil)
