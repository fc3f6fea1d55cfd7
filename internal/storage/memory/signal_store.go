package memory

import (
	"context"
	"sort"
	"sync"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.SignalRecord // keyed by timestamp_ms
}

// NewSignalStore creates a new in-memory signal record store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		data: make(map[int64]*domain.SignalRecord),
	}
}

// Insert adds a signal record. Returns ErrDuplicateKey if timestamp_ms exists.
func (s *SignalStore) Insert(_ context.Context, r *domain.SignalRecord) error {
	if r == nil || r.TimestampMs <= 0 || !r.Status.IsValid() || !r.Reset.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.TimestampMs]; exists {
		return storage.ErrDuplicateKey
	}

	recordCopy := *r
	s.data[r.TimestampMs] = &recordCopy
	return nil
}

// GetByTimeRange retrieves records within [start, end] (inclusive), ordered by timestamp ASC.
func (s *SignalStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalRecord
	for _, r := range s.data {
		if r.TimestampMs >= start && r.TimestampMs <= end {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetAfter retrieves up to limit records with timestamp strictly greater than
// after, ordered by timestamp ASC.
func (s *SignalStore) GetAfter(_ context.Context, after int64, limit int) ([]*domain.SignalRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalRecord
	for _, r := range s.data {
		if r.TimestampMs > after {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// GetPage retrieves one page of records within [start, end] (inclusive),
// ordered by timestamp ASC, or DESC when desc is true. Pages start at 1.
func (s *SignalStore) GetPage(_ context.Context, start, end int64, page, limit int, desc bool) ([]*domain.SignalRecord, error) {
	if page < 1 || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalRecord
	for _, r := range s.data {
		if r.TimestampMs >= start && r.TimestampMs <= end {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if desc {
			return result[i].TimestampMs > result[j].TimestampMs
		}
		return result[i].TimestampMs < result[j].TimestampMs
	})

	offset := (page - 1) * limit
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// GetLatest retrieves the most recent record. Returns ErrNotFound when empty.
func (s *SignalStore) GetLatest(_ context.Context) (*domain.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.data) == 0 {
		return nil, storage.ErrNotFound
	}

	var latest *domain.SignalRecord
	for _, r := range s.data {
		if latest == nil || r.TimestampMs > latest.TimestampMs {
			latest = r
		}
	}

	latestCopy := *latest
	return &latestCopy, nil
}

// Count returns the total number of stored records.
func (s *SignalStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data), nil
}

var _ storage.SignalStore = (*SignalStore)(nil)
