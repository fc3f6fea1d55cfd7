package memory

import (
	"context"
	"sort"
	"sync"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.Candle // keyed by bucket_start
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[int64]*domain.Candle),
	}
}

// Insert adds a closed candle. Returns ErrDuplicateKey if bucket_start exists.
func (s *CandleStore) Insert(_ context.Context, c *domain.Candle) error {
	if c == nil || c.BucketStart <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.BucketStart]; exists {
		return storage.ErrDuplicateKey
	}

	candleCopy := *c
	s.data[c.BucketStart] = &candleCopy
	return nil
}

// GetByTimeRange retrieves candles within [start, end] (inclusive), ordered by bucket_start ASC.
func (s *CandleStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.BucketStart >= start && c.BucketStart <= end {
			candleCopy := *c
			result = append(result, &candleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart < result[j].BucketStart
	})

	return result, nil
}

// GetLatest retrieves the most recent candle. Returns ErrNotFound when empty.
func (s *CandleStore) GetLatest(_ context.Context) (*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.data) == 0 {
		return nil, storage.ErrNotFound
	}

	var latest *domain.Candle
	for _, c := range s.data {
		if latest == nil || c.BucketStart > latest.BucketStart {
			latest = c
		}
	}

	latestCopy := *latest
	return &latestCopy, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
