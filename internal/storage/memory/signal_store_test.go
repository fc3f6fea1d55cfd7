package memory

import (
	"context"
	"errors"
	"testing"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

func monitoringRecord(ts int64, upper, lower float64) *domain.SignalRecord {
	return &domain.SignalRecord{
		TimestampMs: ts,
		Status:      domain.StatusMonitoring,
		UpperRange:  upper,
		LowerRange:  lower,
		Open:        3100, High: 3101, Low: 3099, Close: 3100,
		CompositionA: 50, CompositionB: 50,
		Reset: domain.ResetNone,
	}
}

func TestSignalStore_InsertAndGet(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	records := []*domain.SignalRecord{
		monitoringRecord(60000, 3103.1, 3096.9),
		monitoringRecord(120000, 3103.1, 3096.9),
	}

	for _, r := range records {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetByTimeRange(ctx, 0, 200000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}

	if len(result) != 2 {
		t.Errorf("Expected 2 records, got %d", len(result))
	}
}

func TestSignalStore_DuplicateTimestamp(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	record := monitoringRecord(60000, 3103.1, 3096.9)
	if err := store.Insert(ctx, record); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, record)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestSignalStore_InvalidStatus(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	record := monitoringRecord(60000, 3103.1, 3096.9)
	record.Status = "BOGUS"

	if err := store.Insert(ctx, record); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for bogus status, got %v", err)
	}
}

func TestSignalStore_GetAfter(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	for _, ts := range []int64{60000, 120000, 180000, 240000} {
		if err := store.Insert(ctx, monitoringRecord(ts, 3103.1, 3096.9)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	// Strictly-after boundary: a record at the watermark is excluded
	result, err := store.GetAfter(ctx, 120000, 10)
	if err != nil {
		t.Fatalf("GetAfter failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 records after 120000, got %d", len(result))
	}
	if result[0].TimestampMs != 180000 {
		t.Errorf("Expected first record at 180000, got %d", result[0].TimestampMs)
	}

	// Limit applies after ordering
	result, err = store.GetAfter(ctx, 0, 3)
	if err != nil {
		t.Fatalf("GetAfter failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 records with limit 3, got %d", len(result))
	}
	if result[2].TimestampMs != 180000 {
		t.Errorf("Expected third record at 180000, got %d", result[2].TimestampMs)
	}
}

func TestSignalStore_GetAfterInvalidLimit(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	if _, err := store.GetAfter(ctx, 0, 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for limit 0, got %v", err)
	}
}

func TestSignalStore_GetPage(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	for _, ts := range []int64{60000, 120000, 180000, 240000, 300000} {
		if err := store.Insert(ctx, monitoringRecord(ts, 3103.1, 3096.9)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	// Ascending: page 2 of size 2 holds the third and fourth records
	result, err := store.GetPage(ctx, 0, 400000, 2, 2, false)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 records on page 2, got %d", len(result))
	}
	if result[0].TimestampMs != 180000 || result[1].TimestampMs != 240000 {
		t.Errorf("Expected [180000, 240000], got [%d, %d]", result[0].TimestampMs, result[1].TimestampMs)
	}

	// Descending: page 1 starts at the newest record
	result, err = store.GetPage(ctx, 0, 400000, 1, 2, true)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 records on page 1, got %d", len(result))
	}
	if result[0].TimestampMs != 300000 || result[1].TimestampMs != 240000 {
		t.Errorf("Expected [300000, 240000], got [%d, %d]", result[0].TimestampMs, result[1].TimestampMs)
	}

	// Page past the end is empty, not an error
	result, err = store.GetPage(ctx, 0, 400000, 4, 2, false)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("Expected empty page past the end, got %d records", len(result))
	}

	// Window bounds apply before paging
	result, err = store.GetPage(ctx, 120000, 240000, 1, 10, false)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if len(result) != 3 {
		t.Errorf("Expected 3 records in window, got %d", len(result))
	}

	if _, err := store.GetPage(ctx, 0, 400000, 0, 2, false); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for page 0, got %v", err)
	}
	if _, err := store.GetPage(ctx, 0, 400000, 1, 0, false); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for limit 0, got %v", err)
	}
}

func TestSignalStore_GetLatest(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	if _, err := store.GetLatest(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty store, got %v", err)
	}

	for _, ts := range []int64{120000, 60000, 180000} {
		if err := store.Insert(ctx, monitoringRecord(ts, 3103.1, 3096.9)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	latest, err := store.GetLatest(ctx)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.TimestampMs != 180000 {
		t.Errorf("Expected latest at 180000, got %d", latest.TimestampMs)
	}
}

func TestSignalStore_Count(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	for _, ts := range []int64{60000, 120000} {
		if err := store.Insert(ctx, monitoringRecord(ts, 3103.1, 3096.9)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected count 2, got %d", n)
	}
}
