package memory

import (
	"context"
	"errors"
	"testing"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
)

func testAction(id, sessionID string, executedAt int64) *domain.ActionRecord {
	return &domain.ActionRecord{
		ActionID:     id,
		SessionID:    sessionID,
		SignalTimeMs: executedAt - 500,
		Action:       domain.ActionAcquire,
		Size:         10,
		Price:        3110,
		DryRun:       true,
		ExecutedAtMs: executedAt,
	}
}

func TestActionStore_InsertAndGetBySession(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	actions := []*domain.ActionRecord{
		testAction("a1", "s1", 2000),
		testAction("a2", "s1", 1000),
		testAction("a3", "s2", 1500),
	}

	for _, a := range actions {
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetBySession failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("Expected 2 actions for s1, got %d", len(result))
	}
	if result[0].ActionID != "a2" || result[1].ActionID != "a1" {
		t.Errorf("Actions not ordered by executed_at: got %s,%s", result[0].ActionID, result[1].ActionID)
	}
}

func TestActionStore_DuplicateActionID(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testAction("a1", "s1", 1000)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, testAction("a1", "s1", 2000))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestActionStore_GetByTimeRange(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	for i, executedAt := range []int64{1000, 2000, 3000} {
		a := testAction(string(rune('a'+i))+"-id", "s1", executedAt)
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetByTimeRange(ctx, 1500, 2500)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}

	if len(result) != 1 {
		t.Fatalf("Expected 1 action in range, got %d", len(result))
	}
	if result[0].ExecutedAtMs != 2000 {
		t.Errorf("Expected action at 2000, got %d", result[0].ExecutedAtMs)
	}
}
