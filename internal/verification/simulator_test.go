package verification

import (
	"context"
	"testing"
	"time"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage/memory"
	"solana-range-watch/internal/trader"
)

func simulationConfig() trader.Config {
	return trader.Config{
		PollInterval:    time.Second,
		SizeFraction:    0.5,
		SlippagePct:     0.01,
		MaxActions:      10,
		MinBalanceFloor: 10.0,
	}
}

func storedRecord(ts int64, status domain.SignalStatus, reset domain.ResetKind, close float64) *domain.SignalRecord {
	return &domain.SignalRecord{
		TimestampMs:  ts,
		Status:       status,
		UpperRange:   close * 1.001,
		LowerRange:   close * 0.999,
		Open:         close,
		High:         close,
		Low:          close,
		Close:        close,
		CompositionA: 50.0,
		CompositionB: 50.0,
		Reset:        reset,
	}
}

func TestSimulate_ReplaysConsumerOverHistory(t *testing.T) {
	ctx := context.Background()
	signals := memory.NewSignalStore()

	history := []*domain.SignalRecord{
		storedRecord(60_000, domain.StatusMonitoring, domain.ResetNone, 3100.0),
		storedRecord(120_000, domain.StatusConfirmedUp, domain.ResetUp, 3110.0),
		storedRecord(180_000, domain.StatusMonitoring, domain.ResetNone, 3109.0),
		storedRecord(240_000, domain.StatusConfirmedDown, domain.ResetDown, 3090.0),
	}
	for _, rec := range history {
		if err := signals.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := Simulate(ctx, SimulationOptions{
		Signals: signals,
		Config:  simulationConfig(),
		Balance: 1000.0,
	})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if result.RecordsProcessed != 4 {
		t.Errorf("Expected 4 records processed, got %d", result.RecordsProcessed)
	}
	if len(result.Actions) != 2 {
		t.Fatalf("Expected 2 actions, got %d", len(result.Actions))
	}
	if result.Actions[0].Action != domain.ActionAcquire || result.Actions[1].Action != domain.ActionRelease {
		t.Errorf("Expected ACQUIRE then RELEASE, got %s then %s",
			result.Actions[0].Action, result.Actions[1].Action)
	}
	if !result.Actions[0].DryRun {
		t.Error("Simulated actions must be stamped dry-run")
	}
	if result.Actions[0].Size != 500.0 || result.Actions[0].Price != 3110.0 {
		t.Errorf("Unexpected acquire sizing: size=%v price=%v", result.Actions[0].Size, result.Actions[0].Price)
	}

	session := result.FinalSession
	if session.SessionID != DefaultSimulationSessionID {
		t.Errorf("Expected deterministic session ID, got %q", session.SessionID)
	}
	if session.HeldAsset != domain.AssetSafe || session.ActionsTaken != 2 ||
		session.LastConsumedSignalID != 240_000 {
		t.Errorf("Unexpected final session: %+v", session)
	}

	if result.Noops[trader.NoopNotConfirmed] != 2 {
		t.Errorf("Expected 2 not-confirmed noops, got %d", result.Noops[trader.NoopNotConfirmed])
	}
}

func TestSimulate_BelowFloorTerminates(t *testing.T) {
	// A live runner would re-poll a below-floor record forever on a fixed
	// balance; the simulator must count it and finish.
	ctx := context.Background()
	signals := memory.NewSignalStore()
	if err := signals.Insert(ctx, storedRecord(60_000, domain.StatusConfirmedUp, domain.ResetUp, 3110.0)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	cfg := simulationConfig()
	cfg.MinBalanceFloor = 10_000.0

	result, err := Simulate(ctx, SimulationOptions{
		Signals: signals,
		Config:  cfg,
		Balance: 1000.0,
	})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if len(result.Actions) != 0 {
		t.Errorf("Expected no actions below floor, got %d", len(result.Actions))
	}
	if result.Noops[trader.NoopBelowFloor] != 1 {
		t.Errorf("Expected 1 below-floor noop, got %d", result.Noops[trader.NoopBelowFloor])
	}
	if result.FinalSession.ActionsTaken != 0 {
		t.Errorf("Session must not advance below floor: %+v", result.FinalSession)
	}
}

func TestSimulate_RespectsMaxActions(t *testing.T) {
	ctx := context.Background()
	signals := memory.NewSignalStore()

	// Alternating confirmations, far more than the cap allows.
	statuses := []struct {
		status domain.SignalStatus
		reset  domain.ResetKind
	}{
		{domain.StatusConfirmedUp, domain.ResetUp},
		{domain.StatusConfirmedDown, domain.ResetDown},
	}
	for i := 0; i < 6; i++ {
		s := statuses[i%2]
		rec := storedRecord(int64(60_000*(i+1)), s.status, s.reset, 3100.0)
		if err := signals.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	cfg := simulationConfig()
	cfg.MaxActions = 3

	result, err := Simulate(ctx, SimulationOptions{
		Signals: signals,
		Config:  cfg,
		Balance: 1000.0,
	})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if len(result.Actions) != 3 {
		t.Errorf("Expected the action cap to hold, got %d actions", len(result.Actions))
	}
	if result.Noops[trader.NoopRateLimited] != 3 {
		t.Errorf("Expected 3 rate-limited noops, got %d", result.Noops[trader.NoopRateLimited])
	}
}

func TestSimulate_Validation(t *testing.T) {
	ctx := context.Background()

	if _, err := Simulate(ctx, SimulationOptions{Balance: 100.0, Config: simulationConfig()}); err == nil {
		t.Error("Expected error for missing signal store")
	}
	if _, err := Simulate(ctx, SimulationOptions{Signals: memory.NewSignalStore(), Config: simulationConfig()}); err == nil {
		t.Error("Expected error for non-positive balance")
	}
}

func TestSimulate_EmptyHistory(t *testing.T) {
	result, err := Simulate(context.Background(), SimulationOptions{
		Signals: memory.NewSignalStore(),
		Config:  simulationConfig(),
		Balance: 1000.0,
	})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if result.RecordsProcessed != 0 || len(result.Actions) != 0 {
		t.Errorf("Expected an empty result, got %+v", result)
	}
}
