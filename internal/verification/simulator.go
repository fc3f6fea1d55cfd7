package verification

import (
	"context"
	"fmt"
	"log"
	"time"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/storage"
	"solana-range-watch/internal/storage/memory"
	"solana-range-watch/internal/trader"
)

// DefaultSimulationSessionID keeps simulated action IDs stable across runs,
// so two simulations over the same history produce diffable output.
const DefaultSimulationSessionID = "simulation"

const simulationBatchSize = 500

// SimulationOptions configures a consumer dry run over persisted records.
type SimulationOptions struct {
	Signals   storage.SignalStore
	Config    trader.Config
	Balance   float64 // fixed balance the sizer sees
	SessionID string  // defaults to DefaultSimulationSessionID
	Logger    *log.Logger
}

// SimulationResult is the outcome of replaying the consumer over history.
type SimulationResult struct {
	RecordsProcessed int
	Actions          []*domain.ActionRecord
	Noops            map[trader.NoopReason]int
	FinalSession     domain.TradingSession
}

// Simulate replays the consumer's decision rules over the persisted signal
// stream with a dry-run settler and throwaway in-memory session state. The
// stores backing the real trader are never written.
//
// A live runner re-polls a below-floor record until funds arrive; with a
// fixed balance that would never resolve, so the simulator counts the skip
// and moves on.
func Simulate(ctx context.Context, opts SimulationOptions) (*SimulationResult, error) {
	if opts.Signals == nil {
		return nil, fmt.Errorf("simulation requires a signal store")
	}
	if opts.Balance <= 0 {
		return nil, fmt.Errorf("simulation balance must be positive, got %f", opts.Balance)
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = DefaultSimulationSessionID
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	cfg := opts.Config
	cfg.DryRun = true
	if cfg.PollInterval == 0 {
		// The simulator never polls; satisfy config validation anyway.
		cfg.PollInterval = time.Second
	}

	sessions := memory.NewSessionStore()
	actions := memory.NewActionStore()

	session, err := trader.LoadOrCreateSession(ctx, sessions, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create simulation session: %w", err)
	}

	consumer, err := trader.NewConsumer(trader.Options{
		Session:  session,
		Sessions: sessions,
		Actions:  actions,
		Settler:  &trader.DryRunSettler{Logger: logger},
		Balances: trader.StaticBalance(opts.Balance),
		Config:   cfg,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	result := &SimulationResult{
		Noops: make(map[trader.NoopReason]int),
	}

	var watermark int64
	for {
		batch, err := opts.Signals.GetAfter(ctx, watermark, simulationBatchSize)
		if err != nil {
			return nil, fmt.Errorf("load signal records after %d: %w", watermark, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, rec := range batch {
			dec, err := consumer.OnSignal(ctx, rec)
			if err != nil {
				return nil, fmt.Errorf("consume record %d: %w", rec.TimestampMs, err)
			}
			result.RecordsProcessed++
			if dec.Noop != "" {
				result.Noops[dec.Noop]++
			}
			watermark = rec.TimestampMs
		}
	}

	executed, err := actions.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load simulated actions: %w", err)
	}
	result.Actions = executed
	result.FinalSession = consumer.Session()
	return result, nil
}
