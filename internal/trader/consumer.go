// Package trader turns confirmed breakout records into trading actions. The
// decision rules, sizing, and session advance live here; the actual
// settlement call is delegated to a Settler.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/idhash"
	"solana-range-watch/internal/observability"
	"solana-range-watch/internal/storage"
)

// Config holds the consumer's decision parameters.
type Config struct {
	PollInterval    time.Duration // signal store poll cadence
	SizeFraction    float64       // fraction of balance per action, (0, 1]
	SlippagePct     float64       // settlement slippage tolerance
	MaxActions      int           // hard cap on executed actions per session
	MinBalanceFloor float64       // sizes below this are gas-dominated, skip
	DryRun          bool          // stamps audit records; mains wire a DryRunSettler
}

// Validate reports the first configuration error. Configuration errors are
// fatal at startup, before polling begins.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.SizeFraction <= 0 || c.SizeFraction > 1 {
		return fmt.Errorf("size fraction must be in (0, 1], got %f", c.SizeFraction)
	}
	if c.SlippagePct < 0 {
		return fmt.Errorf("slippage pct must be non-negative, got %f", c.SlippagePct)
	}
	if c.MaxActions < 1 {
		return fmt.Errorf("max actions must be at least 1, got %d", c.MaxActions)
	}
	if c.MinBalanceFloor < 0 {
		return fmt.Errorf("min balance floor must be non-negative, got %f", c.MinBalanceFloor)
	}
	return nil
}

// NoopReason classifies why an observed record produced no action.
type NoopReason string

const (
	NoopReplay            NoopReason = "REPLAY_GUARD"
	NoopNotConfirmed      NoopReason = "NOT_CONFIRMED"
	NoopRateLimited       NoopReason = "RATE_LIMITED"
	NoopAlreadyPositioned NoopReason = "ALREADY_POSITIONED"
	NoopBelowFloor        NoopReason = "BELOW_FLOOR"
)

// Decision is the consumer's verdict for one observed signal record.
type Decision struct {
	// Action is the executed action's audit record, nil on a no-op.
	Action *domain.ActionRecord
	// Consumed is true when the record was processed to completion and the
	// poll watermark may advance past it. A below-floor no-op leaves it
	// false so the record is re-fetched next poll.
	Consumed bool
	// Noop names the no-op reason, empty when an action executed.
	Noop NoopReason
}

// BalanceSource reports the balance available for sizing an action.
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// StaticBalance is a fixed balance, used in dry runs and tests.
type StaticBalance float64

// Balance returns the fixed value.
func (b StaticBalance) Balance(context.Context) (float64, error) {
	return float64(b), nil
}

// Consumer applies the decision rules to the signal stream and mutates a
// single durable trading session. Not safe for concurrent use; one consumer
// owns one session.
type Consumer struct {
	session  *domain.TradingSession
	sessions storage.SessionStore
	actions  storage.ActionStore
	settler  Settler
	balances BalanceSource
	cfg      Config
	logger   *log.Logger
}

// Options contains dependencies for creating a Consumer.
type Options struct {
	Session  *domain.TradingSession
	Sessions storage.SessionStore
	Actions  storage.ActionStore
	Settler  Settler
	Balances BalanceSource
	Config   Config
	Logger   *log.Logger
}

// NewConsumer creates a consumer. Missing required dependencies and invalid
// configuration are startup errors.
func NewConsumer(opts Options) (*Consumer, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("consumer config: %w", err)
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("consumer requires a trading session")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("consumer requires a session store")
	}
	if opts.Actions == nil {
		return nil, fmt.Errorf("consumer requires an action store")
	}
	if opts.Settler == nil {
		return nil, fmt.Errorf("consumer requires a settler")
	}
	if opts.Balances == nil {
		return nil, fmt.Errorf("consumer requires a balance source")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Consumer{
		session:  opts.Session,
		sessions: opts.Sessions,
		actions:  opts.Actions,
		settler:  opts.Settler,
		balances: opts.Balances,
		cfg:      opts.Config,
		logger:   logger,
	}, nil
}

// Session returns a copy of the consumer's current session state.
func (c *Consumer) Session() domain.TradingSession {
	return *c.session
}

// OnSignal applies the decision rules to one observed record, in order:
//
//  1. replay guard: the record's timestamp equals the session's last
//     consumed signal
//  2. only Confirmed records are actionable
//  3. action rate limit
//  4. ConfirmedUp while already holding the risk asset is a no-op,
//     otherwise Acquire
//  5. ConfirmedDown while already holding the safe asset is a no-op,
//     otherwise Release
//  6. an executed decision flips the held asset, increments the action
//     count, marks the record consumed, and persists the session via
//     compare-and-swap
//
// Settlement runs before the session advance; a failed settlement leaves the
// session untouched and the record eligible for retry on the next poll, up
// to the rate limit.
func (c *Consumer) OnSignal(ctx context.Context, rec *domain.SignalRecord) (Decision, error) {
	if rec == nil {
		return Decision{}, fmt.Errorf("nil signal record")
	}

	if rec.TimestampMs == c.session.LastConsumedSignalID {
		return Decision{Consumed: true, Noop: NoopReplay}, nil
	}
	if !rec.Status.IsConfirmed() {
		return Decision{Consumed: true, Noop: NoopNotConfirmed}, nil
	}
	if c.session.ActionsTaken >= c.cfg.MaxActions {
		return Decision{Consumed: true, Noop: NoopRateLimited}, nil
	}

	var action domain.ActionType
	var nextAsset domain.Asset
	switch rec.Status {
	case domain.StatusConfirmedUp:
		if c.session.HeldAsset == domain.AssetRisk {
			return Decision{Consumed: true, Noop: NoopAlreadyPositioned}, nil
		}
		action, nextAsset = domain.ActionAcquire, domain.AssetRisk
	case domain.StatusConfirmedDown:
		if c.session.HeldAsset == domain.AssetSafe {
			return Decision{Consumed: true, Noop: NoopAlreadyPositioned}, nil
		}
		action, nextAsset = domain.ActionRelease, domain.AssetSafe
	default:
		return Decision{}, fmt.Errorf("unreachable status %q", rec.Status)
	}

	balance, err := c.balances.Balance(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("read balance: %w", err)
	}
	size, ok := SizeAction(balance, c.cfg.SizeFraction, c.cfg.MinBalanceFloor)
	if !ok {
		c.logger.Printf("Skipping %s for signal %d: size %.6f below floor %.6f",
			action, rec.TimestampMs, balance*c.cfg.SizeFraction, c.cfg.MinBalanceFloor)
		return Decision{Noop: NoopBelowFloor}, nil
	}

	actionID := idhash.ComputeActionID(c.session.SessionID, action, rec.TimestampMs)
	start := time.Now()
	err = c.settler.Settle(ctx, SettleRequest{
		ActionID:    actionID,
		Action:      action,
		Size:        size,
		Price:       rec.Close,
		SlippagePct: c.cfg.SlippagePct,
	})
	observability.RecordSettlement(time.Since(start).Seconds(), err)
	if err != nil {
		// Session not advanced: the same signal stays eligible for retry.
		return Decision{}, fmt.Errorf("settle %s: %w", actionID, err)
	}

	nowMs := time.Now().UnixMilli()
	updated := *c.session
	updated.HeldAsset = nextAsset
	updated.ActionsTaken++
	updated.LastConsumedSignalID = rec.TimestampMs
	updated.UpdatedAtMs = nowMs

	if err := c.sessions.Update(ctx, &updated, c.session.LastConsumedSignalID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return Decision{}, fmt.Errorf("session %s advanced concurrently, settlement %s needs reconciliation: %w",
				c.session.SessionID, actionID, err)
		}
		return Decision{}, fmt.Errorf("persist session advance: %w", err)
	}
	*c.session = updated

	record := &domain.ActionRecord{
		ActionID:     actionID,
		SessionID:    c.session.SessionID,
		SignalTimeMs: rec.TimestampMs,
		Action:       action,
		Size:         size,
		Price:        rec.Close,
		DryRun:       c.cfg.DryRun,
		ExecutedAtMs: nowMs,
	}
	if err := c.actions.Insert(ctx, record); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		// The session already advanced; a lost audit row is logged, not fatal.
		c.logger.Printf("Failed to store action record %s: %v", actionID, err)
	}

	return Decision{Action: record, Consumed: true}, nil
}

// SizeAction sizes an action as a fraction of the available balance. ok is
// false when the size falls below the floor, where gas cost dominates, or
// the balance is unusable.
func SizeAction(balance, fraction, floor float64) (float64, bool) {
	if math.IsNaN(balance) || math.IsInf(balance, 0) || balance <= 0 {
		return 0, false
	}
	size := balance * fraction
	if size < floor {
		return 0, false
	}
	return size, true
}

// LoadOrCreateSession resumes the session with the given ID or creates a new
// one. An empty ID creates a fresh session with a random UUID. New sessions
// start holding the safe asset.
func LoadOrCreateSession(ctx context.Context, sessions storage.SessionStore, sessionID string) (*domain.TradingSession, error) {
	if sessionID != "" {
		s, err := sessions.Get(ctx, sessionID)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
	} else {
		sessionID = uuid.New().String()
	}

	s := &domain.TradingSession{
		SessionID:      sessionID,
		HeldAsset:      domain.AssetSafe,
		SessionStartMs: time.Now().UnixMilli(),
		UpdatedAtMs:    time.Now().UnixMilli(),
	}
	if err := sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session %s: %w", sessionID, err)
	}
	return s, nil
}
