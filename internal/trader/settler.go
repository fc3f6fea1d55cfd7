package trader

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/time/rate"

	"solana-range-watch/internal/domain"
)

// SettleRequest carries everything a settlement backend needs for one
// attempt. ActionID is deterministic per (session, action, signal) so a
// retried attempt is idempotent downstream.
type SettleRequest struct {
	ActionID    string
	Action      domain.ActionType
	Size        float64
	Price       float64
	SlippagePct float64
}

// Settler executes a settlement attempt. Implementations must treat the
// context deadline as the attempt's time budget; the consumer abandons the
// cycle when it expires.
type Settler interface {
	Settle(ctx context.Context, req SettleRequest) error
}

// DryRunSettler reports synthetic success without touching external
// balances. Wired by mains when the dry-run flag is set.
type DryRunSettler struct {
	Logger *log.Logger
}

// Settle logs the would-be settlement and succeeds.
func (s *DryRunSettler) Settle(_ context.Context, req SettleRequest) error {
	if s.Logger != nil {
		s.Logger.Printf("DRY RUN %s size=%.6f price=%.6f slippage=%.4f%% action_id=%s",
			req.Action, req.Size, req.Price, req.SlippagePct*100, req.ActionID)
	}
	return nil
}

// RateLimitedSettler wraps another settler with a token-bucket rate limit,
// bounding how fast settlement attempts reach the backend regardless of how
// quickly signals arrive.
type RateLimitedSettler struct {
	inner   Settler
	limiter *rate.Limiter
}

// NewRateLimitedSettler allows up to perMinute attempts per minute with a
// burst of one.
func NewRateLimitedSettler(inner Settler, perMinute float64) (*RateLimitedSettler, error) {
	if inner == nil {
		return nil, fmt.Errorf("rate limited settler requires an inner settler")
	}
	if perMinute <= 0 {
		return nil, fmt.Errorf("settle rate must be positive, got %f", perMinute)
	}
	return &RateLimitedSettler{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60.0), 1),
	}, nil
}

// Settle waits for a rate-limit token, then delegates. A context expired
// while waiting fails the attempt without consuming a token.
func (s *RateLimitedSettler) Settle(ctx context.Context, req SettleRequest) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("settle rate limit: %w", err)
	}
	return s.inner.Settle(ctx, req)
}

var _ Settler = (*DryRunSettler)(nil)
var _ Settler = (*RateLimitedSettler)(nil)
