package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/observability"
	"solana-range-watch/internal/solana"
)

// DefaultPollInterval is the default vault sampling cadence.
const DefaultPollInterval = 5 * time.Second

// PollSource samples the pool's two vault accounts at a fixed interval with
// one getMultipleAccounts call per cycle. A failed cycle is logged, counted,
// and skipped; the next tick of the interval is the retry.
type PollSource struct {
	rpc        AccountReader
	baseVault  string
	quoteVault string
	interval   time.Duration
	logger     *log.Logger
}

// PollOptions contains configuration for creating a PollSource.
type PollOptions struct {
	RPC        AccountReader
	BaseVault  string
	QuoteVault string
	Interval   time.Duration // default 5s
	Logger     *log.Logger
}

// NewPollSource creates a poll source. Vault addresses are validated up
// front; a malformed address is a startup error, not a skipped cycle.
func NewPollSource(opts PollOptions) (*PollSource, error) {
	if opts.RPC == nil {
		return nil, fmt.Errorf("poll source requires an RPC client")
	}
	if err := solana.ValidateAddress(opts.BaseVault); err != nil {
		return nil, fmt.Errorf("base vault: %w", err)
	}
	if err := solana.ValidateAddress(opts.QuoteVault); err != nil {
		return nil, fmt.Errorf("quote vault: %w", err)
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &PollSource{
		rpc:        opts.RPC,
		baseVault:  opts.BaseVault,
		quoteVault: opts.QuoteVault,
		interval:   interval,
		logger:     logger,
	}, nil
}

// Subscribe starts polling and returns the tick channel.
func (s *PollSource) Subscribe(ctx context.Context) (<-chan domain.Tick, error) {
	ticks := make(chan domain.Tick, 100)

	go func() {
		defer close(ticks)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Immediate first sample so the first candle does not wait a full
		// interval after startup.
		s.pollOnce(ctx, ticks)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pollOnce(ctx, ticks)
			}
		}
	}()

	return ticks, nil
}

// pollOnce samples both vaults and emits one tick. Every failure path skips
// the cycle without emitting.
func (s *PollSource) pollOnce(ctx context.Context, ticks chan<- domain.Tick) {
	callCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	start := time.Now()
	infos, err := s.rpc.GetMultipleAccounts(callCtx, []string{s.baseVault, s.quoteVault})
	observability.RecordRPCLatency("getMultipleAccounts", time.Since(start).Seconds())
	if err != nil {
		observability.RecordFeedPollError()
		s.logger.Printf("Poll failed, skipping cycle: %v", err)
		return
	}
	if len(infos) != 2 || infos[0] == nil || infos[1] == nil {
		observability.RecordFeedPollError()
		s.logger.Printf("Vault account missing, skipping cycle (base found=%t, quote found=%t)",
			len(infos) == 2 && infos[0] != nil, len(infos) == 2 && infos[1] != nil)
		return
	}

	base, err := solana.ParseTokenAccount(infos[0].Data)
	if err != nil {
		observability.RecordFeedPollError()
		s.logger.Printf("Base vault %s unparseable, skipping cycle: %v", s.baseVault, err)
		return
	}
	quote, err := solana.ParseTokenAccount(infos[1].Data)
	if err != nil {
		observability.RecordFeedPollError()
		s.logger.Printf("Quote vault %s unparseable, skipping cycle: %v", s.quoteVault, err)
		return
	}

	tick, err := makeTick(time.Now().UnixMilli(), base.Amount, quote.Amount)
	if err != nil {
		observability.RecordFeedPollError()
		s.logger.Printf("Skipping cycle: %v", err)
		return
	}

	select {
	case ticks <- tick:
	case <-ctx.Done():
	}
}

var _ Source = (*PollSource)(nil)
