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

// WSSource emits a tick whenever either vault account changes, once both
// sides have been observed. A closed subscription is terminal: the tick
// channel closes and the caller decides whether to restart the process.
type WSSource struct {
	ws         solana.WSClient
	baseVault  string
	quoteVault string
	logger     *log.Logger
}

// WSOptions contains configuration for creating a WSSource.
type WSOptions struct {
	WS         solana.WSClient
	BaseVault  string
	QuoteVault string
	Logger     *log.Logger
}

// NewWSSource creates a push source over an established WebSocket client.
func NewWSSource(opts WSOptions) (*WSSource, error) {
	if opts.WS == nil {
		return nil, fmt.Errorf("ws source requires a websocket client")
	}
	if err := solana.ValidateAddress(opts.BaseVault); err != nil {
		return nil, fmt.Errorf("base vault: %w", err)
	}
	if err := solana.ValidateAddress(opts.QuoteVault); err != nil {
		return nil, fmt.Errorf("quote vault: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &WSSource{
		ws:         opts.WS,
		baseVault:  opts.BaseVault,
		quoteVault: opts.QuoteVault,
		logger:     logger,
	}, nil
}

// Subscribe subscribes to both vault accounts and returns the tick channel.
func (s *WSSource) Subscribe(ctx context.Context) (<-chan domain.Tick, error) {
	baseCh, err := s.ws.SubscribeAccount(ctx, s.baseVault)
	if err != nil {
		return nil, fmt.Errorf("subscribe base vault: %w", err)
	}
	quoteCh, err := s.ws.SubscribeAccount(ctx, s.quoteVault)
	if err != nil {
		return nil, fmt.Errorf("subscribe quote vault: %w", err)
	}
	s.logger.Printf("Subscribed to vaults base=%s quote=%s", s.baseVault, s.quoteVault)

	ticks := make(chan domain.Tick, 100)

	go func() {
		defer close(ticks)

		// A tick needs both sides; amounts stay nil until first seen.
		var baseAmount, quoteAmount *uint64

		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-baseCh:
				if !ok {
					s.logger.Println("Base vault subscription closed, feed terminated")
					return
				}
				// An unparseable update carries no new information: skip it
				// and keep the last good amount in effect.
				amt, parsed := s.parseAmount(update)
				if !parsed {
					continue
				}
				baseAmount = &amt
			case update, ok := <-quoteCh:
				if !ok {
					s.logger.Println("Quote vault subscription closed, feed terminated")
					return
				}
				amt, parsed := s.parseAmount(update)
				if !parsed {
					continue
				}
				quoteAmount = &amt
			}

			if baseAmount == nil || quoteAmount == nil {
				continue
			}

			tick, err := makeTick(time.Now().UnixMilli(), *baseAmount, *quoteAmount)
			if err != nil {
				observability.RecordFeedPollError()
				s.logger.Printf("Skipping update: %v", err)
				continue
			}

			select {
			case ticks <- tick:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ticks, nil
}

// parseAmount extracts the token amount from an account update.
func (s *WSSource) parseAmount(update solana.AccountNotification) (uint64, bool) {
	acct, err := solana.ParseTokenAccount(update.Data)
	if err != nil {
		observability.RecordFeedPollError()
		s.logger.Printf("Vault %s update unparseable, ignoring: %v", update.Pubkey, err)
		return 0, false
	}
	return acct.Amount, true
}

var _ Source = (*WSSource)(nil)
