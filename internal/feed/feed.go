// Package feed produces price/composition ticks from a single AMM pool.
// Sources sample the pool's two vault token accounts; the price is the raw
// quote/base reserve ratio and composition is each side's share of the
// summed raw amounts. Unit conversion between the two token denominations
// is out of scope.
package feed

import (
	"context"
	"fmt"

	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/solana"
)

// Source produces ticks from the configured pool.
type Source interface {
	// Subscribe returns a channel of ticks. The channel is closed when the
	// context is cancelled or the source fails terminally.
	Subscribe(ctx context.Context) (<-chan domain.Tick, error)
}

// AccountReader is the chain read surface the poll source needs.
type AccountReader interface {
	GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*solana.AccountInfo, error)
}

// makeTick derives a tick from raw vault reserves.
func makeTick(tsMs int64, baseAmount, quoteAmount uint64) (domain.Tick, error) {
	if baseAmount == 0 {
		return domain.Tick{}, fmt.Errorf("base vault is empty")
	}
	if quoteAmount == 0 {
		return domain.Tick{}, fmt.Errorf("quote vault is empty")
	}

	base := float64(baseAmount)
	quote := float64(quoteAmount)
	total := base + quote

	return domain.Tick{
		TimestampMs:  tsMs,
		Price:        quote / base,
		CompositionA: base / total * 100,
		CompositionB: quote / total * 100,
	}, nil
}
