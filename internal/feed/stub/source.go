// Package stub provides deterministic tick sources for tests and dry runs.
package stub

import (
	"context"
	"fmt"
	"time"

	"solana-range-watch/internal/domain"
)

// ScriptedSource emits a fixed tick sequence and closes.
// Implements feed.Source.
type ScriptedSource struct {
	script   []domain.Tick
	interval time.Duration // 0 emits as fast as the consumer reads
}

// NewScriptedSource creates a source that plays the given ticks in order.
func NewScriptedSource(script []domain.Tick, interval time.Duration) *ScriptedSource {
	return &ScriptedSource{script: script, interval: interval}
}

// Subscribe plays the script. The channel closes after the last tick or when
// the context is cancelled.
func (s *ScriptedSource) Subscribe(ctx context.Context) (<-chan domain.Tick, error) {
	if len(s.script) == 0 {
		return nil, fmt.Errorf("empty tick script")
	}

	ticks := make(chan domain.Tick)

	go func() {
		defer close(ticks)

		for _, tick := range s.script {
			if s.interval > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.interval):
				}
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

// WalkSource emits a deterministic triangular price path around a starting
// price, one tick per interval, until the context is cancelled. Used by the
// stub feed mode to exercise the whole pipeline without a chain connection.
type WalkSource struct {
	start    float64
	step     float64
	span     int // ticks per leg before the direction flips
	interval time.Duration
}

// NewWalkSource creates a synthetic price walk.
func NewWalkSource(start, step float64, span int, interval time.Duration) (*WalkSource, error) {
	if start <= 0 || step <= 0 {
		return nil, fmt.Errorf("walk start and step must be positive")
	}
	if span < 1 {
		return nil, fmt.Errorf("walk span must be at least 1")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("walk interval must be positive")
	}
	return &WalkSource{start: start, step: step, span: span, interval: interval}, nil
}

// Subscribe produces the walk. Composition is derived from the price so the
// two fields stay mutually consistent.
func (s *WalkSource) Subscribe(ctx context.Context) (<-chan domain.Tick, error) {
	ticks := make(chan domain.Tick)

	go func() {
		defer close(ticks)

		price := s.start
		direction := 1.0
		leg := 0

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			tick := domain.Tick{
				TimestampMs:  time.Now().UnixMilli(),
				Price:        price,
				CompositionA: 100 / (1 + price),
				CompositionB: 100 * price / (1 + price),
			}

			select {
			case ticks <- tick:
			case <-ctx.Done():
				return
			}

			price += direction * s.step
			leg++
			if leg >= s.span {
				direction = -direction
				leg = 0
			}
			if price <= s.step {
				// Never walk to or below zero.
				direction = 1.0
			}
		}
	}()

	return ticks, nil
}
