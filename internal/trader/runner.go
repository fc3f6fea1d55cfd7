package trader

import (
	"context"
	"fmt"
	"log"
	"time"

	"solana-range-watch/internal/observability"
	"solana-range-watch/internal/storage"
)

const defaultBatchSize = 100

// Runner polls the signal store and feeds new records to the consumer in
// ascending order. Polling is decoupled from the writer: records may be seen
// late, but never skipped — the watermark only advances past records the
// consumer processed to completion.
type Runner struct {
	consumer  *Consumer
	signals   storage.SignalStore
	batchSize int
	watermark int64
	logger    *log.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Consumer  *Consumer
	Signals   storage.SignalStore
	BatchSize int // default 100
	Logger    *log.Logger
}

// NewRunner creates a trader runner. The watermark starts at the session's
// last consumed signal, so records already acted on are not re-fetched.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Consumer == nil {
		return nil, fmt.Errorf("trader runner requires a consumer")
	}
	if opts.Signals == nil {
		return nil, fmt.Errorf("trader runner requires a signal store")
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		consumer:  opts.Consumer,
		signals:   opts.Signals,
		batchSize: batchSize,
		watermark: opts.Consumer.Session().LastConsumedSignalID,
		logger:    logger,
	}, nil
}

// Run polls until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.consumer.cfg.PollInterval
	r.logger.Printf("Trader runner started, poll interval %v, watermark %d", interval, r.watermark)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Immediate first poll so a restart catches up without waiting a tick.
	r.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Trader runner stopping...")
			return ctx.Err()
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

// Watermark returns the timestamp the next poll queries strictly after.
func (r *Runner) Watermark() int64 {
	return r.watermark
}

// pollOnce fetches and processes one batch. Any record that cannot be
// processed to completion stops the batch: later records must not be
// consumed out of order.
func (r *Runner) pollOnce(ctx context.Context) {
	records, err := r.signals.GetAfter(ctx, r.watermark, r.batchSize)
	if err != nil {
		r.logger.Printf("Error polling signals after %d: %v", r.watermark, err)
		return
	}

	for _, rec := range records {
		observability.RecordSignalObserved()

		dec, err := r.consumer.OnSignal(ctx, rec)
		if err != nil {
			r.logger.Printf("Error consuming signal %d: %v", rec.TimestampMs, err)
			return
		}
		if !dec.Consumed {
			observability.RecordConsumerNoop(string(dec.Noop))
			return
		}

		r.watermark = rec.TimestampMs
		if dec.Action != nil {
			observability.RecordAction(string(dec.Action.Action), rec.TimestampMs)
			r.logger.Printf("Executed %s: size=%.6f price=%.6f signal=%d actions=%d",
				dec.Action.Action, dec.Action.Size, dec.Action.Price,
				rec.TimestampMs, r.consumer.Session().ActionsTaken)
		} else {
			observability.RecordConsumerNoop(string(dec.Noop))
		}
	}
}
