// Package watch runs the writer loop that turns feed ticks into persisted
// candles and signal records.
//
// One goroutine owns the whole tick → candle → machine path, so the open
// candle and the reference Range never see concurrent mutation. Store writes
// deduplicate on their natural keys, which makes the loop safe to restart
// against stores that already hold part of its output.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"solana-range-watch/internal/breakout"
	"solana-range-watch/internal/candle"
	"solana-range-watch/internal/domain"
	"solana-range-watch/internal/feed"
	"solana-range-watch/internal/observability"
	"solana-range-watch/internal/storage"
)

// Runner wires a tick source into the candle aggregator and the breakout
// machine, persisting every closed candle and every emitted signal record.
type Runner struct {
	source     feed.Source
	aggregator *candle.Aggregator
	machine    *breakout.Machine
	candles    storage.CandleStore
	signals    storage.SignalStore
	logger     *log.Logger

	// status is a copy for concurrent readers (/status); the loop goroutine
	// owns the live machine and must not share it.
	statusMu sync.Mutex
	status   Status
}

// RunnerOptions contains the dependencies for creating a Runner.
type RunnerOptions struct {
	Source     feed.Source
	Aggregator *candle.Aggregator
	Machine    *breakout.Machine
	Candles    storage.CandleStore
	Signals    storage.SignalStore
	Logger     *log.Logger
}

// Status is a point-in-time view of the runner for health reporting.
type Status struct {
	Machine       breakout.Snapshot `json:"machine"`
	LastTickMs    int64             `json:"last_tick_ms"`
	LastCloseMs   int64             `json:"last_close_ms"`
	TicksSeen     int64             `json:"ticks_seen"`
	CandlesClosed int64             `json:"candles_closed"`
}

// NewRunner creates a watch runner. All dependencies except Logger are
// required.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("watch runner requires a tick source")
	}
	if opts.Aggregator == nil {
		return nil, fmt.Errorf("watch runner requires an aggregator")
	}
	if opts.Machine == nil {
		return nil, fmt.Errorf("watch runner requires a breakout machine")
	}
	if opts.Candles == nil {
		return nil, fmt.Errorf("watch runner requires a candle store")
	}
	if opts.Signals == nil {
		return nil, fmt.Errorf("watch runner requires a signal store")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	r := &Runner{
		source:     opts.Source,
		aggregator: opts.Aggregator,
		machine:    opts.Machine,
		candles:    opts.Candles,
		signals:    opts.Signals,
		logger:     logger,
	}
	r.status.Machine = opts.Machine.Snapshot()
	return r, nil
}

// Restore rebuilds the machine state from the most recent persisted signal
// record, so a restarted watcher continues the existing Range instead of
// re-seeding from the next candle. An empty store leaves the machine fresh.
// Call once before Run.
func (r *Runner) Restore(ctx context.Context) error {
	rec, err := r.signals.GetLatest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Println("No persisted signal records, machine starts fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load latest signal record: %w", err)
	}

	snap, err := breakout.SnapshotFromRecord(rec)
	if err != nil {
		return fmt.Errorf("derive machine state from record at %d: %w", rec.TimestampMs, err)
	}
	if err := r.machine.Restore(snap); err != nil {
		return fmt.Errorf("restore machine state: %w", err)
	}

	r.statusMu.Lock()
	r.status.Machine = snap
	r.statusMu.Unlock()

	r.logger.Printf("Machine restored from record at %d: state=%s range=[%.6f, %.6f]",
		rec.TimestampMs, snap.State, snap.Range.Lower, snap.Range.Upper)
	return nil
}

// Run consumes the tick feed until the context is cancelled or the feed
// terminates. The open candle at shutdown is discarded, never persisted: a
// bucket that did not run its full interval has no close to evaluate.
func (r *Runner) Run(ctx context.Context) error {
	ticks, err := r.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to tick feed: %w", err)
	}

	r.logger.Printf("Watch runner started, candle interval %dms", r.aggregator.IntervalMs())

	for {
		select {
		case <-ctx.Done():
			r.discardPartial()
			r.logger.Println("Watch runner stopping...")
			return ctx.Err()

		case tick, ok := <-ticks:
			if !ok {
				r.discardPartial()
				r.logger.Println("Tick feed closed")
				return errors.New("tick feed closed")
			}
			r.handleTick(ctx, tick)
		}
	}
}

// Status returns a copy of the runner's current state for /status reporting.
func (r *Runner) Status() Status {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	return r.status
}

// handleTick folds one tick into the open candle and processes the close it
// may produce.
func (r *Runner) handleTick(ctx context.Context, tick domain.Tick) {
	closed, err := r.aggregator.Ingest(tick)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, candle.ErrOutOfOrder) {
			reason = "out_of_order"
		}
		observability.RecordTickRejected(reason)
		r.logger.Printf("Rejected tick at %d: %v", tick.TimestampMs, err)
		return
	}

	observability.RecordTick(tick.TimestampMs)
	r.statusMu.Lock()
	r.status.LastTickMs = tick.TimestampMs
	r.status.TicksSeen++
	r.statusMu.Unlock()

	if closed != nil {
		r.handleClose(ctx, closed)
	}
}

// handleClose persists a finalized candle and advances the machine on it.
//
// A failed candle insert skips the whole close: the bucket stays absent from
// both stores and the machine state is untouched, as if the candle never
// closed. A duplicate key means a restart is replaying a bucket the store
// already holds; the machine still needs the close to advance, so evaluation
// proceeds and the signal insert deduplicates the same way.
func (r *Runner) handleClose(ctx context.Context, c *domain.Candle) {
	observability.RecordCandleClosed(c.BucketStart)

	if err := r.candles.Insert(ctx, c); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			r.logger.Printf("Error storing candle for bucket %d: %v", c.BucketStart, err)
			return
		}
		observability.RecordDuplicateSkip()
	}

	rec, err := r.machine.Evaluate(*c)
	if err != nil {
		r.logger.Printf("Machine rejected candle for bucket %d: %v", c.BucketStart, err)
		return
	}

	observability.RecordSignal(string(rec.Status))
	if rec.Reset != domain.ResetNone {
		observability.RecordReset(string(rec.Reset))
		r.logger.Printf("Range reset %s at %d: close=%.6f new range=[%.6f, %.6f]",
			rec.Reset, rec.TimestampMs, rec.Close, rec.LowerRange, rec.UpperRange)
	}

	r.statusMu.Lock()
	r.status.Machine = r.machine.Snapshot()
	r.status.LastCloseMs = c.BucketStart
	r.status.CandlesClosed++
	r.statusMu.Unlock()

	if err := r.signals.Insert(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			observability.RecordDuplicateSkip()
			return
		}
		// The machine has already advanced, so only this record's
		// persistence is lost; a restart resumes from the previous record.
		r.logger.Printf("Error storing signal record at %d: %v", rec.TimestampMs, err)
	}
}

// discardPartial drops the open candle on shutdown.
func (r *Runner) discardPartial() {
	if c := r.aggregator.Flush(); c != nil {
		r.logger.Printf("Discarding partial candle for bucket %d", c.BucketStart)
	}
}
