// Package reporting summarizes a window of persisted signal records and
// consumer actions into markdown and CSV artifacts.
package reporting

import (
	"context"
	"fmt"
	"time"

	"solana-range-watch/internal/segment"
	"solana-range-watch/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	signals storage.SignalStore
	actions storage.ActionStore
	now     func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. The action store may be nil
// when only the watcher side is deployed; the report then has no actions
// section data.
func NewGenerator(signals storage.SignalStore, actions storage.ActionStore) *Generator {
	return &Generator{
		signals: signals,
		actions: actions,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report over [startMs, endMs].
//
// The ongoing segment is aged to the last record in the window rather than
// the wall clock, so two runs over the same stored window produce identical
// reports.
func (g *Generator) Generate(ctx context.Context, startMs, endMs int64) (*Report, error) {
	records, err := g.signals.GetByTimeRange(ctx, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("load signal records: %w", err)
	}

	segments := segment.Reconstruct(records)

	asOf := endMs
	if len(records) > 0 {
		asOf = records[len(records)-1].TimestampMs
	}
	stats := segment.Stats(segments, asOf)

	report := &Report{
		GeneratedAt:   g.now(),
		WindowStartMs: startMs,
		WindowEndMs:   endMs,
		Summary: Summary{
			TotalRecords:   len(records),
			TotalSegments:  stats.TotalSegments,
			ClosedSegments: stats.ClosedSegments,
			ResetUpCount:   stats.ResetUpCount,
			ResetDownCount: stats.ResetDownCount,
			MeanSegmentMs:  stats.MeanDurationMs,
			MaxSegmentMs:   stats.MaxDurationMs,
		},
		Segments: make([]SegmentRow, 0, len(segments)),
	}

	for _, seg := range segments {
		report.Segments = append(report.Segments, SegmentRow{
			StartMs:     seg.StartTime,
			EndMs:       seg.EndTime,
			Lower:       seg.Lower,
			Upper:       seg.Upper,
			RecordCount: seg.RecordCount,
			Reset:       seg.Reset.String(),
			DurationMs:  seg.DurationMs(),
		})
	}

	if g.actions != nil {
		if err := g.fillActions(ctx, report, startMs, endMs); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// fillActions loads the window's executed actions and their summary counts.
func (g *Generator) fillActions(ctx context.Context, report *Report, startMs, endMs int64) error {
	executed, err := g.actions.GetByTimeRange(ctx, startMs, endMs)
	if err != nil {
		return fmt.Errorf("load action records: %w", err)
	}

	sessions := make(map[string]struct{})
	report.Actions = make([]ActionRow, 0, len(executed))
	for _, a := range executed {
		report.Actions = append(report.Actions, ActionRow{
			ExecutedAtMs: a.ExecutedAtMs,
			SessionID:    a.SessionID,
			Action:       a.Action.String(),
			Size:         a.Size,
			Price:        a.Price,
			SignalTimeMs: a.SignalTimeMs,
			DryRun:       a.DryRun,
		})
		sessions[a.SessionID] = struct{}{}
		if a.DryRun {
			report.Summary.DryRunActions++
		}
	}
	report.Summary.TotalActions = len(executed)
	report.Summary.SessionCount = len(sessions)
	return nil
}
