package reporting

import "time"

// Report is the windowed summary of range segments and trading activity.
type Report struct {
	// Metadata
	GeneratedAt   time.Time
	WindowStartMs int64
	WindowEndMs   int64

	// Aggregates over the window
	Summary Summary

	// Reconstructed range segments, ascending by start time
	Segments []SegmentRow

	// Executed consumer actions, ascending by execution time
	Actions []ActionRow
}

// Summary contains the window's headline numbers.
type Summary struct {
	TotalRecords   int
	TotalSegments  int
	ClosedSegments int
	ResetUpCount   int
	ResetDownCount int
	MeanSegmentMs  float64 // mean duration over closed segments, 0 if none
	MaxSegmentMs   int64   // max duration over closed segments, 0 if none
	TotalActions   int
	DryRunActions  int
	SessionCount   int // distinct sessions with actions in the window
}

// SegmentRow represents one reconstructed range segment.
type SegmentRow struct {
	StartMs     int64
	EndMs       int64 // 0 while ongoing
	Lower       float64
	Upper       float64
	RecordCount int
	Reset       string // reset kind that installed this range
	DurationMs  int64  // 0 while ongoing
}

// ActionRow represents one executed consumer action.
type ActionRow struct {
	ExecutedAtMs int64
	SessionID    string
	Action       string
	Size         float64
	Price        float64
	SignalTimeMs int64
	DryRun       bool
}
