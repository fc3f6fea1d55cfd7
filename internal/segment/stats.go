package segment

import "solana-range-watch/internal/domain"

// SegmentStats summarizes a reconstructed segment sequence for reporting.
type SegmentStats struct {
	TotalSegments    int
	ResetUpCount     int
	ResetDownCount   int
	ClosedSegments   int
	MeanDurationMs   float64 // mean over closed segments, 0 if none
	MaxDurationMs    int64   // max over closed segments, 0 if none
	OpenDurationMs   int64   // ongoing segment's age as of asOfMs, 0 if none
	TotalRecordCount int
}

// Stats computes summary statistics over segments. asOfMs is used only to age
// the ongoing segment; durations of closed segments come from their
// boundaries.
func Stats(segments []*domain.RangeSegment, asOfMs int64) SegmentStats {
	var stats SegmentStats
	var closedTotal int64

	for _, seg := range segments {
		stats.TotalSegments++
		stats.TotalRecordCount += seg.RecordCount

		switch seg.Reset {
		case domain.ResetUp:
			stats.ResetUpCount++
		case domain.ResetDown:
			stats.ResetDownCount++
		}

		if seg.Open() {
			if asOfMs > seg.StartTime {
				stats.OpenDurationMs = asOfMs - seg.StartTime
			}
			continue
		}

		stats.ClosedSegments++
		d := seg.DurationMs()
		closedTotal += d
		if d > stats.MaxDurationMs {
			stats.MaxDurationMs = d
		}
	}

	if stats.ClosedSegments > 0 {
		stats.MeanDurationMs = float64(closedTotal) / float64(stats.ClosedSegments)
	}
	return stats
}
