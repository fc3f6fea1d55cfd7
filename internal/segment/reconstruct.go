// Package segment recovers range segments from the persisted signal-record
// stream. All functions are pure: they never mutate their input and are safe
// to call concurrently, which matters because reconstruction runs on every
// chart query.
package segment

import (
	"solana-range-watch/internal/domain"
)

// Reconstruct groups an ascending-timestamp record stream into maximal
// contiguous runs sharing one (upper, lower) range pair.
//
// A segment starts at its first record's timestamp and ends at the first
// timestamp of the next segment (EndTime 0 while ongoing). A confirmed
// record installs a new range and therefore belongs to the segment it opens,
// not the one it closes; such a segment gets ResetOccurred plus the record's
// reset kind. The seeded first segment has neither.
//
// Records must be in ascending timestamp order; the caller queries the store
// that way.
func Reconstruct(records []*domain.SignalRecord) []*domain.RangeSegment {
	if len(records) == 0 {
		return nil
	}

	var segments []*domain.RangeSegment
	var current *domain.RangeSegment

	for _, rec := range records {
		if current == nil || rec.UpperRange != current.Upper || rec.LowerRange != current.Lower {
			// Range pair changed: close the running segment and open a new one.
			if current != nil {
				current.EndTime = rec.TimestampMs
				segments = append(segments, current)
			}
			current = &domain.RangeSegment{
				Upper:       rec.UpperRange,
				Lower:       rec.LowerRange,
				StartTime:   rec.TimestampMs,
				RecordCount: 1,
			}
			if rec.Status.IsConfirmed() {
				current.ResetOccurred = true
				current.Reset = rec.Reset
			} else {
				current.Reset = domain.ResetNone
			}
			continue
		}

		current.RecordCount++
		if rec.Status.IsConfirmed() && !current.ResetOccurred {
			current.ResetOccurred = true
			current.Reset = rec.Reset
		}
	}

	// Last segment stays open.
	segments = append(segments, current)
	return segments
}

// ActiveAt returns the segment whose [StartTime, EndTime) window covers ts,
// or nil when ts precedes the first segment or no segments exist. The
// ongoing segment covers everything from its start onward.
func ActiveAt(segments []*domain.RangeSegment, ts int64) *domain.RangeSegment {
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg.StartTime > ts {
			continue
		}
		if seg.Open() || ts < seg.EndTime {
			return seg
		}
		// ts falls at or beyond a closed trailing segment's end.
		return nil
	}
	return nil
}

// Filter returns the records that fall inside seg's time window, preserving
// input order. Used to attribute records back to a reconstructed segment.
func Filter(records []*domain.SignalRecord, seg *domain.RangeSegment) []*domain.SignalRecord {
	if seg == nil {
		return nil
	}
	var out []*domain.SignalRecord
	for _, rec := range records {
		if rec.TimestampMs < seg.StartTime {
			continue
		}
		if !seg.Open() && rec.TimestampMs >= seg.EndTime {
			continue
		}
		out = append(out, rec)
	}
	return out
}
