package domain

// RangeSegment is a maximal contiguous run of signal records sharing one
// range, reconstructed on demand from the record stream. Derived, never
// stored.
type RangeSegment struct {
	Upper         float64   // shared range upper bound
	Lower         float64   // shared range lower bound
	StartTime     int64     // timestamp of the segment's first record (ms)
	EndTime       int64     // first timestamp of the next segment (ms), 0 while ongoing
	RecordCount   int       // records attributed to this segment
	ResetOccurred bool      // true when a confirmed breakout created this range
	Reset         ResetKind // direction of that reset, NONE for the seeded segment
}

// Open reports whether the segment is still ongoing (no successor yet).
func (s RangeSegment) Open() bool {
	return s.EndTime == 0
}

// DurationMs returns the segment length in milliseconds, 0 while ongoing.
func (s RangeSegment) DurationMs() int64 {
	if s.Open() {
		return 0
	}
	return s.EndTime - s.StartTime
}
