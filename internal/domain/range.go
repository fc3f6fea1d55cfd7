package domain

// Range is the reference band around a center price used to detect
// breakouts. Immutable once created: a confirmed breakout replaces the
// whole value, it is never mutated in place.
type Range struct {
	Upper float64 `json:"upper"` // center * (1 + band pct)
	Lower float64 `json:"lower"` // center * (1 - band pct)
}

// NewRange derives a band of bandPct around center.
func NewRange(center, bandPct float64) Range {
	return Range{
		Upper: center * (1 + bandPct),
		Lower: center * (1 - bandPct),
	}
}

// Contains reports whether p lies inside the band, bounds included.
func (r Range) Contains(p float64) bool {
	return p >= r.Lower && p <= r.Upper
}
