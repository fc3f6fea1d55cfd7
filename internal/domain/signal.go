package domain

// SignalStatus represents the breakout machine's verdict for one candle close.
type SignalStatus string

const (
	StatusMonitoring          SignalStatus = "MONITORING"
	StatusBreakoutPendingUp   SignalStatus = "BREAKOUT_PENDING_UP"
	StatusBreakoutPendingDown SignalStatus = "BREAKOUT_PENDING_DOWN"
	StatusConfirmedUp         SignalStatus = "CONFIRMED_UP"
	StatusConfirmedDown       SignalStatus = "CONFIRMED_DOWN"
)

// String returns the string representation of SignalStatus.
func (s SignalStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s SignalStatus) IsValid() bool {
	switch s {
	case StatusMonitoring, StatusBreakoutPendingUp, StatusBreakoutPendingDown,
		StatusConfirmedUp, StatusConfirmedDown:
		return true
	}
	return false
}

// IsConfirmed reports whether the status is a confirmed breakout, the only
// statuses the signal consumer acts on.
func (s SignalStatus) IsConfirmed() bool {
	return s == StatusConfirmedUp || s == StatusConfirmedDown
}

// ResetKind records which direction a confirmed breakout rebalanced the
// reference range, None on every non-confirmed record.
type ResetKind string

const (
	ResetNone ResetKind = "NONE"
	ResetUp   ResetKind = "RESET_UP"
	ResetDown ResetKind = "RESET_DOWN"
)

// String returns the string representation of ResetKind.
func (k ResetKind) String() string {
	return string(k)
}

// IsValid checks if the reset kind is a valid value.
func (k ResetKind) IsValid() bool {
	return k == ResetNone || k == ResetUp || k == ResetDown
}

// SignalRecord is the breakout machine's output for one candle close.
// Corresponds to the signal_records table in PostgreSQL. TimestampMs equals
// the candle's BucketStart and is the natural key: exactly one record exists
// per bucket close.
type SignalRecord struct {
	TimestampMs  int64        // PRIMARY KEY, candle bucket start (ms)
	Status       SignalStatus // machine verdict at this close
	UpperRange   float64      // active range upper bound
	LowerRange   float64      // active range lower bound
	Open         float64      // candle open
	High         float64      // candle high
	Low          float64      // candle low
	Close        float64      // candle close
	CompositionA float64      // base reserve share at close, percent
	CompositionB float64      // quote reserve share at close, percent
	Reset        ResetKind    // set on CONFIRMED_* records, NONE otherwise
}

// Range returns the record's active range as a value.
func (r SignalRecord) Range() Range {
	return Range{Upper: r.UpperRange, Lower: r.LowerRange}
}
