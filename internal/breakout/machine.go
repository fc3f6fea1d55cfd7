package breakout

import (
	"fmt"
	"math"

	"solana-range-watch/internal/domain"
)

// DefaultBandPct is the half-width of the reference Range as a fraction of
// its center (0.1%).
const DefaultBandPct = 0.001

// State is the machine's position in the two-stage confirmation protocol.
// Pending states are transient: they are held only between one candle close
// and the next.
type State string

const (
	StateMonitoring  State = "MONITORING"
	StatePendingUp   State = "PENDING_UP"
	StatePendingDown State = "PENDING_DOWN"
)

// IsValid reports whether s is a recognized machine state.
func (s State) IsValid() bool {
	switch s {
	case StateMonitoring, StatePendingUp, StatePendingDown:
		return true
	}
	return false
}

// Machine is the breakout signal state machine. It consumes closed candles in
// strict temporal order and emits exactly one signal record per close.
//
// A breach of the reference Range is only confirmed after the price stays
// outside the band across a full candle interval: the first excursion emits a
// Pending record, and the next close re-evaluates against the same Range.
// A close back inside rejects the breach as noise. A close still outside (on
// either side) confirms it, installs a new Range centered on the confirming
// price, and tags the record with the reset kind.
//
// The confirmation direction is derived from the confirming price's position
// relative to the old Range, not from the side that triggered the Pending
// state. A price that overshoots upward and whipsaws below the band by the
// next close is confirmed DOWN. Intentional; see TestMachine_DirectionFlip.
//
// Not safe for concurrent use; driven by the single watch runner goroutine.
type Machine struct {
	bandPct float64
	state   State
	rng     domain.Range
	seeded  bool
}

// Snapshot is an externally visible copy of the machine state, used for
// status reporting and for resuming after a restart.
type Snapshot struct {
	State  State        `json:"state"`
	Range  domain.Range `json:"range"`
	Seeded bool         `json:"seeded"`
}

// NewMachine creates a machine with the given band percentage (e.g. 0.001
// for ±0.1%).
func NewMachine(bandPct float64) (*Machine, error) {
	if math.IsNaN(bandPct) || bandPct <= 0 || bandPct >= 1 {
		return nil, fmt.Errorf("band pct must be in (0, 1), got %f", bandPct)
	}
	return &Machine{
		bandPct: bandPct,
		state:   StateMonitoring,
	}, nil
}

// Evaluate processes one closed candle and returns the signal record for it.
//
// The first candle seeds the Range from its open price and emits a Monitoring
// record without evaluating the close. Every later candle is evaluated per
// the confirmation protocol. A malformed candle (non-finite close) returns an
// error with state and Range untouched and no record emitted.
func (m *Machine) Evaluate(c domain.Candle) (*domain.SignalRecord, error) {
	if math.IsNaN(c.Close) || math.IsInf(c.Close, 0) {
		return nil, fmt.Errorf("candle close is not finite (bucket %d)", c.BucketStart)
	}

	if !m.seeded {
		if math.IsNaN(c.Open) || math.IsInf(c.Open, 0) || c.Open <= 0 {
			return nil, fmt.Errorf("cannot seed range from open %f (bucket %d)", c.Open, c.BucketStart)
		}
		m.rng = domain.NewRange(c.Open, m.bandPct)
		m.state = StateMonitoring
		m.seeded = true
		return m.buildRecord(c, domain.StatusMonitoring, m.rng, domain.ResetNone), nil
	}

	p := c.Close

	switch m.state {
	case StateMonitoring:
		switch {
		case m.rng.Contains(p):
			// Re-emit Monitoring so charting stays continuous between breakouts.
			return m.buildRecord(c, domain.StatusMonitoring, m.rng, domain.ResetNone), nil
		case p > m.rng.Upper:
			m.state = StatePendingUp
			return m.buildRecord(c, domain.StatusBreakoutPendingUp, m.rng, domain.ResetNone), nil
		default: // p < m.rng.Lower
			m.state = StatePendingDown
			return m.buildRecord(c, domain.StatusBreakoutPendingDown, m.rng, domain.ResetNone), nil
		}

	case StatePendingUp, StatePendingDown:
		if m.rng.Contains(p) {
			// Back inside after a full interval: the breach was noise.
			m.state = StateMonitoring
			return m.buildRecord(c, domain.StatusMonitoring, m.rng, domain.ResetNone), nil
		}

		// Still outside: confirmed. Direction comes from p against the OLD
		// Range; the new Range is centered on the confirming price and is
		// what the Confirmed record carries.
		status := domain.StatusConfirmedDown
		reset := domain.ResetDown
		if p > m.rng.Upper {
			status = domain.StatusConfirmedUp
			reset = domain.ResetUp
		}
		m.rng = domain.NewRange(p, m.bandPct)
		m.state = StateMonitoring
		return m.buildRecord(c, status, m.rng, reset), nil

	default:
		return nil, fmt.Errorf("machine in unknown state %q", m.state)
	}
}

// Snapshot returns a copy of the current machine state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:  m.state,
		Range:  m.rng,
		Seeded: m.seeded,
	}
}

// Restore replaces the machine state with a previously captured snapshot.
// Used on startup to resume from the last persisted signal record instead of
// re-seeding.
func (m *Machine) Restore(snap Snapshot) error {
	if !snap.State.IsValid() {
		return fmt.Errorf("invalid machine state %q", snap.State)
	}
	if snap.Seeded {
		if snap.Range.Lower <= 0 || snap.Range.Upper <= snap.Range.Lower {
			return fmt.Errorf("invalid range: upper %f, lower %f", snap.Range.Upper, snap.Range.Lower)
		}
	}
	m.state = snap.State
	m.rng = snap.Range
	m.seeded = snap.Seeded
	return nil
}

// SnapshotFromRecord derives the machine state implied by a persisted signal
// record, so a restarted process continues where the previous one stopped.
// Pending records leave the machine in the matching pending state; Monitoring
// and Confirmed records leave it monitoring the record's Range.
func SnapshotFromRecord(rec *domain.SignalRecord) (Snapshot, error) {
	if rec == nil {
		return Snapshot{}, fmt.Errorf("nil signal record")
	}
	var state State
	switch rec.Status {
	case domain.StatusMonitoring, domain.StatusConfirmedUp, domain.StatusConfirmedDown:
		state = StateMonitoring
	case domain.StatusBreakoutPendingUp:
		state = StatePendingUp
	case domain.StatusBreakoutPendingDown:
		state = StatePendingDown
	default:
		return Snapshot{}, fmt.Errorf("unknown signal status %q", rec.Status)
	}
	return Snapshot{
		State:  state,
		Range:  rec.Range(),
		Seeded: true,
	}, nil
}

func (m *Machine) buildRecord(c domain.Candle, status domain.SignalStatus, rng domain.Range, reset domain.ResetKind) *domain.SignalRecord {
	return &domain.SignalRecord{
		TimestampMs:  c.BucketStart,
		Status:       status,
		UpperRange:   rng.Upper,
		LowerRange:   rng.Lower,
		Open:         c.Open,
		High:         c.High,
		Low:          c.Low,
		Close:        c.Close,
		CompositionA: c.CompositionA,
		CompositionB: c.CompositionB,
		Reset:        reset,
	}
}
