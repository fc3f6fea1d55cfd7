package domain

// Asset identifies which side of the pool the trader currently holds.
type Asset string

const (
	AssetRisk Asset = "RISK" // the volatile pool asset
	AssetSafe Asset = "SAFE" // the stable counter asset
)

// String returns the string representation of Asset.
func (a Asset) String() string {
	return string(a)
}

// IsValid checks if the asset is a valid value.
func (a Asset) IsValid() bool {
	return a == AssetRisk || a == AssetSafe
}

// ActionType is the trading decision the consumer derives from a confirmed
// breakout record.
type ActionType string

const (
	ActionAcquire ActionType = "ACQUIRE" // flip into the risk asset
	ActionRelease ActionType = "RELEASE" // flip into the safe asset
)

// String returns the string representation of ActionType.
func (a ActionType) String() string {
	return string(a)
}

// IsValid checks if the action type is a valid value.
func (a ActionType) IsValid() bool {
	return a == ActionAcquire || a == ActionRelease
}

// TradingSession is the signal consumer's durable state.
// Corresponds to the trading_sessions table in PostgreSQL. Mutated only by
// the consumer; every advance is a compare-and-swap on
// LastConsumedSignalID.
type TradingSession struct {
	SessionID            string // PRIMARY KEY, uuid
	HeldAsset            Asset  // current position
	LastConsumedSignalID int64  // timestamp of the last acted-on record, 0 = none
	ActionsTaken         int    // executed actions this session
	SessionStartMs       int64  // session creation timestamp (ms)
	UpdatedAtMs          int64  // last successful advance timestamp (ms)
}

// ActionRecord is the audit entry for one executed consumer action.
// Corresponds to the action_records table in PostgreSQL.
type ActionRecord struct {
	ActionID     string     // PRIMARY KEY, deterministic hash
	SessionID    string     // owning trading session
	SignalTimeMs int64      // signal record that triggered the action
	Action       ActionType // ACQUIRE | RELEASE
	Size         float64    // settled size in balance units
	Price        float64    // signal close price at decision time
	DryRun       bool       // true when settlement was suppressed
	ExecutedAtMs int64      // execution timestamp (ms)
}
