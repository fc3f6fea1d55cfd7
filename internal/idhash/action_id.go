package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-range-watch/internal/domain"
)

// ComputeActionID computes a deterministic action_id using SHA256.
// Formula: SHA256(session_id|action|signal_time_ms)
// Returns hex-encoded hash (64 characters).
//
// The ID depends only on the session, the action type, and the signal that
// triggered it, so a settlement retried after a transient failure lands on
// the same audit row instead of a duplicate.
func ComputeActionID(sessionID string, action domain.ActionType, signalTimeMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", sessionID, string(action), signalTimeMs)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
