package idhash

import (
	"testing"

	"solana-range-watch/internal/domain"
)

func TestComputeActionID(t *testing.T) {
	tests := []struct {
		name         string
		sessionID    string
		action       domain.ActionType
		signalTimeMs int64
		wantLen      int // hash length should be 64
	}{
		{
			name:         "acquire",
			sessionID:    "d3b07384-d9a0-4c9f-8b3e-5f0e6a1b2c3d",
			action:       domain.ActionAcquire,
			signalTimeMs: 1704067200000,
			wantLen:      64,
		},
		{
			name:         "release",
			sessionID:    "d3b07384-d9a0-4c9f-8b3e-5f0e6a1b2c3d",
			action:       domain.ActionRelease,
			signalTimeMs: 1704067260000,
			wantLen:      64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeActionID(tt.sessionID, tt.action, tt.signalTimeMs)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeActionID() length = %d, want %d", len(got), tt.wantLen)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeActionID(tt.sessionID, tt.action, tt.signalTimeMs)
			if got != got2 {
				t.Errorf("ComputeActionID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeActionID_DifferentInputs(t *testing.T) {
	base := ComputeActionID("session-1", domain.ActionAcquire, 1000)

	if base == ComputeActionID("session-2", domain.ActionAcquire, 1000) {
		t.Error("Different session should produce different hash")
	}
	if base == ComputeActionID("session-1", domain.ActionRelease, 1000) {
		t.Error("Different action should produce different hash")
	}
	if base == ComputeActionID("session-1", domain.ActionAcquire, 2000) {
		t.Error("Different signal time should produce different hash")
	}
}
