package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PubkeyLen is the length of a raw Solana public key in bytes.
const PubkeyLen = 32

// TokenProgramID is the SPL token program that owns vault token accounts.
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// DecodeAddress decodes a base58 address and checks its length.
func DecodeAddress(addr string) ([]byte, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty address")
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", addr, err)
	}
	if len(raw) != PubkeyLen {
		return nil, fmt.Errorf("address %q: expected %d bytes, got %d", addr, PubkeyLen, len(raw))
	}
	return raw, nil
}

// ValidateAddress checks that addr is a well-formed base58 Solana address.
// Vault and pool accounts may be program-derived, so there is no curve check.
func ValidateAddress(addr string) error {
	_, err := DecodeAddress(addr)
	return err
}

// ValidateWalletAddress checks that addr is a well-formed address whose point
// lies on the ed25519 curve. Wallets are keypair accounts; program-derived
// addresses are off-curve by construction and fail this check.
func ValidateWalletAddress(addr string) error {
	raw, err := DecodeAddress(addr)
	if err != nil {
		return err
	}
	if !IsOnCurve(raw) {
		return fmt.Errorf("address %q is off-curve, not a wallet key", addr)
	}
	return nil
}

// IsOnCurve reports whether the 32-byte encoding decodes to an ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != PubkeyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
