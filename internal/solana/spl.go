package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// TokenAccountMinLen is the minimum data length of an SPL token account.
// Layout prefix: mint (32 bytes), owner (32 bytes), amount (u64 LE, offset 64).
const TokenAccountMinLen = 72

// TokenAccount is the prefix of the SPL token-account layout the watcher
// reads. Amount is in raw token units; decimal conversion is out of scope.
type TokenAccount struct {
	Mint   string // base58
	Owner  string // base58
	Amount uint64
}

// ParseTokenAccount decodes the base64 data of an SPL token account.
func ParseTokenAccount(data string) (*TokenAccount, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	if len(raw) < TokenAccountMinLen {
		return nil, fmt.Errorf("token account data too short: %d bytes", len(raw))
	}

	return &TokenAccount{
		Mint:   base58.Encode(raw[0:32]),
		Owner:  base58.Encode(raw[32:64]),
		Amount: binary.LittleEndian.Uint64(raw[64:72]),
	}, nil
}
