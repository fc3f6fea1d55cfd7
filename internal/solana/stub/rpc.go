package stub

import (
	"context"
	"sync"

	"solana-range-watch/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. Accounts are served from
// an in-memory map; a configured error fails every call, which lets tests
// exercise skipped poll cycles.
type RPCClient struct {
	mu       sync.Mutex
	accounts map[string]*solana.AccountInfo
	slot     int64
	err      error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		accounts: make(map[string]*solana.AccountInfo),
	}
}

// SetAccount adds or replaces an account in the stub store.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[pubkey] = info
}

// SetSlot sets the slot returned by GetSlot.
func (c *RPCClient) SetSlot(slot int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = slot
}

// SetError makes every subsequent call fail with err; nil restores normal
// operation.
func (c *RPCClient) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// GetAccountInfo retrieves an account from the stub store. Missing accounts
// yield nil, matching the HTTP client.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	return c.accounts[pubkey], nil
}

// GetMultipleAccounts retrieves accounts positionally from the stub store.
func (c *RPCClient) GetMultipleAccounts(_ context.Context, pubkeys []string) ([]*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	infos := make([]*solana.AccountInfo, len(pubkeys))
	for i, pk := range pubkeys {
		infos[i] = c.accounts[pk]
	}
	return infos, nil
}

// GetSlot retrieves the configured slot.
func (c *RPCClient) GetSlot(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return 0, c.err
	}
	return c.slot, nil
}

var _ solana.RPCClient = (*RPCClient)(nil)
