package feed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"solana-range-watch/internal/solana"
	"solana-range-watch/internal/solana/stub"
)

const floatTol = 1e-9

func vaultAddr(fill byte) string {
	return base58.Encode(bytes.Repeat([]byte{fill}, solana.PubkeyLen))
}

// vaultAccount builds an SPL token account holding the given raw amount.
func vaultAccount(amount uint64) *solana.AccountInfo {
	data := make([]byte, 165)
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return &solana.AccountInfo{
		Owner: solana.TokenProgramID,
		Data:  base64.StdEncoding.EncodeToString(data),
	}
}

func TestNewPollSource_Validation(t *testing.T) {
	rpc := stub.NewRPCClient()

	if _, err := NewPollSource(PollOptions{BaseVault: vaultAddr(1), QuoteVault: vaultAddr(2)}); err == nil {
		t.Error("expected error for missing RPC client")
	}
	if _, err := NewPollSource(PollOptions{RPC: rpc, BaseVault: "bogus", QuoteVault: vaultAddr(2)}); err == nil {
		t.Error("expected error for malformed base vault")
	}
	if _, err := NewPollSource(PollOptions{RPC: rpc, BaseVault: vaultAddr(1), QuoteVault: ""}); err == nil {
		t.Error("expected error for empty quote vault")
	}
}

func TestPollSource_EmitsTicks(t *testing.T) {
	baseVault := vaultAddr(1)
	quoteVault := vaultAddr(2)

	rpc := stub.NewRPCClient()
	rpc.SetAccount(baseVault, vaultAccount(1_000))
	rpc.SetAccount(quoteVault, vaultAccount(3_100_000))

	source, err := NewPollSource(PollOptions{
		RPC:        rpc,
		BaseVault:  baseVault,
		QuoteVault: quoteVault,
		Interval:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewPollSource: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticks, err := source.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case tick := <-ticks:
		if tick.Price != 3100.0 {
			t.Errorf("expected price 3100, got %v", tick.Price)
		}
		wantA := 1_000.0 / 3_101_000.0 * 100
		if math.Abs(tick.CompositionA-wantA) > floatTol {
			t.Errorf("expected composition A %v, got %v", wantA, tick.CompositionA)
		}
		if math.Abs(tick.CompositionA+tick.CompositionB-100) > floatTol {
			t.Errorf("composition does not sum to 100: %v + %v", tick.CompositionA, tick.CompositionB)
		}
		if tick.TimestampMs <= 0 {
			t.Errorf("timestamp not set: %d", tick.TimestampMs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for tick")
	}

	cancel()
	for range ticks {
		// Drain until the source closes the channel.
	}
}

func TestPollSource_SkipsFailedCycles(t *testing.T) {
	baseVault := vaultAddr(1)
	quoteVault := vaultAddr(2)

	rpc := stub.NewRPCClient()
	rpc.SetAccount(baseVault, vaultAccount(1_000))
	rpc.SetAccount(quoteVault, vaultAccount(2_000))
	rpc.SetError(errors.New("rpc unavailable"))

	source, err := NewPollSource(PollOptions{
		RPC:        rpc,
		BaseVault:  baseVault,
		QuoteVault: quoteVault,
		Interval:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewPollSource: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, err := source.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Let several cycles fail, then recover. The first tick observed must be
	// a valid one: failed cycles emit nothing.
	time.Sleep(50 * time.Millisecond)
	rpc.SetError(nil)

	select {
	case tick := <-ticks:
		if tick.Price != 2.0 {
			t.Errorf("expected price 2, got %v", tick.Price)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for recovery tick")
	}
}

func TestPollSource_SkipsMissingVault(t *testing.T) {
	baseVault := vaultAddr(1)
	quoteVault := vaultAddr(2)

	rpc := stub.NewRPCClient()
	rpc.SetAccount(baseVault, vaultAccount(1_000))
	// Quote vault intentionally absent.

	source, err := NewPollSource(PollOptions{
		RPC:        rpc,
		BaseVault:  baseVault,
		QuoteVault: quoteVault,
		Interval:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewPollSource: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, err := source.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	rpc.SetAccount(quoteVault, vaultAccount(4_000))

	select {
	case tick := <-ticks:
		if tick.Price != 4.0 {
			t.Errorf("expected price 4, got %v", tick.Price)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for tick after vault appeared")
	}
}

func TestMakeTick(t *testing.T) {
	tick, err := makeTick(60_000, 1_000, 3_100_000)
	if err != nil {
		t.Fatalf("makeTick: %v", err)
	}
	if tick.TimestampMs != 60_000 {
		t.Errorf("expected timestamp 60000, got %d", tick.TimestampMs)
	}
	if tick.Price != 3100.0 {
		t.Errorf("expected price 3100, got %v", tick.Price)
	}
	if math.Abs(tick.CompositionA+tick.CompositionB-100) > floatTol {
		t.Errorf("composition does not sum to 100")
	}

	if _, err := makeTick(60_000, 0, 1_000); err == nil {
		t.Error("expected error for empty base vault")
	}
	if _, err := makeTick(60_000, 1_000, 0); err == nil {
		t.Error("expected error for empty quote vault")
	}
}
