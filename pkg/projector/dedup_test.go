package projector

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexhub/tokenex/pkg/exchange"
)

func TestSeenCacheWindow(t *testing.T) {
	c := newSeenCache(time.Minute, 16)
	h := common.BytesToHash([]byte{1})
	now := time.Unix(1_700_000_000, 0)

	if c.Seen(h, now) {
		t.Error("fresh hash reported as seen")
	}
	if !c.Seen(h, now.Add(30*time.Second)) {
		t.Error("hash inside window not deduplicated")
	}
	// Past the window the hash counts as new again.
	if c.Seen(h, now.Add(2*time.Minute)) {
		t.Error("expired hash still deduplicated")
	}
}

func TestSeenCacheEvictsOverCap(t *testing.T) {
	c := newSeenCache(time.Hour, 4)
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 10; i++ {
		c.Seen(common.BytesToHash([]byte{byte(i)}), now.Add(time.Duration(i)*time.Second))
	}
	if c.Len() > 4 {
		t.Errorf("cache grew past cap: %d entries", c.Len())
	}
	// The newest entry survives eviction.
	if !c.Seen(common.BytesToHash([]byte{9}), now.Add(10*time.Second)) {
		t.Error("newest entry was evicted")
	}
}

func TestBackfillStartBlock(t *testing.T) {
	tests := []struct {
		name   string
		policy BackfillPolicy
		head   uint64
		want   uint64
	}{
		{"ephemeral window", BackfillPolicy{Ephemeral: true, Window: 2000}, 5000, 3000},
		{"ephemeral short chain", BackfillPolicy{Ephemeral: true, Window: 2000}, 1500, 0},
		{"persistent deployment block", BackfillPolicy{DeploymentBlock: 1234}, 5000, 1234},
	}
	for _, tt := range tests {
		if got := tt.policy.startBlock(tt.head); got != tt.want {
			t.Errorf("%s: startBlock(%d) = %d, want %d", tt.name, tt.head, got, tt.want)
		}
	}
}

func TestErrorSlots(t *testing.T) {
	s := NewErrorSlots(time.Hour)

	if _, ok := s.Get("order"); ok {
		t.Error("empty slot returned a message")
	}
	s.Set("order", "boom")
	if msg, ok := s.Get("order"); !ok || msg != "boom" {
		t.Errorf("slot: got %q/%v", msg, ok)
	}
	// Domains are independent.
	if _, ok := s.Get("wallet"); ok {
		t.Error("unrelated domain shares a slot")
	}
	s.Clear("order")
	if _, ok := s.Get("order"); ok {
		t.Error("cleared slot still set")
	}
}

func TestErrorSlotExpiry(t *testing.T) {
	s := NewErrorSlots(time.Millisecond)
	s.Set("order", "boom")
	time.Sleep(5 * time.Millisecond)
	if _, ok := s.Get("order"); ok {
		t.Error("message survived past the window")
	}
}

func TestMessageMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string // substring
	}{
		{&exchange.InsufficientBalanceToWithdrawError{Balance: big.NewInt(5), Amount: big.NewInt(9)}, "cannot withdraw 9"},
		{&exchange.InsufficientBalanceToMakeOrderError{Balance: big.NewInt(5), Amount: big.NewInt(9)}, "at least 4 more"},
		{&exchange.InsufficientBalanceToFillOrderError{Balance: big.NewInt(5), Amount: big.NewInt(11)}, "including the fee"},
		{&exchange.InsufficientMakerBalanceError{Balance: big.NewInt(0), Amount: big.NewInt(1)}, "maker no longer"},
		{&exchange.InvalidOrderError{ID: 7}, "Order #7 does not exist"},
		{&exchange.UnauthorizedClientError{}, "maker can cancel"},
		{&exchange.OrderAlreadyFilledError{ID: 7}, "already been filled"},
		{&exchange.OrderAlreadyCancelledError{ID: 7}, "already been cancelled"},
		{&exchange.InvalidTakerError{}, "your own order"},
		{fmt.Errorf("%w: no allowance", exchange.ErrTransferFailed), "allowance"},
		{errors.New("weird"), "please retry"},
	}
	for _, tt := range tests {
		if got := Message(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("Message(%v) = %q, want substring %q", tt.err, got, tt.want)
		}
	}
}
