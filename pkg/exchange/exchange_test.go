package exchange_test

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dexhub/tokenex/pkg/chain"
	"github.com/dexhub/tokenex/pkg/exchange"
	"github.com/dexhub/tokenex/pkg/token"
	"github.com/dexhub/tokenex/pkg/util"
)

var (
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	feeAccount = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type rig struct {
	clock  *util.FakeClock
	host   *chain.Chain
	exch   *exchange.Exchange
	tokenA *token.Token
	tokenB *token.Token
}

func newRig(t *testing.T) *rig {
	t.Helper()
	clock := &util.FakeClock{Current: time.Unix(1_700_000_000, 0)}
	host := chain.New(31337, zap.NewNop(), chain.WithClock(clock))
	exch := exchange.New(host, owner, feeAccount, 10, zap.NewNop())

	tokenA := token.New("Token A", "TKA", owner, owner, big.NewInt(0), big.NewInt(500))
	tokenB := token.New("Token B", "TKB", owner, owner, big.NewInt(0), big.NewInt(500))
	exch.RegisterToken(tokenA.Address(), tokenA)
	exch.RegisterToken(tokenB.Address(), tokenB)

	return &rig{clock: clock, host: host, exch: exch, tokenA: tokenA, tokenB: tokenB}
}

// fund mints tokens straight into a user's wallet.
func (r *rig) fund(t *testing.T, tok *token.Token, user common.Address, amount int64) {
	t.Helper()
	_, err := r.host.Submit(func(tx *chain.Tx) error {
		return tok.Mint(tx, owner, user, big.NewInt(amount))
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
}

// deposit funds the user's wallet, approves the exchange and deposits.
func (r *rig) deposit(t *testing.T, tok *token.Token, user common.Address, amount int64) {
	t.Helper()
	r.fund(t, tok, user, amount)
	_, err := r.host.Submit(func(tx *chain.Tx) error {
		return tok.Approve(tx, user, r.exch.Address(), big.NewInt(amount))
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := r.exch.Deposit(user, tok.Address(), big.NewInt(amount)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func wantBalance(t *testing.T, r *rig, tok *token.Token, user common.Address, want int64) {
	t.Helper()
	got := r.exch.BalanceOf(tok.Address(), user)
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Errorf("exchange balance of %s: got %s, want %d", user.Hex(), got, want)
	}
}

func TestDepositCreditsExchangeBalance(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenA, alice, 100)

	wantBalance(t, r, r.tokenA, alice, 100)
	if got := r.tokenA.BalanceOf(alice); got.Sign() != 0 {
		t.Errorf("wallet balance after deposit: got %s, want 0", got)
	}
	if got := r.tokenA.BalanceOf(r.exch.Address()); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("exchange wallet holdings: got %s, want 100", got)
	}
}

func TestDepositWithoutAllowanceFails(t *testing.T) {
	r := newRig(t)
	r.fund(t, r.tokenA, alice, 100)

	_, err := r.exch.Deposit(alice, r.tokenA.Address(), big.NewInt(100))
	if !errors.Is(err, exchange.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	wantBalance(t, r, r.tokenA, alice, 0)
	if got := r.tokenA.BalanceOf(alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("wallet balance after failed deposit: got %s, want 100", got)
	}
	if logs := r.host.FilterLogs(exchange.EvDeposit, 0, r.host.Head()); len(logs) != 0 {
		t.Errorf("failed deposit emitted %d logs", len(logs))
	}
}

func TestDepositUnknownTokenFails(t *testing.T) {
	r := newRig(t)
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	_, err := r.exch.Deposit(alice, stranger, big.NewInt(1))
	if !errors.Is(err, exchange.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
}

func TestWithdrawRoundTrip(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenA, alice, 100)

	if _, err := r.exch.Withdraw(alice, r.tokenA.Address(), big.NewInt(60)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	wantBalance(t, r, r.tokenA, alice, 40)
	if got := r.tokenA.BalanceOf(alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Errorf("wallet balance after withdraw: got %s, want 60", got)
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenA, alice, 50)

	_, err := r.exch.Withdraw(alice, r.tokenA.Address(), big.NewInt(80))
	var fault *exchange.InsufficientBalanceToWithdrawError
	if !errors.As(err, &fault) {
		t.Fatalf("expected InsufficientBalanceToWithdrawError, got %v", err)
	}
	if fault.Balance.Cmp(big.NewInt(50)) != 0 || fault.Amount.Cmp(big.NewInt(80)) != 0 {
		t.Errorf("fault arguments: balance=%s amount=%s, want 50/80", fault.Balance, fault.Amount)
	}
	wantBalance(t, r, r.tokenA, alice, 50)
}

func TestWithdrawTransferFailureRestoresBalance(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenA, alice, 100)
	r.tokenA.SetFailTransfers(true)

	_, err := r.exch.Withdraw(alice, r.tokenA.Address(), big.NewInt(100))
	if !errors.Is(err, exchange.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	// The debit-then-transfer sequence must leave no trace on failure.
	wantBalance(t, r, r.tokenA, alice, 100)
	if logs := r.host.FilterLogs(exchange.EvWithdraw, 0, r.host.Head()); len(logs) != 0 {
		t.Errorf("failed withdraw emitted %d logs", len(logs))
	}
}

func TestMakeOrderAssignsSequentialIDs(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenB, alice, 100)

	for want := uint64(1); want <= 3; want++ {
		logs, err := r.exch.MakeOrder(alice, r.tokenA.Address(), big.NewInt(10), r.tokenB.Address(), big.NewInt(10))
		if err != nil {
			t.Fatalf("make order %d: %v", want, err)
		}
		ev, ok := logs[0].Event.(exchange.MakeOrderEvent)
		if !ok {
			t.Fatalf("expected MakeOrderEvent, got %T", logs[0].Event)
		}
		if ev.ID != want {
			t.Errorf("order id: got %d, want %d", ev.ID, want)
		}
	}
	if got := r.exch.GetOrderCount(); got != 3 {
		t.Errorf("order count: got %d, want 3", got)
	}
}

func TestMakeOrderRequiresBalance(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenB, alice, 5)

	_, err := r.exch.MakeOrder(alice, r.tokenA.Address(), big.NewInt(10), r.tokenB.Address(), big.NewInt(10))
	var fault *exchange.InsufficientBalanceToMakeOrderError
	if !errors.As(err, &fault) {
		t.Fatalf("expected InsufficientBalanceToMakeOrderError, got %v", err)
	}
	if got := r.exch.GetOrderCount(); got != 0 {
		t.Errorf("rejected order consumed an id: count=%d", got)
	}
}

// The make-time balance check is point-in-time only: one balance can back
// multiple open orders.
func TestMakeOrderDoesNotEscrow(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenB, alice, 10)

	for i := 0; i < 3; i++ {
		if _, err := r.exch.MakeOrder(alice, r.tokenA.Address(), big.NewInt(10), r.tokenB.Address(), big.NewInt(10)); err != nil {
			t.Fatalf("make order %d: %v", i+1, err)
		}
	}
	wantBalance(t, r, r.tokenB, alice, 10)
}

func TestCancelOrder(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenB, alice, 10)
	if _, err := r.exch.MakeOrder(alice, r.tokenA.Address(), big.NewInt(10), r.tokenB.Address(), big.NewInt(10)); err != nil {
		t.Fatalf("make order: %v", err)
	}

	if _, err := r.exch.CancelOrder(alice, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if status, _ := r.exch.Status(1); status != exchange.OrderCancelled {
		t.Errorf("status after cancel: got %v", status)
	}
	// Cancelling has no balance effect.
	wantBalance(t, r, r.tokenB, alice, 10)
}

func TestCancelOrderFaults(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenB, alice, 10)
	if _, err := r.exch.MakeOrder(alice, r.tokenA.Address(), big.NewInt(10), r.tokenB.Address(), big.NewInt(10)); err != nil {
		t.Fatalf("make order: %v", err)
	}

	// Only the maker may cancel.
	_, err := r.exch.CancelOrder(bob, 1)
	var unauth *exchange.UnauthorizedClientError
	if !errors.As(err, &unauth) {
		t.Fatalf("expected UnauthorizedClientError, got %v", err)
	}
	if unauth.Caller != bob {
		t.Errorf("fault caller: got %s, want %s", unauth.Caller.Hex(), bob.Hex())
	}

	// Unknown ids are rejected.
	_, err = r.exch.CancelOrder(alice, 99)
	var invalid *exchange.InvalidOrderError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidOrderError, got %v", err)
	}

	// Cancel is not idempotent: the second attempt is a state conflict.
	if _, err := r.exch.CancelOrder(alice, 1); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	_, err = r.exch.CancelOrder(alice, 1)
	var already *exchange.OrderAlreadyCancelledError
	if !errors.As(err, &already) {
		t.Fatalf("expected OrderAlreadyCancelledError, got %v", err)
	}
}

func TestSetFeeAccountOwnerOnly(t *testing.T) {
	r := newRig(t)

	if err := r.exch.SetFeeAccount(alice, alice); err == nil {
		t.Fatal("non-owner changed the fee account")
	}
	if err := r.exch.SetFeeAccount(owner, alice); err != nil {
		t.Fatalf("owner change rejected: %v", err)
	}
	if got := r.exch.GetFeeAccount(); got != alice {
		t.Errorf("fee account: got %s, want %s", got.Hex(), alice.Hex())
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenB, alice, 100)
	if _, err := r.exch.MakeOrder(alice, r.tokenA.Address(), big.NewInt(10), r.tokenB.Address(), big.NewInt(20)); err != nil {
		t.Fatalf("make order: %v", err)
	}
	if _, err := r.exch.CancelOrder(alice, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	snap := r.exch.Snapshot()

	fresh := exchange.New(r.host, owner, feeAccount, 10, zap.NewNop())
	fresh.Restore(snap)

	if got := fresh.GetOrderCount(); got != 1 {
		t.Fatalf("restored order count: got %d, want 1", got)
	}
	order, ok := fresh.Order(1)
	if !ok || order.AmountGive.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("restored order mismatch: %+v", order)
	}
	if status, _ := fresh.Status(1); status != exchange.OrderCancelled {
		t.Errorf("restored status: got %v", status)
	}
	if got := fresh.BalanceOf(r.tokenB.Address(), alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("restored balance: got %s, want 100", got)
	}
}

// Getters are hit by HTTP handlers while submits mutate state; run both
// concurrently so the race detector has something to bite on.
func TestConcurrentReadsDuringSubmits(t *testing.T) {
	r := newRig(t)
	r.deposit(t, r.tokenB, alice, 1_000_000)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				r.exch.BalanceOf(r.tokenB.Address(), alice)
				if id := r.exch.GetOrderCount(); id > 0 {
					r.exch.Order(id)
					r.exch.Status(id)
				}
				r.exch.Snapshot()
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if _, err := r.exch.MakeOrder(alice, r.tokenA.Address(), big.NewInt(10), r.tokenB.Address(), big.NewInt(20)); err != nil {
			t.Fatalf("make order %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	if got := r.exch.GetOrderCount(); got != 200 {
		t.Errorf("order count: got %d, want 200", got)
	}
}
