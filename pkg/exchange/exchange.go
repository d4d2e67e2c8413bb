// Package exchange implements the on-chain order book contract: a custodial
// balance ledger, an append-only order store with explicit lifecycle status,
// and the fee-bearing atomic settlement engine.
package exchange

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/dexhub/tokenex/pkg/chain"
)

// TokenCaller is the slice of the token contract interface the exchange needs.
// Deposit pulls via TransferFrom (allowance-gated); withdraw pushes via
// Transfer from the exchange's own holdings.
type TokenCaller interface {
	TransferFrom(tx *chain.Tx, caller, from, to common.Address, amount *big.Int) error
	Transfer(tx *chain.Tx, caller, to common.Address, amount *big.Int) error
}

// Exchange is the facade contract. Every mutation runs as one chain
// transaction: all preconditions are validated before the first state change,
// so a failing operation leaves no partial effect, and the host discards any
// events it had emitted.
//
// Mutations are serialized by the host, but reads arrive concurrently from
// HTTP handlers, so mu guards the ledger, the order store and the counters.
type Exchange struct {
	host    *chain.Chain
	address common.Address
	logger  *zap.Logger

	mu            sync.RWMutex
	owner         common.Address
	feeAccount    common.Address
	feePercentage uint64 // integer percent, immutable post-deploy

	ledger     *Ledger
	orders     map[uint64]*Order
	statuses   map[uint64]OrderStatus
	orderCount uint64 // last allocated id; ids are 1-based and never reused

	tokens map[common.Address]TokenCaller
}

// New deploys the exchange on the given host chain.
func New(host *chain.Chain, owner, feeAccount common.Address, feePercentage uint64, logger *zap.Logger) *Exchange {
	return &Exchange{
		host:          host,
		address:       common.BytesToAddress(crypto.Keccak256([]byte("contract:exchange"))[:20]),
		logger:        logger,
		owner:         owner,
		feeAccount:    feeAccount,
		feePercentage: feePercentage,
		ledger:        NewLedger(),
		orders:        make(map[uint64]*Order),
		statuses:      make(map[uint64]OrderStatus),
		tokens:        make(map[common.Address]TokenCaller),
	}
}

// RegisterToken makes a token contract callable by address.
func (x *Exchange) RegisterToken(addr common.Address, t TokenCaller) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.tokens[addr] = t
}

func (x *Exchange) Address() common.Address  { return x.address }
func (x *Exchange) Owner() common.Address    { return x.owner }
func (x *Exchange) GetFeePercentage() uint64 { return x.feePercentage }

func (x *Exchange) GetFeeAccount() common.Address {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.feeAccount
}

// SetFeeAccount redirects fee credits. Owner only.
func (x *Exchange) SetFeeAccount(caller, account common.Address) error {
	if caller != x.owner {
		return &UnauthorizedClientError{Caller: caller}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.feeAccount = account
	return nil
}

// BalanceOf returns the user's custodial balance for token.
func (x *Exchange) BalanceOf(token, user common.Address) *big.Int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ledger.BalanceOf(token, user)
}

// GetOrderCount returns the last allocated order id. Callers use it to learn
// the id of the order they just made, since creation does not return a value
// in the transactional model.
func (x *Exchange) GetOrderCount() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.orderCount
}

// Order returns a copy of the order record, if it exists.
func (x *Exchange) Order(id uint64) (*Order, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	o, ok := x.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Status returns the derived lifecycle status for an existing order id.
func (x *Exchange) Status(id uint64) (OrderStatus, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	s, ok := x.statuses[id]
	return s, ok
}

// Deposit pulls amount of token from user (requires prior allowance) and
// credits the user's exchange balance.
func (x *Exchange) Deposit(user, token common.Address, amount *big.Int) ([]chain.Log, error) {
	logs, err := x.host.Submit(func(tx *chain.Tx) error {
		return x.deposit(tx, user, token, amount)
	})
	if err == nil {
		x.logger.Info("deposit",
			zap.String("user", user.Hex()), zap.String("token", token.Hex()), zap.String("amount", amount.String()))
	}
	return logs, err
}

func (x *Exchange) deposit(tx *chain.Tx, user, token common.Address, amount *big.Int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	t, ok := x.tokens[token]
	if !ok {
		return fmt.Errorf("%w: unknown token %s", ErrTransferFailed, token.Hex())
	}
	if err := t.TransferFrom(tx, x.address, user, x.address, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	newBal := x.ledger.Credit(token, user, amount)
	tx.Emit(DepositEvent{Token: token, User: user, Amount: new(big.Int).Set(amount), Balance: newBal})
	return nil
}

// Withdraw debits the user's exchange balance and pushes tokens back out.
// The debit precedes the outbound transfer; if the transfer fails the debit is
// restored, so a failed withdrawal has no effect.
func (x *Exchange) Withdraw(user, token common.Address, amount *big.Int) ([]chain.Log, error) {
	logs, err := x.host.Submit(func(tx *chain.Tx) error {
		return x.withdraw(tx, user, token, amount)
	})
	if err == nil {
		x.logger.Info("withdraw",
			zap.String("user", user.Hex()), zap.String("token", token.Hex()), zap.String("amount", amount.String()))
	}
	return logs, err
}

func (x *Exchange) withdraw(tx *chain.Tx, user, token common.Address, amount *big.Int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	balance := x.ledger.BalanceOf(token, user)
	if balance.Cmp(amount) < 0 {
		return &InsufficientBalanceToWithdrawError{Balance: balance, Amount: new(big.Int).Set(amount)}
	}
	t, ok := x.tokens[token]
	if !ok {
		return fmt.Errorf("%w: unknown token %s", ErrTransferFailed, token.Hex())
	}
	newBal, err := x.ledger.Debit(token, user, amount)
	if err != nil {
		return err
	}
	if err := t.Transfer(tx, x.address, user, amount); err != nil {
		x.ledger.Credit(token, user, amount)
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	tx.Emit(WithdrawEvent{Token: token, User: user, Amount: new(big.Int).Set(amount), Balance: newBal})
	return nil
}

// MakeOrder records a new order. The maker's tokenGive balance is checked at
// creation time only; nothing is escrowed, so the same balance can back
// several open orders. Fillability is re-validated at fill time.
func (x *Exchange) MakeOrder(maker, tokenGet common.Address, amountGet *big.Int, tokenGive common.Address, amountGive *big.Int) ([]chain.Log, error) {
	logs, err := x.host.Submit(func(tx *chain.Tx) error {
		return x.makeOrder(tx, maker, tokenGet, amountGet, tokenGive, amountGive)
	})
	if err == nil {
		x.logger.Info("make_order", zap.Uint64("id", x.GetOrderCount()), zap.String("maker", maker.Hex()))
	}
	return logs, err
}

func (x *Exchange) makeOrder(tx *chain.Tx, maker, tokenGet common.Address, amountGet *big.Int, tokenGive common.Address, amountGive *big.Int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	balance := x.ledger.BalanceOf(tokenGive, maker)
	if balance.Cmp(amountGive) < 0 {
		return &InsufficientBalanceToMakeOrderError{Balance: balance, Amount: new(big.Int).Set(amountGive)}
	}

	x.orderCount++
	order := &Order{
		ID:         x.orderCount,
		Maker:      maker,
		TokenGet:   tokenGet,
		AmountGet:  new(big.Int).Set(amountGet),
		TokenGive:  tokenGive,
		AmountGive: new(big.Int).Set(amountGive),
		CreatedAt:  tx.Timestamp(),
	}
	x.orders[order.ID] = order
	x.statuses[order.ID] = OrderOpen

	tx.Emit(MakeOrderEvent{
		ID:         order.ID,
		Maker:      order.Maker,
		TokenGet:   order.TokenGet,
		AmountGet:  new(big.Int).Set(order.AmountGet),
		TokenGive:  order.TokenGive,
		AmountGive: new(big.Int).Set(order.AmountGive),
		CreatedAt:  order.CreatedAt,
	})
	return nil
}

// CancelOrder marks an open order cancelled. Maker only, no balance effect.
func (x *Exchange) CancelOrder(caller common.Address, id uint64) ([]chain.Log, error) {
	logs, err := x.host.Submit(func(tx *chain.Tx) error {
		return x.cancelOrder(tx, caller, id)
	})
	if err == nil {
		x.logger.Info("cancel_order", zap.Uint64("id", id), zap.String("caller", caller.Hex()))
	}
	return logs, err
}

func (x *Exchange) cancelOrder(tx *chain.Tx, caller common.Address, id uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	order, ok := x.orders[id]
	if !ok {
		return &InvalidOrderError{ID: id}
	}
	if caller != order.Maker {
		return &UnauthorizedClientError{Caller: caller}
	}
	switch x.statuses[id] {
	case OrderFilled:
		return &OrderAlreadyFilledError{ID: id}
	case OrderCancelled:
		return &OrderAlreadyCancelledError{ID: id}
	}

	x.statuses[id] = OrderCancelled
	tx.Emit(CancelOrderEvent{
		ID:          order.ID,
		Maker:       order.Maker,
		TokenGet:    order.TokenGet,
		AmountGet:   new(big.Int).Set(order.AmountGet),
		TokenGive:   order.TokenGive,
		AmountGive:  new(big.Int).Set(order.AmountGive),
		CreatedAt:   order.CreatedAt,
		CancelledAt: tx.Timestamp(),
	})
	return nil
}

// FillOrder settles an open order between its maker and the taker, applying
// the taker fee. See settle.go.
func (x *Exchange) FillOrder(taker common.Address, id uint64) ([]chain.Log, error) {
	logs, err := x.host.Submit(func(tx *chain.Tx) error {
		return x.fillOrder(tx, taker, id)
	})
	if err == nil {
		x.logger.Info("fill_order", zap.Uint64("id", id), zap.String("taker", taker.Hex()))
	}
	return logs, err
}
