package exchange

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Fault taxonomy: validation, authorization and state-conflict errors carry the
// structured arguments the reference client needs for precise user messaging.
// Transport failures are wrapped with %w and stay distinguishable via errors.As.

// ErrTransferFailed wraps a failed token transfer during deposit/withdraw.
var ErrTransferFailed = errors.New("token transfer failed")

// InsufficientBalanceToWithdrawError is returned when a withdrawal exceeds the
// user's exchange balance. No partial debit is applied.
type InsufficientBalanceToWithdrawError struct {
	Balance *big.Int
	Amount  *big.Int
}

func (e *InsufficientBalanceToWithdrawError) Error() string {
	return fmt.Sprintf("insufficient balance to withdraw: balance=%s amount=%s", e.Balance, e.Amount)
}

// InsufficientBalanceToMakeOrderError is returned when the maker's tokenGive
// balance is below amountGive at order creation time. This is a point-in-time
// check, not an escrow: the balance can still be spent before fill.
type InsufficientBalanceToMakeOrderError struct {
	Balance *big.Int
	Amount  *big.Int
}

func (e *InsufficientBalanceToMakeOrderError) Error() string {
	return fmt.Sprintf("insufficient balance to make order: balance=%s amount=%s", e.Balance, e.Amount)
}

// InsufficientBalanceToFillOrderError is returned when the taker cannot cover
// amountGet plus the taker fee.
type InsufficientBalanceToFillOrderError struct {
	Balance *big.Int
	Amount  *big.Int // amountGet + fee
}

func (e *InsufficientBalanceToFillOrderError) Error() string {
	return fmt.Sprintf("insufficient balance to fill order: balance=%s amount=%s", e.Balance, e.Amount)
}

// InsufficientMakerBalanceError is returned when the maker's tokenGive balance
// no longer covers amountGive at fill time. The no-escrow make design allows a
// maker to oversell; the shortfall surfaces here as a named fault instead of an
// arithmetic underflow.
type InsufficientMakerBalanceError struct {
	Maker   common.Address
	Balance *big.Int
	Amount  *big.Int
}

func (e *InsufficientMakerBalanceError) Error() string {
	return fmt.Sprintf("insufficient maker balance: maker=%s balance=%s amount=%s", e.Maker.Hex(), e.Balance, e.Amount)
}

// InvalidOrderError is returned for an order id that was never created.
type InvalidOrderError struct {
	ID uint64
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: id=%d", e.ID)
}

// UnauthorizedClientError is returned when the caller is not the order's maker.
type UnauthorizedClientError struct {
	Caller common.Address
}

func (e *UnauthorizedClientError) Error() string {
	return fmt.Sprintf("unauthorized client: %s", e.Caller.Hex())
}

// OrderAlreadyFilledError is returned for fill/cancel attempts on a filled order.
type OrderAlreadyFilledError struct {
	ID uint64
}

func (e *OrderAlreadyFilledError) Error() string {
	return fmt.Sprintf("order already filled: id=%d", e.ID)
}

// OrderAlreadyCancelledError is returned for fill/cancel attempts on a cancelled order.
type OrderAlreadyCancelledError struct {
	ID uint64
}

func (e *OrderAlreadyCancelledError) Error() string {
	return fmt.Sprintf("order already cancelled: id=%d", e.ID)
}

// InvalidTakerError is returned when the taker is the order's maker.
type InvalidTakerError struct {
	Taker common.Address
}

func (e *InvalidTakerError) Error() string {
	return fmt.Sprintf("invalid taker: %s", e.Taker.Hex())
}
