package projector

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/dexhub/tokenex/pkg/exchange"
)

// ErrorSlots holds one human-readable error message per domain ("order",
// "wallet", "transfer", ...). Messages auto-expire after the display window;
// this is presentation policy layered over the engine, not engine behavior.
type ErrorSlots struct {
	mu     sync.Mutex
	window time.Duration
	slots  map[string]slotEntry
}

type slotEntry struct {
	message string
	setAt   time.Time
}

func NewErrorSlots(window time.Duration) *ErrorSlots {
	return &ErrorSlots{window: window, slots: make(map[string]slotEntry)}
}

// Set records a message for the domain, restarting its expiry window.
func (s *ErrorSlots) Set(domain, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[domain] = slotEntry{message: message, setAt: time.Now()}
}

// SetError records the mapped message for err.
func (s *ErrorSlots) SetError(domain string, err error) {
	s.Set(domain, Message(err))
}

// Clear empties the domain's slot.
func (s *ErrorSlots) Clear(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, domain)
}

// Get returns the current message for the domain, if it has not expired.
func (s *ErrorSlots) Get(domain string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.slots[domain]
	if !ok {
		return "", false
	}
	if time.Since(e.setAt) > s.window {
		delete(s.slots, domain)
		return "", false
	}
	return e.message, true
}

// Message maps a fault to the specific message shown to the user. Unmapped
// errors (transport faults and the like) fall through to a retry hint.
func Message(err error) string {
	var (
		withdrawErr  *exchange.InsufficientBalanceToWithdrawError
		makeErr      *exchange.InsufficientBalanceToMakeOrderError
		fillErr      *exchange.InsufficientBalanceToFillOrderError
		makerErr     *exchange.InsufficientMakerBalanceError
		invalidOrder *exchange.InvalidOrderError
		unauthorized *exchange.UnauthorizedClientError
		filled       *exchange.OrderAlreadyFilledError
		cancelled    *exchange.OrderAlreadyCancelledError
		invalidTaker *exchange.InvalidTakerError
	)

	switch {
	case errors.As(err, &withdrawErr):
		return fmt.Sprintf("Your exchange balance is %s; you cannot withdraw %s.", withdrawErr.Balance, withdrawErr.Amount)
	case errors.As(err, &makeErr):
		return fmt.Sprintf("Your exchange balance is %s. Deposit at least %s more to place this order.",
			makeErr.Balance, new(big.Int).Sub(makeErr.Amount, makeErr.Balance))
	case errors.As(err, &fillErr):
		return fmt.Sprintf("Filling this order costs %s including the fee; your balance is %s.", fillErr.Amount, fillErr.Balance)
	case errors.As(err, &makerErr):
		return "The maker no longer has enough balance to honor this order."
	case errors.As(err, &invalidOrder):
		return fmt.Sprintf("Order #%d does not exist.", invalidOrder.ID)
	case errors.As(err, &unauthorized):
		return "Only the order's maker can cancel it."
	case errors.As(err, &filled):
		return fmt.Sprintf("Order #%d has already been filled.", filled.ID)
	case errors.As(err, &cancelled):
		return fmt.Sprintf("Order #%d has already been cancelled.", cancelled.ID)
	case errors.As(err, &invalidTaker):
		return "You cannot fill your own order."
	case errors.Is(err, exchange.ErrTransferFailed):
		return "The token transfer was rejected. Check your allowance and try again."
	default:
		return "The operation failed. Nothing was committed; please retry."
	}
}
