package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexhub/tokenex/pkg/chain"
)

var hundred = big.NewInt(100)

// Fee computes the taker fee for a given amountGet: amountGet × feePercentage
// / 100, floored. A small amountGet can floor to zero fee; that is the
// intended integer semantics, not a rounding defect.
func (x *Exchange) Fee(amountGet *big.Int) *big.Int {
	fee := new(big.Int).Mul(amountGet, new(big.Int).SetUint64(x.feePercentage))
	return fee.Div(fee, hundred)
}

// fillOrder validates and settles a fill. The six balance mutations form one
// atomic unit: every precondition, including the maker's tokenGive coverage,
// is checked before the first mutation, so the mutation sequence cannot fail
// part-way.
//
// Settlement moves:
//
//	taker  -(amountGet+fee) tokenGet   maker +amountGet tokenGet
//	fee account +fee tokenGet
//	maker  -amountGive tokenGive       taker +amountGive tokenGive
func (x *Exchange) fillOrder(tx *chain.Tx, taker common.Address, id uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	order, ok := x.orders[id]
	if !ok {
		return &InvalidOrderError{ID: id}
	}
	switch x.statuses[id] {
	case OrderFilled:
		return &OrderAlreadyFilledError{ID: id}
	case OrderCancelled:
		return &OrderAlreadyCancelledError{ID: id}
	}
	if taker == order.Maker {
		return &InvalidTakerError{Taker: taker}
	}

	fee := x.Fee(order.AmountGet)
	totalTakerDebit := new(big.Int).Add(order.AmountGet, fee)

	takerBalance := x.ledger.BalanceOf(order.TokenGet, taker)
	if takerBalance.Cmp(totalTakerDebit) < 0 {
		return &InsufficientBalanceToFillOrderError{Balance: takerBalance, Amount: totalTakerDebit}
	}

	// The make-time balance check is not an escrow: the maker may have spent
	// tokenGive since. Surface the shortfall as a named fault.
	makerBalance := x.ledger.BalanceOf(order.TokenGive, order.Maker)
	if makerBalance.Cmp(order.AmountGive) < 0 {
		return &InsufficientMakerBalanceError{Maker: order.Maker, Balance: makerBalance, Amount: new(big.Int).Set(order.AmountGive)}
	}

	if _, err := x.ledger.Debit(order.TokenGet, taker, totalTakerDebit); err != nil {
		return err
	}
	x.ledger.Credit(order.TokenGet, order.Maker, order.AmountGet)
	x.ledger.Credit(order.TokenGet, x.feeAccount, fee)
	if _, err := x.ledger.Debit(order.TokenGive, order.Maker, order.AmountGive); err != nil {
		return err
	}
	x.ledger.Credit(order.TokenGive, taker, order.AmountGive)

	x.statuses[id] = OrderFilled
	tx.Emit(FillOrderEvent{
		ID:         order.ID,
		Maker:      order.Maker,
		Taker:      taker,
		TokenGet:   order.TokenGet,
		AmountGet:  new(big.Int).Set(order.AmountGet),
		TokenGive:  order.TokenGive,
		AmountGive: new(big.Int).Set(order.AmountGive),
		CreatedAt:  order.CreatedAt,
		FilledAt:   tx.Timestamp(),
	})
	return nil
}
