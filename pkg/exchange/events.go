package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event names as they appear in the chain event log.
const (
	EvDeposit     = "Deposit"
	EvWithdraw    = "Withdraw"
	EvMakeOrder   = "MakeOrder"
	EvCancelOrder = "CancelOrder"
	EvFillOrder   = "FillOrder"
)

// DepositEvent is emitted after a successful deposit. Balance is the user's
// new exchange balance for Token.
type DepositEvent struct {
	Token   common.Address
	User    common.Address
	Amount  *big.Int
	Balance *big.Int
}

func (DepositEvent) Name() string { return EvDeposit }

// WithdrawEvent mirrors DepositEvent for withdrawals.
type WithdrawEvent struct {
	Token   common.Address
	User    common.Address
	Amount  *big.Int
	Balance *big.Int
}

func (WithdrawEvent) Name() string { return EvWithdraw }

// MakeOrderEvent carries the full order payload.
type MakeOrderEvent struct {
	ID         uint64
	Maker      common.Address
	TokenGet   common.Address
	AmountGet  *big.Int
	TokenGive  common.Address
	AmountGive *big.Int
	CreatedAt  int64
}

func (MakeOrderEvent) Name() string { return EvMakeOrder }

// CancelOrderEvent carries the full order payload plus the cancel timestamp,
// so a consumer that missed the MakeOrder event can still reconstruct the order.
type CancelOrderEvent struct {
	ID          uint64
	Maker       common.Address
	TokenGet    common.Address
	AmountGet   *big.Int
	TokenGive   common.Address
	AmountGive  *big.Int
	CreatedAt   int64
	CancelledAt int64
}

func (CancelOrderEvent) Name() string { return EvCancelOrder }

// FillOrderEvent carries the full order payload plus the taker and fill
// timestamp, for the same reason as CancelOrderEvent.
type FillOrderEvent struct {
	ID         uint64
	Maker      common.Address
	Taker      common.Address
	TokenGet   common.Address
	AmountGet  *big.Int
	TokenGive  common.Address
	AmountGive *big.Int
	CreatedAt  int64
	FilledAt   int64
}

func (FillOrderEvent) Name() string { return EvFillOrder }
