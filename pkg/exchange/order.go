package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderStatus is the lifecycle state of an order.
// Open is the only non-terminal state: Open → Filled or Open → Cancelled,
// never both, never back.
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderFilled
	OrderCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Order is immutable once created. The maker offers AmountGive of TokenGive in
// exchange for AmountGet of TokenGet. Status is tracked separately per id so
// the order record itself never mutates.
type Order struct {
	ID         uint64
	Maker      common.Address
	TokenGet   common.Address
	AmountGet  *big.Int
	TokenGive  common.Address
	AmountGive *big.Int
	CreatedAt  int64 // block timestamp, unix seconds
}

// Clone returns a deep copy so callers cannot alias the stored amounts.
func (o *Order) Clone() *Order {
	c := *o
	c.AmountGet = new(big.Int).Set(o.AmountGet)
	c.AmountGive = new(big.Int).Set(o.AmountGive)
	return &c
}
