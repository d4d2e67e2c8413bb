package projector

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexhub/tokenex/pkg/exchange"
)

// Side of an order relative to the current market pair.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Market is the trading pair the derived views are computed against. Side is
// determined by which of the pair's tokens an order gives away: giving quote
// buys base, giving base sells it.
type Market struct {
	Base  common.Address
	Quote common.Address
}

func (m Market) contains(addr common.Address) bool {
	return addr == m.Base || addr == m.Quote
}

// DisplayOrder is an order view extended with market-relative fields.
type DisplayOrder struct {
	*OrderView
	Side        Side
	BaseAmount  *big.Int
	QuoteAmount *big.Int
	Price       float64 // quote per base
	IsOwnOrder  bool
}

// extend classifies an order against the market. Returns false for orders
// from other pairs.
func (m Market) extend(v *OrderView, account common.Address) (*DisplayOrder, bool) {
	if !m.contains(v.TokenGet) || !m.contains(v.TokenGive) || v.TokenGet == v.TokenGive {
		return nil, false
	}
	d := &DisplayOrder{OrderView: v, IsOwnOrder: v.Maker == account}
	if v.TokenGive == m.Quote {
		d.Side = SideBuy
		d.BaseAmount = v.AmountGet
		d.QuoteAmount = v.AmountGive
	} else {
		d.Side = SideSell
		d.BaseAmount = v.AmountGive
		d.QuoteAmount = v.AmountGet
	}
	d.Price = ratio(d.QuoteAmount, d.BaseAmount)
	return d, true
}

func ratio(num, den *big.Int) float64 {
	if den.Sign() == 0 {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(num), new(big.Float).SetInt(den)).Float64()
	return f
}

// sortCanonical orders by (block, txIndex, logIndex); descending puts the
// newest first as the reference display order.
func sortCanonical(orders []*DisplayOrder, descending bool) {
	sort.Slice(orders, func(i, j int) bool {
		if descending {
			return orders[j].Meta.Before(orders[i].Meta)
		}
		return orders[i].Meta.Before(orders[j].Meta)
	})
}

// OpenOrders returns the market's open orders split by side, newest first.
func (p *Projector) OpenOrders(m Market, account common.Address) (buys, sells []*DisplayOrder) {
	for _, v := range p.Orders() {
		if v.Status != exchange.OrderOpen {
			continue
		}
		d, ok := m.extend(v, account)
		if !ok {
			continue
		}
		if d.Side == SideBuy {
			buys = append(buys, d)
		} else {
			sells = append(sells, d)
		}
	}
	sortCanonical(buys, true)
	sortCanonical(sells, true)
	return buys, sells
}

// TradeBook returns the market's filled orders in descending chronological
// (canonical) order.
func (p *Projector) TradeBook(m Market) []*DisplayOrder {
	var trades []*DisplayOrder
	for _, v := range p.Orders() {
		if v.Status != exchange.OrderFilled {
			continue
		}
		d, ok := m.extend(v, common.Address{})
		if !ok {
			continue
		}
		trades = append(trades, d)
	}
	sortCanonical(trades, true)
	return trades
}

// History is the connected account's open orders and trades.
type History struct {
	Orders []*DisplayOrder
	Trades []*DisplayOrder
}

// MyHistory returns orders and trades touching the account. For trades where
// the account is taker rather than maker, the displayed side is flipped: the
// taker of a buy order sold.
func (p *Projector) MyHistory(m Market, account common.Address) History {
	var h History

	buys, sells := p.OpenOrders(m, account)
	for _, d := range append(buys, sells...) {
		if d.Maker == account {
			h.Orders = append(h.Orders, d)
		}
	}
	sortCanonical(h.Orders, true)

	for _, d := range p.TradeBook(m) {
		if d.Maker != account && d.Taker != account {
			continue
		}
		if d.Taker == account {
			if d.Side == SideBuy {
				d.Side = SideSell
			} else {
				d.Side = SideBuy
			}
		}
		h.Trades = append(h.Trades, d)
	}
	return h
}
