// Package projector reconstructs a queryable view of orders, trades and
// prices from the exchange event stream. The projection is rebuildable and
// strictly eventually consistent with on-chain state: it is discarded and
// re-backfilled whenever the owning session's preconditions change.
package projector

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dexhub/tokenex/pkg/chain"
	"github.com/dexhub/tokenex/pkg/exchange"
)

// OrderView is the client-side projection of an order. Views are created on
// the first event that mentions the order id (live or backfilled, in any
// arrival order) and updated in place; they are never deleted, since filled
// orders feed the trade book and price chart.
type OrderView struct {
	ID         uint64
	Maker      common.Address
	Taker      common.Address // zero until filled
	TokenGet   common.Address
	AmountGet  *big.Int
	TokenGive  common.Address
	AmountGive *big.Int
	CreatedAt  int64
	Status     exchange.OrderStatus

	// Meta of the MakeOrder event, the canonical display-ordering key.
	// If a fill or cancel is observed first, its meta stands in until the
	// make event arrives.
	Meta    chain.EventMeta
	hasMake bool
}

// Projector folds exchange logs into order views. Apply is safe for
// concurrent callers; every operation is idempotent upsert-by-id, so
// out-of-order and duplicate delivery converge to the canonical result.
type Projector struct {
	mu     sync.RWMutex
	logger *zap.Logger

	orders map[uint64]*OrderView

	// Notification dedup only. Order state never double-counts because
	// status writes are idempotent.
	filledSeen    map[uint64]bool
	cancelledSeen map[uint64]bool
}

func New(logger *zap.Logger) *Projector {
	return &Projector{
		logger:        logger,
		orders:        make(map[uint64]*OrderView),
		filledSeen:    make(map[uint64]bool),
		cancelledSeen: make(map[uint64]bool),
	}
}

// ApplyResult reports whether the log changed projection state in a way the
// UI should announce (first sighting of a make/fill/cancel).
type ApplyResult struct {
	Handled  bool
	WasAdded bool
	Order    *OrderView // snapshot after applying, nil if not order-related
}

// Apply folds one log into the projection.
func (p *Projector) Apply(l chain.Log) ApplyResult {
	switch ev := l.Event.(type) {
	case exchange.MakeOrderEvent:
		return p.applyMake(ev, l.Meta)
	case exchange.FillOrderEvent:
		return p.applyFill(ev, l.Meta)
	case exchange.CancelOrderEvent:
		return p.applyCancel(ev, l.Meta)
	default:
		return ApplyResult{}
	}
}

func (p *Projector) applyMake(ev exchange.MakeOrderEvent, meta chain.EventMeta) ApplyResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, exists := p.orders[ev.ID]
	if !exists {
		v = &OrderView{ID: ev.ID, Status: exchange.OrderOpen}
		p.orders[ev.ID] = v
	}
	v.Maker = ev.Maker
	v.TokenGet = ev.TokenGet
	v.AmountGet = new(big.Int).Set(ev.AmountGet)
	v.TokenGive = ev.TokenGive
	v.AmountGive = new(big.Int).Set(ev.AmountGive)
	v.CreatedAt = ev.CreatedAt
	// The make event's position is the canonical ordering key, even when a
	// fill or cancel was observed first.
	v.Meta = meta
	v.hasMake = true

	return ApplyResult{Handled: true, WasAdded: !exists, Order: v.clone()}
}

func (p *Projector) applyFill(ev exchange.FillOrderEvent, meta chain.EventMeta) ApplyResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.upsertFromPayload(ev.ID, ev.Maker, ev.TokenGet, ev.AmountGet, ev.TokenGive, ev.AmountGive, ev.CreatedAt, meta)
	v.Taker = ev.Taker
	v.Status = exchange.OrderFilled

	wasAdded := !p.filledSeen[ev.ID]
	p.filledSeen[ev.ID] = true
	return ApplyResult{Handled: true, WasAdded: wasAdded, Order: v.clone()}
}

func (p *Projector) applyCancel(ev exchange.CancelOrderEvent, meta chain.EventMeta) ApplyResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.upsertFromPayload(ev.ID, ev.Maker, ev.TokenGet, ev.AmountGet, ev.TokenGive, ev.AmountGive, ev.CreatedAt, meta)
	// Filled is terminal; a stray cancel for a filled id is ignored.
	if v.Status != exchange.OrderFilled {
		v.Status = exchange.OrderCancelled
	}

	wasAdded := !p.cancelledSeen[ev.ID]
	p.cancelledSeen[ev.ID] = true
	return ApplyResult{Handled: true, WasAdded: wasAdded, Order: v.clone()}
}

// upsertFromPayload creates or refreshes a view from a fill/cancel event,
// which carries the full order payload precisely so that consumers that
// missed the make event still end up with a complete view.
func (p *Projector) upsertFromPayload(id uint64, maker, tokenGet common.Address, amountGet *big.Int, tokenGive common.Address, amountGive *big.Int, createdAt int64, meta chain.EventMeta) *OrderView {
	v, exists := p.orders[id]
	if !exists {
		v = &OrderView{ID: id, Status: exchange.OrderOpen}
		p.orders[id] = v
	}
	v.Maker = maker
	v.TokenGet = tokenGet
	v.AmountGet = new(big.Int).Set(amountGet)
	v.TokenGive = tokenGive
	v.AmountGive = new(big.Int).Set(amountGive)
	v.CreatedAt = createdAt
	if !v.hasMake {
		v.Meta = meta
	}
	return v
}

// Order returns a snapshot of one order view.
func (p *Projector) Order(id uint64) (*OrderView, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.orders[id]
	if !ok {
		return nil, false
	}
	return v.clone(), true
}

// Orders returns a snapshot of all projected orders, unsorted.
func (p *Projector) Orders() []*OrderView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*OrderView, 0, len(p.orders))
	for _, v := range p.orders {
		out = append(out, v.clone())
	}
	return out
}

// Len returns the number of projected orders.
func (p *Projector) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.orders)
}

// Reset discards the projection, for rebuild on reconnect or chain switch.
func (p *Projector) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = make(map[uint64]*OrderView)
	p.filledSeen = make(map[uint64]bool)
	p.cancelledSeen = make(map[uint64]bool)
}

func (v *OrderView) clone() *OrderView {
	c := *v
	if v.AmountGet != nil {
		c.AmountGet = new(big.Int).Set(v.AmountGet)
	}
	if v.AmountGive != nil {
		c.AmountGive = new(big.Int).Set(v.AmountGive)
	}
	return &c
}
