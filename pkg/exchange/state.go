package exchange

// State is a point-in-time snapshot of the exchange aggregate, used by the
// storage layer to persist across restarts.
type State struct {
	OrderCount uint64
	Orders     []*Order
	Statuses   map[uint64]OrderStatus
	Balances   []BalanceEntry
}

// Snapshot captures the current aggregate state. Amounts are deep-copied.
func (x *Exchange) Snapshot() *State {
	x.mu.RLock()
	defer x.mu.RUnlock()
	s := &State{
		OrderCount: x.orderCount,
		Statuses:   make(map[uint64]OrderStatus, len(x.statuses)),
		Balances:   x.ledger.Entries(),
	}
	for _, o := range x.orders {
		s.Orders = append(s.Orders, o.Clone())
	}
	for id, st := range x.statuses {
		s.Statuses[id] = st
	}
	return s
}

// Restore replaces the aggregate state with a snapshot.
func (x *Exchange) Restore(s *State) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.orderCount = s.OrderCount
	x.orders = make(map[uint64]*Order, len(s.Orders))
	for _, o := range s.Orders {
		x.orders[o.ID] = o.Clone()
	}
	x.statuses = make(map[uint64]OrderStatus, len(s.Statuses))
	for id, st := range s.Statuses {
		x.statuses[id] = st
	}
	x.ledger.Restore(s.Balances)
}
