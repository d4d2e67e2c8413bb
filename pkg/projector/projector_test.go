package projector_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dexhub/tokenex/pkg/chain"
	"github.com/dexhub/tokenex/pkg/exchange"
	"github.com/dexhub/tokenex/pkg/projector"
)

var (
	baseToken  = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	quoteToken = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	otherToken = common.HexToAddress("0x0000000000000000000000000000000000000d03")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	market = projector.Market{Base: baseToken, Quote: quoteToken}
)

func meta(block uint64, txIndex uint32) chain.EventMeta {
	return chain.EventMeta{
		BlockNumber: block,
		TxIndex:     txIndex,
		TxHash:      common.BigToHash(big.NewInt(int64(block)<<16 | int64(txIndex))),
		Timestamp:   int64(1_700_000_000 + block),
	}
}

// buyOrder offers quote for base: giving quote buys base.
func buyOrder(id uint64, maker common.Address, baseAmt, quoteAmt int64, createdAt int64) exchange.MakeOrderEvent {
	return exchange.MakeOrderEvent{
		ID:         id,
		Maker:      maker,
		TokenGet:   baseToken,
		AmountGet:  big.NewInt(baseAmt),
		TokenGive:  quoteToken,
		AmountGive: big.NewInt(quoteAmt),
		CreatedAt:  createdAt,
	}
}

func sellOrder(id uint64, maker common.Address, baseAmt, quoteAmt int64, createdAt int64) exchange.MakeOrderEvent {
	return exchange.MakeOrderEvent{
		ID:         id,
		Maker:      maker,
		TokenGet:   quoteToken,
		AmountGet:  big.NewInt(quoteAmt),
		TokenGive:  baseToken,
		AmountGive: big.NewInt(baseAmt),
		CreatedAt:  createdAt,
	}
}

func fillOf(make exchange.MakeOrderEvent, taker common.Address, filledAt int64) exchange.FillOrderEvent {
	return exchange.FillOrderEvent{
		ID:         make.ID,
		Maker:      make.Maker,
		Taker:      taker,
		TokenGet:   make.TokenGet,
		AmountGet:  make.AmountGet,
		TokenGive:  make.TokenGive,
		AmountGive: make.AmountGive,
		CreatedAt:  make.CreatedAt,
		FilledAt:   filledAt,
	}
}

func cancelOf(make exchange.MakeOrderEvent, cancelledAt int64) exchange.CancelOrderEvent {
	return exchange.CancelOrderEvent{
		ID:          make.ID,
		Maker:       make.Maker,
		TokenGet:    make.TokenGet,
		AmountGet:   make.AmountGet,
		TokenGive:   make.TokenGive,
		AmountGive:  make.AmountGive,
		CreatedAt:   make.CreatedAt,
		CancelledAt: cancelledAt,
	}
}

func TestApplyMake(t *testing.T) {
	p := projector.New(zap.NewNop())
	mk := buyOrder(1, alice, 10, 20, 1_700_000_000)

	res := p.Apply(chain.Log{Meta: meta(1, 0), Event: mk})
	if !res.Handled || !res.WasAdded {
		t.Fatalf("apply make: handled=%v added=%v", res.Handled, res.WasAdded)
	}

	v, ok := p.Order(1)
	if !ok {
		t.Fatal("order view missing")
	}
	if v.Maker != alice || v.Status != exchange.OrderOpen {
		t.Errorf("view: maker=%s status=%v", v.Maker.Hex(), v.Status)
	}
	if v.AmountGet.Cmp(big.NewInt(10)) != 0 || v.AmountGive.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("view amounts: get=%s give=%s", v.AmountGet, v.AmountGive)
	}
}

// A duplicate make is an idempotent upsert: no second view, no re-announce.
func TestApplyDuplicateMake(t *testing.T) {
	p := projector.New(zap.NewNop())
	mk := buyOrder(1, alice, 10, 20, 1_700_000_000)
	l := chain.Log{Meta: meta(1, 0), Event: mk}

	p.Apply(l)
	res := p.Apply(l)
	if res.WasAdded {
		t.Error("duplicate make reported as newly added")
	}
	if p.Len() != 1 {
		t.Errorf("projection has %d orders, want 1", p.Len())
	}
}

// Fill and cancel events carry the complete order payload, so a consumer that
// missed the make event still converges to a full view.
func TestApplyFillBeforeMake(t *testing.T) {
	p := projector.New(zap.NewNop())
	mk := buyOrder(1, alice, 10, 20, 1_700_000_000)
	fillMeta := meta(5, 0)
	makeMeta := meta(2, 0)

	res := p.Apply(chain.Log{Meta: fillMeta, Event: fillOf(mk, bob, 1_700_000_300)})
	if !res.WasAdded {
		t.Fatal("first fill not announced")
	}
	v, _ := p.Order(1)
	if v.Status != exchange.OrderFilled || v.Taker != bob {
		t.Fatalf("view after fill: status=%v taker=%s", v.Status, v.Taker.Hex())
	}
	if v.Maker != alice || v.AmountGive.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("fill payload did not populate the view: %+v", v)
	}
	// The fill's position stands in until the make arrives.
	if v.Meta.BlockNumber != 5 {
		t.Errorf("interim meta: block %d, want 5", v.Meta.BlockNumber)
	}

	// The late make must not resurrect the order, but its position becomes
	// the canonical ordering key.
	res = p.Apply(chain.Log{Meta: makeMeta, Event: mk})
	if res.WasAdded {
		t.Error("late make reported as newly added")
	}
	v, _ = p.Order(1)
	if v.Status != exchange.OrderFilled {
		t.Errorf("late make reopened the order: status=%v", v.Status)
	}
	if v.Meta.BlockNumber != 2 {
		t.Errorf("canonical meta: block %d, want 2", v.Meta.BlockNumber)
	}
}

// Filled is terminal: a stray cancel observed after a fill is ignored.
func TestCancelAfterFillIgnored(t *testing.T) {
	p := projector.New(zap.NewNop())
	mk := buyOrder(1, alice, 10, 20, 1_700_000_000)

	p.Apply(chain.Log{Meta: meta(1, 0), Event: mk})
	p.Apply(chain.Log{Meta: meta(2, 0), Event: fillOf(mk, bob, 1_700_000_100)})
	p.Apply(chain.Log{Meta: meta(3, 0), Event: cancelOf(mk, 1_700_000_200)})

	v, _ := p.Order(1)
	if v.Status != exchange.OrderFilled {
		t.Errorf("status after stray cancel: got %v, want filled", v.Status)
	}
}

func TestApplyCancel(t *testing.T) {
	p := projector.New(zap.NewNop())
	mk := sellOrder(1, alice, 10, 20, 1_700_000_000)

	p.Apply(chain.Log{Meta: meta(1, 0), Event: mk})
	res := p.Apply(chain.Log{Meta: meta(2, 0), Event: cancelOf(mk, 1_700_000_100)})
	if !res.WasAdded {
		t.Error("first cancel not announced")
	}
	v, _ := p.Order(1)
	if v.Status != exchange.OrderCancelled {
		t.Errorf("status: got %v, want cancelled", v.Status)
	}

	// Repeats are deduplicated for notification purposes.
	res = p.Apply(chain.Log{Meta: meta(2, 0), Event: cancelOf(mk, 1_700_000_100)})
	if res.WasAdded {
		t.Error("duplicate cancel announced again")
	}
}

func TestOpenOrdersClassification(t *testing.T) {
	p := projector.New(zap.NewNop())

	buy := buyOrder(1, alice, 10, 20, 1_700_000_000)
	sell := sellOrder(2, bob, 10, 25, 1_700_000_060)
	filled := buyOrder(3, bob, 10, 30, 1_700_000_120)
	foreign := exchange.MakeOrderEvent{
		ID: 4, Maker: alice,
		TokenGet: otherToken, AmountGet: big.NewInt(1),
		TokenGive: quoteToken, AmountGive: big.NewInt(1),
		CreatedAt: 1_700_000_180,
	}

	p.Apply(chain.Log{Meta: meta(1, 0), Event: buy})
	p.Apply(chain.Log{Meta: meta(2, 0), Event: sell})
	p.Apply(chain.Log{Meta: meta(3, 0), Event: filled})
	p.Apply(chain.Log{Meta: meta(4, 0), Event: fillOf(filled, alice, 1_700_000_200)})
	p.Apply(chain.Log{Meta: meta(5, 0), Event: foreign})

	buys, sells := p.OpenOrders(market, alice)
	if len(buys) != 1 || len(sells) != 1 {
		t.Fatalf("open orders: %d buys, %d sells, want 1 and 1", len(buys), len(sells))
	}

	b := buys[0]
	if b.ID != 1 || b.Side != projector.SideBuy {
		t.Errorf("buy classification: id=%d side=%s", b.ID, b.Side)
	}
	if b.BaseAmount.Cmp(big.NewInt(10)) != 0 || b.QuoteAmount.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("buy amounts: base=%s quote=%s", b.BaseAmount, b.QuoteAmount)
	}
	if b.Price != 2.0 {
		t.Errorf("buy price: got %v, want 2.0", b.Price)
	}
	if !b.IsOwnOrder {
		t.Error("alice's order not flagged as own")
	}

	s := sells[0]
	if s.ID != 2 || s.Side != projector.SideSell || s.Price != 2.5 {
		t.Errorf("sell classification: id=%d side=%s price=%v", s.ID, s.Side, s.Price)
	}
	if s.IsOwnOrder {
		t.Error("bob's order flagged as alice's own")
	}
}

func TestTradeBookNewestFirst(t *testing.T) {
	p := projector.New(zap.NewNop())

	first := buyOrder(1, alice, 10, 20, 1_700_000_000)
	second := buyOrder(2, alice, 10, 30, 1_700_000_060)
	p.Apply(chain.Log{Meta: meta(1, 0), Event: first})
	p.Apply(chain.Log{Meta: meta(2, 0), Event: second})
	p.Apply(chain.Log{Meta: meta(3, 0), Event: fillOf(first, bob, 1_700_000_100)})
	p.Apply(chain.Log{Meta: meta(4, 0), Event: fillOf(second, bob, 1_700_000_200)})

	trades := p.TradeBook(market)
	if len(trades) != 2 {
		t.Fatalf("trade count: got %d, want 2", len(trades))
	}
	if trades[0].ID != 2 || trades[1].ID != 1 {
		t.Errorf("trade order: got [%d, %d], want [2, 1]", trades[0].ID, trades[1].ID)
	}
}

// A taker's trade displays with the side flipped: the taker of a buy sold.
func TestMyHistoryTakerSideFlip(t *testing.T) {
	p := projector.New(zap.NewNop())

	mk := buyOrder(1, alice, 10, 20, 1_700_000_000)
	p.Apply(chain.Log{Meta: meta(1, 0), Event: mk})
	p.Apply(chain.Log{Meta: meta(2, 0), Event: fillOf(mk, bob, 1_700_000_100)})

	makerHist := p.MyHistory(market, alice)
	if len(makerHist.Trades) != 1 || makerHist.Trades[0].Side != projector.SideBuy {
		t.Errorf("maker history: %+v", makerHist.Trades)
	}

	takerHist := p.MyHistory(market, bob)
	if len(takerHist.Trades) != 1 || takerHist.Trades[0].Side != projector.SideSell {
		t.Errorf("taker history side not flipped: %+v", takerHist.Trades)
	}
	if len(takerHist.Orders) != 0 {
		t.Errorf("taker has no open orders, got %d", len(takerHist.Orders))
	}
}

func TestOHLCBuckets(t *testing.T) {
	p := projector.New(zap.NewNop())
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC).Unix()

	trades := []struct {
		id       uint64
		quoteAmt int64 // price = quoteAmt / 10
		at       int64
	}{
		{1, 20, t0},         // bucket A, price 2.0
		{2, 30, t0 + 10*60}, // bucket A, price 3.0
		{3, 15, t0 + 12*60}, // bucket A, price 1.5
		{4, 25, t0 + 35*60}, // bucket B, price 2.5
	}
	for i, tr := range trades {
		mk := buyOrder(tr.id, alice, 10, tr.quoteAmt, tr.at)
		p.Apply(chain.Log{Meta: meta(uint64(2*i+1), 0), Event: mk})
		p.Apply(chain.Log{Meta: meta(uint64(2*i+2), 0), Event: fillOf(mk, bob, tr.at+30)})
	}

	chart := p.OHLC(market, 30*time.Minute)
	if len(chart.Candles) != 2 {
		t.Fatalf("candle count: got %d, want 2", len(chart.Candles))
	}

	a := chart.Candles[0]
	if a.Open != 2.0 || a.Close != 1.5 || a.High != 3.0 || a.Low != 1.5 {
		t.Errorf("bucket A: o=%v h=%v l=%v c=%v, want 2/3/1.5/1.5", a.Open, a.High, a.Low, a.Close)
	}
	if a.Start.Unix() != t0 {
		t.Errorf("bucket A start: got %d, want %d", a.Start.Unix(), t0)
	}

	b := chart.Candles[1]
	if b.Open != 2.5 || b.Close != 2.5 || b.High != 2.5 || b.Low != 2.5 {
		t.Errorf("bucket B: o=%v h=%v l=%v c=%v, want all 2.5", b.Open, b.High, b.Low, b.Close)
	}

	if chart.LastPrice != 2.5 {
		t.Errorf("last price: got %v, want 2.5", chart.LastPrice)
	}
	if chart.Up {
		t.Error("flat last candle reported as up")
	}
}

func TestOHLCEmpty(t *testing.T) {
	p := projector.New(zap.NewNop())
	chart := p.OHLC(market, 30*time.Minute)
	if len(chart.Candles) != 0 || chart.LastPrice != 0 {
		t.Errorf("empty chart: %+v", chart)
	}
}

func TestReset(t *testing.T) {
	p := projector.New(zap.NewNop())
	mk := buyOrder(1, alice, 10, 20, 1_700_000_000)
	p.Apply(chain.Log{Meta: meta(1, 0), Event: mk})

	p.Reset()
	if p.Len() != 0 {
		t.Errorf("orders after reset: %d", p.Len())
	}
	// After a reset the same make announces again, as on a fresh backfill.
	if res := p.Apply(chain.Log{Meta: meta(1, 0), Event: mk}); !res.WasAdded {
		t.Error("re-applied make not announced after reset")
	}
}
