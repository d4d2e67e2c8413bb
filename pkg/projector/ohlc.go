package projector

import (
	"sort"
	"time"
)

// Candle is one OHLC bucket of trade prices.
type Candle struct {
	Start time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Chart is the OHLC series plus last-trade info for the ticker.
type Chart struct {
	Candles   []Candle
	LastPrice float64
	Up        bool // close of the last candle above its open
}

// OHLC buckets the market's filled orders into fixed windows (e.g. 30
// minutes). Open/close come from the first/last trade in canonical order
// within the bucket; high/low are the min/max of per-trade prices.
func (p *Projector) OHLC(m Market, bucket time.Duration) Chart {
	trades := p.TradeBook(m)
	if len(trades) == 0 {
		return Chart{}
	}
	// TradeBook is newest-first; bucketing wants ascending.
	sortCanonical(trades, false)

	// Buckets key off the order's creation timestamp, matching the trade
	// book's notion of when the trade happened.
	byStart := make(map[int64][]*DisplayOrder)
	for _, d := range trades {
		start := time.Unix(d.CreatedAt, 0).Truncate(bucket).Unix()
		byStart[start] = append(byStart[start], d)
	}

	starts := make([]int64, 0, len(byStart))
	for s := range byStart {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	chart := Chart{Candles: make([]Candle, 0, len(starts))}
	for _, s := range starts {
		group := byStart[s]
		c := Candle{
			Start: time.Unix(s, 0),
			Open:  group[0].Price,
			Close: group[len(group)-1].Price,
			High:  group[0].Price,
			Low:   group[0].Price,
		}
		for _, d := range group[1:] {
			if d.Price > c.High {
				c.High = d.Price
			}
			if d.Price < c.Low {
				c.Low = d.Price
			}
		}
		chart.Candles = append(chart.Candles, c)
	}

	last := chart.Candles[len(chart.Candles)-1]
	chart.LastPrice = last.Close
	chart.Up = last.Close > last.Open
	return chart
}
