package models

import "time"

// BarInterval is the only aggregation interval the engine produces.
const BarInterval = time.Minute

// Bar is a single OHLCV candle for one venue. StartTime is the interval
// start, floored to the minute. A partial bar is still accumulating trades
// for the current interval and has not been committed to history yet.
type Bar struct {
	StartTime  time.Time `json:"start_time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	TradeCount int64     `json:"trade_count"`
	IsPartial  bool      `json:"is_partial"`
}

// NewBarFromTrade opens a partial bar seeded with a single trade.
func NewBarFromTrade(t Trade) Bar {
	return Bar{
		StartTime:  t.Timestamp.Truncate(BarInterval),
		Open:       t.Price,
		High:       t.Price,
		Low:        t.Price,
		Close:      t.Price,
		Volume:     t.Quantity,
		TradeCount: 1,
		IsPartial:  true,
	}
}

// ApplyTrade folds another trade of the same interval into the bar.
func (b *Bar) ApplyTrade(t Trade) {
	if t.Price > b.High {
		b.High = t.Price
	}
	if t.Price < b.Low {
		b.Low = t.Price
	}
	b.Close = t.Price
	b.Volume += t.Quantity
	b.TradeCount++
}

// Candle is the external chart-friendly shape of a bar. Time is the interval
// start in epoch seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ToCandle converts a bar to its external representation.
func (b Bar) ToCandle() Candle {
	return Candle{
		Time:   b.StartTime.Unix(),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

// CompositeBar is a cross-venue candle built from the venue bars that share
// one interval. Open and Close are medians across contributing venues, High
// and Low are the extremes, Volume is the sum.
type CompositeBar struct {
	StartTime  time.Time `json:"start_time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	VenueCount int       `json:"venue_count"`
}

// ToCandle converts a composite bar to its external representation.
func (b CompositeBar) ToCandle() Candle {
	return Candle{
		Time:   b.StartTime.Unix(),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}
