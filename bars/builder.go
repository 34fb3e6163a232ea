package bars

import (
	"time"

	"pricefuse/models"
)

// Builder folds a single venue's trade stream into 1-minute OHLCV bars and
// tracks the gaps between closed bars. It is not safe for concurrent use;
// the engine loop owns one Builder per venue and serializes access.
type Builder struct {
	venue models.VenueKey

	current *models.Bar
	history *barRing
	trades  *tradeRing

	// lastClosed is the start time of the most recent interval accounted
	// for, either closed normally or consumed by a discard.
	lastClosed time.Time
	everClosed bool

	lastTradePrice float64
	lastTradeAt    time.Time
	hasTrade       bool
}

// NewBuilder creates a builder with bounded history and trade retention.
func NewBuilder(venue models.VenueKey, historyCap, tradeCap int) *Builder {
	return &Builder{
		venue:   venue,
		history: newBarRing(historyCap),
		trades:  newTradeRing(tradeCap),
	}
}

func (b *Builder) Venue() models.VenueKey {
	return b.venue
}

// Apply folds one trade into the current bar. When the trade starts a later
// interval the current bar is closed and returned along with the number of
// skipped intervals since the previous closure. Trades for an interval behind
// the current bar, or behind the last accounted interval when no bar is open,
// are dropped and reported with ok=false.
func (b *Builder) Apply(trade models.Trade) (closed *models.Bar, gaps int, ok bool) {
	barStart := trade.Timestamp.Truncate(models.BarInterval)

	if b.current != nil && barStart.Before(b.current.StartTime) {
		return nil, 0, false
	}
	if b.current == nil && b.everClosed && barStart.Before(b.lastClosed) {
		return nil, 0, false
	}

	b.trades.Append(trade)
	b.lastTradePrice = trade.Price
	b.lastTradeAt = trade.Timestamp
	b.hasTrade = true

	if b.current == nil {
		bar := models.NewBarFromTrade(trade)
		b.current = &bar
		return nil, 0, true
	}

	if barStart.Equal(b.current.StartTime) {
		b.current.ApplyTrade(trade)
		return nil, 0, true
	}

	closedBar := b.closeCurrent()
	gaps = b.accountGaps(closedBar.StartTime)

	bar := models.NewBarFromTrade(trade)
	b.current = &bar
	return closedBar, gaps, true
}

// Discard drops the in-flight partial bar after a disconnect. The discarded
// interval and any intervals skipped before it count as gaps, except on cold
// start when nothing has ever closed for this venue.
func (b *Builder) Discard() (gaps int) {
	if b.current == nil {
		return 0
	}
	start := b.current.StartTime
	b.current = nil

	if !b.everClosed {
		return 0
	}
	intervals := int(start.Sub(b.lastClosed) / models.BarInterval)
	if intervals < 0 {
		intervals = 0
	}
	b.lastClosed = start
	return intervals
}

// ForceClose completes the in-flight partial bar even though the interval
// has not elapsed, used when tearing the venue down cleanly.
func (b *Builder) ForceClose() (closed *models.Bar, gaps int) {
	if b.current == nil {
		return nil, 0
	}
	closedBar := b.closeCurrent()
	gaps = b.accountGaps(closedBar.StartTime)
	return closedBar, gaps
}

func (b *Builder) closeCurrent() *models.Bar {
	bar := *b.current
	bar.IsPartial = false
	b.history.Append(bar)
	b.current = nil
	return &bar
}

// accountGaps returns the number of intervals skipped between the previous
// closure and the bar that just closed, and advances the closure marker.
func (b *Builder) accountGaps(closedStart time.Time) int {
	gaps := 0
	if b.everClosed {
		intervals := int(closedStart.Sub(b.lastClosed)/models.BarInterval) - 1
		if intervals > 0 {
			gaps = intervals
		}
	}
	b.lastClosed = closedStart
	b.everClosed = true
	return gaps
}

// Seed preloads backfilled history. Seeded bars never participate in gap
// accounting; the first live closure is still treated as cold start.
func (b *Builder) Seed(history []models.Bar) {
	for _, bar := range history {
		bar.IsPartial = false
		b.history.Append(bar)
	}
}

// Current returns a copy of the in-flight partial bar, if any.
func (b *Builder) Current() (models.Bar, bool) {
	if b.current == nil {
		return models.Bar{}, false
	}
	return *b.current, true
}

// History returns up to n most recent closed bars, oldest first.
func (b *Builder) History(n int) []models.Bar {
	return b.history.Latest(n)
}

func (b *Builder) HistoryLen() int {
	return b.history.Len()
}

// RecentTrades returns up to n most recent trades, oldest first.
func (b *Builder) RecentTrades(n int) []models.Trade {
	return b.trades.Latest(n)
}

// LastTrade reports the most recent trade price and time seen this session.
func (b *Builder) LastTrade() (price float64, at time.Time, ok bool) {
	if !b.hasTrade {
		return 0, time.Time{}, false
	}
	return b.lastTradePrice, b.lastTradeAt, true
}

// Reset clears every ring and marker, used when switching assets.
func (b *Builder) Reset() {
	b.current = nil
	b.history.Clear()
	b.trades.Clear()
	b.lastClosed = time.Time{}
	b.everClosed = false
	b.lastTradePrice = 0
	b.lastTradeAt = time.Time{}
	b.hasTrade = false
}
