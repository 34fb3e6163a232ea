package trades

import (
	"context"
	"sync"

	"pricefuse/logger"
	"pricefuse/models"
)

type ChannelStats struct {
	TradesSent    int64
	TradesDropped int64
	EventsSent    int64
	EventsDropped int64
}

// Channels carries normalized trades and connection state events from the
// venue adapters to the engine. Sends never block: a full trade buffer drops
// the trade and counts it instead of stalling a venue reader.
type Channels struct {
	Trades chan models.Trade
	Events chan models.VenueStateEvent

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(tradeBufferSize, eventBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Trades: make(chan models.Trade, tradeBufferSize),
		Events: make(chan models.VenueStateEvent, eventBufferSize),
		log:    log,
	}

	log.WithComponent("trade_channels").WithFields(logger.Fields{
		"trade_buffer_size": tradeBufferSize,
		"event_buffer_size": eventBufferSize,
	}).Info("trade channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Trades)
	close(c.Events)
	c.log.WithComponent("trade_channels").Info("trade channels closed")
}

func (c *Channels) IncrementTradesSent() {
	c.statsMutex.Lock()
	c.stats.TradesSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementTradesDropped() {
	c.statsMutex.Lock()
	c.stats.TradesDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementEventsSent() {
	c.statsMutex.Lock()
	c.stats.EventsSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementEventsDropped() {
	c.statsMutex.Lock()
	c.stats.EventsDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) SendTrade(ctx context.Context, t models.Trade) bool {
	select {
	case c.Trades <- t:
		c.IncrementTradesSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementTradesDropped()
		return false
	}
}

func (c *Channels) SendEvent(ctx context.Context, ev models.VenueStateEvent) bool {
	select {
	case c.Events <- ev:
		c.IncrementEventsSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementEventsDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
