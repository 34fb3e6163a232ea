package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"pricefuse/config"
	"pricefuse/internal/channel/trades"
	"pricefuse/internal/metrics/rate"
	"pricefuse/logger"
	"pricefuse/models"
	"pricefuse/telemetry"
	"pricefuse/venue"
)

// Perp streams USD-M futures trades from Binance. It uses the aggTrade
// stream, which compacts fills at the same price into one event and carries
// an order of magnitude less traffic than the raw trade stream while
// preserving price, total quantity and taker side.
type Perp struct {
	cfg      config.VenueConfig
	asset    string
	symbol   string
	channels *trades.Channels
	tracker  *telemetry.Tracker
	guard    venue.ConnGuard
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

// PerpTradeReader creates a futures trade reader using the binance-go client.
func PerpTradeReader(cfg config.VenueConfig, asset, symbol string, ch *trades.Channels, tracker *telemetry.Tracker) *Perp {
	return &Perp{
		cfg:      cfg,
		asset:    asset,
		symbol:   symbol,
		channels: ch,
		tracker:  tracker,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (r *Perp) Key() models.VenueKey {
	return r.cfg.Key()
}

// Start subscribes to the aggTrade stream for the configured symbol.
func (r *Perp) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance perp reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent(venue.ComponentName(r.Key())).WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{"symbol": r.symbol}).Info("starting perp trade reader")

	r.wg.Add(1)
	go r.streamTrades()

	log.Info("binance perp trade reader started successfully")
	return nil
}

// Stop terminates the websocket subscription after the start context is
// cancelled.
func (r *Perp) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.guard.Invalidate()
	r.log.WithComponent(venue.ComponentName(r.Key())).Info("stopping perp trade reader")
	r.wg.Wait()
	r.log.WithComponent(venue.ComponentName(r.Key())).Info("perp trade reader stopped")
}

func (r *Perp) streamTrades() {
	defer r.wg.Done()

	log := r.log.WithComponent(venue.ComponentName(r.Key())).WithFields(logger.Fields{
		"symbol": r.symbol,
		"worker": "trade_stream",
	})
	reporter := venue.NewReporter(r.ctx, r.Key(), r.channels, r.tracker, log)

	for {
		if r.ctx.Err() != nil {
			return
		}

		connID := r.guard.Next()
		reporter.Connecting()

		handler := func(event *futures.WsAggTradeEvent) {
			if !r.guard.Active(connID) {
				return
			}
			reporter.Message()
			trade, err := tradeFromAggEvent(event, r.Key(), r.asset)
			if err != nil {
				log.WithError(err).Warn("malformed aggTrade event, skipping")
				return
			}
			reporter.Publish(trade, len(event.Price)+len(event.Quantity))
		}

		errHandler := func(err error) {
			if err == nil || !r.guard.Active(connID) {
				return
			}
			log.WithError(err).Warn("websocket error")
			rate.ReportLimitFromMessage(r.log, "binance", r.symbol, "trades", err.Error())
		}

		doneC, stopC, err := futures.WsAggTradeServe(r.symbol, handler, errHandler)
		if err != nil {
			reporter.Errored()
			log.WithError(err).Warn("failed to subscribe to aggTrade stream, retrying")
			reporter.Reconnecting()
			select {
			case <-time.After(venue.ReconnectDelay):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		reporter.Connected()
		log.Info("subscribed to perp aggTrade stream")

		select {
		case <-r.ctx.Done():
			r.guard.Invalidate()
			close(stopC)
			<-doneC
			reporter.Disconnected()
			return
		case <-doneC:
			reporter.Disconnected()
			log.Warn("aggTrade stream ended, reconnecting")
			reporter.Reconnecting()
			select {
			case <-time.After(venue.ReconnectDelay):
			case <-r.ctx.Done():
				return
			}
		}
	}
}

func tradeFromAggEvent(event *futures.WsAggTradeEvent, key models.VenueKey, asset string) (models.Trade, error) {
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("parse price %q: %w", event.Price, err)
	}
	qty, err := strconv.ParseFloat(event.Quantity, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("parse quantity %q: %w", event.Quantity, err)
	}

	side := models.SideBuy
	if event.Maker {
		side = models.SideSell
	}

	return models.Trade{
		Venue:      key,
		Asset:      asset,
		Price:      price,
		Quantity:   qty,
		Side:       side,
		Timestamp:  time.UnixMilli(event.TradeTime).UTC(),
		ReceivedAt: time.Now().UTC(),
	}, nil
}
