package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"pricefuse/config"
	"pricefuse/internal/channel/trades"
	"pricefuse/internal/metrics/rate"
	"pricefuse/logger"
	"pricefuse/models"
	"pricefuse/telemetry"
	"pricefuse/venue"
)

// Spot streams spot trades from Binance over the SDK websocket and
// normalizes them into canonical trades. The stream reconnects with a fixed
// delay until the context is cancelled.
type Spot struct {
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

// SpotTradeReader creates a spot trade reader using the binance-go client.
func SpotTradeReader(cfg config.VenueConfig, asset, symbol string, ch *trades.Channels, tracker *telemetry.Tracker) *Spot {
	return &Spot{
		cfg:      cfg,
		asset:    asset,
		symbol:   symbol,
		channels: ch,
		tracker:  tracker,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (r *Spot) Key() models.VenueKey {
	return r.cfg.Key()
}

// Start subscribes to the trade stream for the configured symbol.
func (r *Spot) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance spot reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent(venue.ComponentName(r.Key())).WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{"symbol": r.symbol}).Info("starting spot trade reader")

	r.wg.Add(1)
	go r.streamTrades()

	log.Info("binance spot trade reader started successfully")
	return nil
}

// Stop terminates the websocket subscription. The caller cancels the start
// context first; Stop waits for the stream goroutine to exit.
func (r *Spot) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.guard.Invalidate()
	r.log.WithComponent(venue.ComponentName(r.Key())).Info("stopping spot trade reader")
	r.wg.Wait()
	r.log.WithComponent(venue.ComponentName(r.Key())).Info("spot trade reader stopped")
}

func (r *Spot) streamTrades() {
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

		handler := func(event *binance.WsTradeEvent) {
			if !r.guard.Active(connID) {
				return
			}
			reporter.Message()
			trade, err := tradeFromSpotEvent(event, r.Key(), r.asset)
			if err != nil {
				log.WithError(err).Warn("malformed trade event, skipping")
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

		doneC, stopC, err := binance.WsTradeServe(r.symbol, handler, errHandler)
		if err != nil {
			reporter.Errored()
			log.WithError(err).Warn("failed to subscribe to trade stream, retrying")
			reporter.Reconnecting()
			select {
			case <-time.After(venue.ReconnectDelay):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		reporter.Connected()
		log.Info("subscribed to spot trade stream")

		select {
		case <-r.ctx.Done():
			r.guard.Invalidate()
			close(stopC)
			<-doneC
			reporter.Disconnected()
			return
		case <-doneC:
			reporter.Disconnected()
			log.Warn("trade stream ended, reconnecting")
			reporter.Reconnecting()
			select {
			case <-time.After(venue.ReconnectDelay):
			case <-r.ctx.Done():
				return
			}
		}
	}
}

// tradeFromSpotEvent converts an SDK trade event into a canonical trade.
// IsBuyerMaker set means the buyer sat on the book, so the taker sold.
func tradeFromSpotEvent(event *binance.WsTradeEvent, key models.VenueKey, asset string) (models.Trade, error) {
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("parse price %q: %w", event.Price, err)
	}
	qty, err := strconv.ParseFloat(event.Quantity, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("parse quantity %q: %w", event.Quantity, err)
	}

	side := models.SideBuy
	if event.IsBuyerMaker {
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
