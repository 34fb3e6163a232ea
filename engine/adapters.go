package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pricefuse/config"
	"pricefuse/internal/symbols"
	"pricefuse/logger"
	"pricefuse/models"
	"pricefuse/venue"
	"pricefuse/venue/binance"
	"pricefuse/venue/bybit"
	"pricefuse/venue/kucoin"
	"pricefuse/venue/okx"
)

// resolveSymbol returns the wire symbol an adapter subscribes with. A
// configured symbol override binds to the configured asset; any other asset
// derives its symbol from the canonical mapping.
func (e *Engine) resolveSymbol(vc config.VenueConfig, asset string) string {
	if vc.Symbol != "" && asset == e.config.Engine.Asset {
		return vc.Symbol
	}
	return symbols.ForVenue(vc.ID, vc.Key().Market, asset, e.config.Engine.Quote)
}

func (e *Engine) newAdapter(vc config.VenueConfig, asset string) (venue.Adapter, error) {
	key := vc.Key()
	symbol := e.resolveSymbol(vc, asset)

	switch vc.ID {
	case "binance":
		if key.Market == models.MarketPerp {
			return binance.PerpTradeReader(vc, asset, symbol, e.channels, e.trackers[key]), nil
		}
		return binance.SpotTradeReader(vc, asset, symbol, e.channels, e.trackers[key]), nil
	case "bybit":
		return bybit.TradeReader(vc, asset, symbol, e.channels, e.trackers[key]), nil
	case "okx":
		return okx.TradeReader(vc, asset, symbol, e.channels, e.trackers[key]), nil
	case "kucoin":
		return kucoin.TradeReader(vc, asset, symbol, e.channels, e.trackers[key]), nil
	default:
		return nil, fmt.Errorf("unknown venue id: %s", vc.ID)
	}
}

// startAdapters builds and starts one adapter per enabled venue. Adapters
// run on a child context so they can be torn down on an asset switch without
// cancelling the engine itself.
func (e *Engine) startAdapters(parent context.Context) error {
	e.mu.RLock()
	asset := e.asset
	e.mu.RUnlock()

	actx, cancel := context.WithCancel(parent)

	adapters := make([]venue.Adapter, 0, len(e.venues))
	for _, vc := range e.venues {
		adapter, err := e.newAdapter(vc, asset)
		if err != nil {
			cancel()
			return err
		}
		adapters = append(adapters, adapter)
	}

	for i, adapter := range adapters {
		if err := adapter.Start(actx); err != nil {
			cancel()
			for _, started := range adapters[:i] {
				started.Stop()
			}
			return fmt.Errorf("start adapter %s: %w", adapter.Key(), err)
		}
	}

	e.mu.Lock()
	e.adapters = adapters
	e.adapterCancel = cancel
	e.mu.Unlock()
	return nil
}

func (e *Engine) stopAdapters() {
	e.mu.Lock()
	adapters := e.adapters
	cancel := e.adapterCancel
	e.adapters = nil
	e.adapterCancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, adapter := range adapters {
		adapter.Stop()
	}
}

// backfill seeds every venue's bar history from its kline endpoint before
// live trading starts. Requests are rate limited across venues; a venue
// whose fetch fails starts cold and fills from the live stream instead.
func (e *Engine) backfill(ctx context.Context) {
	bf := e.config.Engine.Backfill

	e.mu.RLock()
	asset := e.asset
	e.mu.RUnlock()

	timeout := bf.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(bf.RequestsPerSecond), 1)

	log := e.log.WithComponent("engine").WithFields(logger.Fields{
		"operation": "backfill",
		"asset":     asset,
		"bars":      bf.Bars,
	})
	log.Info("backfilling venue bar history")

	seeded := 0
	for _, vc := range e.venues {
		if err := limiter.Wait(ctx); err != nil {
			log.WithError(err).Warn("backfill aborted")
			return
		}

		start := time.Now()
		history, err := e.fetchKlines(ctx, vc, asset)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"venue":  vc.ID,
				"market": vc.Market,
			}).Warn("backfill failed, venue starts cold")
			continue
		}
		logger.LogPerformanceEntry(log, "backfill", "fetch_klines", time.Since(start), logger.Fields{
			"venue":  vc.ID,
			"market": vc.Market,
			"rows":   len(history),
		})
		history = dropOpenBar(history, time.Now())
		if len(history) == 0 {
			continue
		}

		e.mu.Lock()
		e.builders[vc.Key()].Seed(history)
		e.mu.Unlock()
		seeded++

		log.WithFields(logger.Fields{
			"venue":  vc.ID,
			"market": vc.Market,
			"bars":   len(history),
		}).Info("seeded venue bar history")
	}

	log.WithFields(logger.Fields{"venues_seeded": seeded}).Info("backfill complete")
}

func (e *Engine) fetchKlines(ctx context.Context, vc config.VenueConfig, asset string) ([]models.Bar, error) {
	symbol := e.resolveSymbol(vc, asset)
	limit := e.config.Engine.Backfill.Bars

	switch vc.ID {
	case "binance":
		if vc.Key().Market == models.MarketPerp {
			return binance.PerpKlines(ctx, vc, symbol, limit)
		}
		return binance.SpotKlines(ctx, vc, symbol, limit)
	case "bybit":
		return bybit.Klines(ctx, vc, symbol, limit)
	case "okx":
		return okx.Klines(ctx, vc, symbol, limit)
	case "kucoin":
		return kucoin.Klines(ctx, vc, symbol, limit)
	default:
		return nil, fmt.Errorf("unknown venue id: %s", vc.ID)
	}
}

// dropOpenBar trims trailing bars that cover the in-progress minute. Kline
// endpoints report the open interval as a provisional row; seeding it would
// freeze a half-built bar into history.
func dropOpenBar(history []models.Bar, now time.Time) []models.Bar {
	current := now.UTC().Truncate(models.BarInterval)
	for len(history) > 0 && !history[len(history)-1].StartTime.Before(current) {
		history = history[:len(history)-1]
	}
	return history
}

// SwitchAsset tears down the venue adapters, resets every builder, tracker
// and counter, and restarts the adapters subscribed to the new asset's
// symbols. Nothing carries over: history, telemetry and the state version
// all restart from zero. Trades for the old asset still buffered in the
// channel are skipped by the asset check in applyTrade.
func (e *Engine) SwitchAsset(ctx context.Context, asset string) error {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return fmt.Errorf("asset is required")
	}

	e.mu.RLock()
	current := e.asset
	running := e.running
	e.mu.RUnlock()

	if !running {
		return fmt.Errorf("engine is not running")
	}
	if asset == current {
		return nil
	}

	log := e.log.WithComponent("engine").WithFields(logger.Fields{
		"operation": "switch_asset",
		"from":      current,
		"to":        asset,
	})
	log.Info("switching asset")

	e.stopAdapters()

	now := time.Now()
	e.mu.Lock()
	e.asset = asset
	for _, builder := range e.builders {
		builder.Reset()
	}
	for _, tracker := range e.trackers {
		tracker.ResetSession(now)
	}
	e.inputVersion = 0
	e.tradesApplied = 0
	e.tradesSkipped = 0
	e.barsClosed = 0
	e.gapsRecorded = 0
	e.recomputes = 0
	e.totalOutliers = 0
	parent := e.ctx
	e.mu.Unlock()

	if e.config.Engine.Backfill.Enabled {
		e.backfill(ctx)
	}

	if err := e.startAdapters(parent); err != nil {
		log.WithError(err).Error("failed to restart adapters after asset switch")
		return err
	}

	e.recompute(time.Now())
	log.Info("asset switch complete")
	return nil
}
