package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pricefuse/bars"
	"pricefuse/composite"
	"pricefuse/config"
	"pricefuse/internal/channel/trades"
	"pricefuse/internal/metrics"
	"pricefuse/logger"
	"pricefuse/models"
	"pricefuse/telemetry"
	"pricefuse/venue"
)

// reportInterval paces the engine loop statistics log line.
const reportInterval = 30 * time.Second

// Engine owns the derivation chain: it consumes the shared trade and event
// channels, folds trades into per-venue bar builders, and on every recompute
// derives the composite prices, the basis and the health rollup into one
// immutable State snapshot. All mutable state is guarded by mu; the run loop
// is the only writer of builders and counters.
type Engine struct {
	config   *config.Config
	channels *trades.Channels
	policy   models.QuorumPolicy

	asset  string
	venues []config.VenueConfig

	builders map[models.VenueKey]*bars.Builder
	trackers map[models.VenueKey]*telemetry.Tracker
	stale    map[models.VenueKey]time.Duration

	totalSpot int
	totalPerp int

	adapters      []venue.Adapter
	adapterCancel context.CancelFunc

	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	// Derived state, replaced wholesale by recompute.
	state State

	// Metrics
	inputVersion  uint64
	tradesApplied int64
	tradesSkipped int64
	barsClosed    int64
	gapsRecorded  int64
	recomputes    int64
	totalOutliers int64

	subMu   sync.Mutex
	subs    map[int]chan models.CompositeUpdate
	nextSub int
}

// New builds an engine for the enabled venues in cfg. The initial state is
// derived immediately so accessors are meaningful before Start.
func New(cfg *config.Config, ch *trades.Channels) (*Engine, error) {
	policy, err := composite.ProfileByName(cfg.Composite.QuorumProfile)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:   cfg,
		channels: ch,
		policy:   policy,
		asset:    cfg.Engine.Asset,
		builders: make(map[models.VenueKey]*bars.Builder),
		trackers: make(map[models.VenueKey]*telemetry.Tracker),
		stale:    make(map[models.VenueKey]time.Duration),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		subs:     make(map[int]chan models.CompositeUpdate),
	}

	now := time.Now()
	for _, vc := range cfg.Venues {
		if !vc.Enabled {
			continue
		}
		key := vc.Key()
		if _, exists := e.builders[key]; exists {
			return nil, fmt.Errorf("duplicate venue %s", key)
		}
		e.venues = append(e.venues, vc)
		e.builders[key] = bars.NewBuilder(key, cfg.Bars.HistoryCap, cfg.Bars.TradeCap)
		e.trackers[key] = telemetry.NewTracker(key, now)
		e.stale[key] = vc.EffectiveStaleThreshold()
		if key.Market == models.MarketSpot {
			e.totalSpot++
		} else {
			e.totalPerp++
		}
	}
	if len(e.venues) == 0 {
		return nil, fmt.Errorf("no venues enabled")
	}

	e.recompute(now)
	return e, nil
}

// Start backfills bar history, starts the venue adapters and launches the
// engine loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	log := e.log.WithComponent("engine").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"asset":  e.asset,
		"venues": len(e.venues),
		"quorum": e.config.Composite.QuorumProfile,
	}).Info("starting engine")

	if e.config.Engine.Backfill.Enabled {
		e.backfill(e.ctx)
	}

	if err := e.startAdapters(e.ctx); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		e.cancel()
		return err
	}

	e.wg.Add(1)
	go e.run()

	log.Info("engine started successfully")
	return nil
}

// Stop tears the engine down: adapters first so the trade flow stops, then
// the run loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	e.log.WithComponent("engine").Info("stopping engine")

	e.stopAdapters()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	e.log.WithComponent("engine").Info("engine stopped")
}

func (e *Engine) run() {
	defer e.wg.Done()

	log := e.log.WithComponent("engine")
	log.Info("engine loop started")

	recomputeTicker := time.NewTicker(e.config.Engine.RecomputeInterval)
	defer recomputeTicker.Stop()

	reportTicker := time.NewTicker(reportInterval)
	defer reportTicker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			log.Info("engine loop stopped due to context cancellation")
			return
		case trade, ok := <-e.channels.Trades:
			if !ok {
				log.Info("trade channel closed, engine loop stopping")
				return
			}
			e.applyTrade(trade)
		case ev, ok := <-e.channels.Events:
			if !ok {
				log.Info("event channel closed, engine loop stopping")
				return
			}
			e.applyEvent(ev)
		case <-recomputeTicker.C:
			e.recompute(time.Now())
		case <-reportTicker.C:
			e.reportMetrics()
		}
	}
}

// applyTrade folds one normalized trade into its venue's builder. Trades for
// a different asset (buffered across an asset switch) and trades older than
// the event-age horizon are skipped. A future-skewed timestamp is logged but
// the trade still counts: the venue's clock is authoritative for bar times.
func (e *Engine) applyTrade(trade models.Trade) {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	builder, ok := e.builders[trade.Venue]
	if !ok || trade.Asset != e.asset {
		e.tradesSkipped++
		return
	}

	if age := now.Sub(trade.Timestamp); age > e.config.Engine.MaxEventAge {
		e.tradesSkipped++
		e.log.WithComponent("engine").WithFields(logger.Fields{
			"venue":  trade.Venue.VenueID,
			"market": string(trade.Venue.Market),
			"age":    age.String(),
		}).Warn("dropping trade older than max event age")
		return
	}
	if skew := trade.Timestamp.Sub(now); skew > e.config.Engine.MaxFutureSkew {
		e.log.WithComponent("engine").WithFields(logger.Fields{
			"venue":  trade.Venue.VenueID,
			"market": string(trade.Venue.Market),
			"skew":   skew.String(),
		}).Warn("trade timestamp ahead of local clock")
	}

	closed, gaps, applied := builder.Apply(trade)
	if !applied {
		e.tradesSkipped++
		e.log.WithComponent("engine").WithFields(logger.Fields{
			"venue":  trade.Venue.VenueID,
			"market": string(trade.Venue.Market),
		}).Debug("trade for an already closed interval dropped")
		return
	}

	e.tradesApplied++
	e.inputVersion++
	if closed != nil {
		e.barsClosed++
	}
	if gaps > 0 {
		e.gapsRecorded += int64(gaps)
		e.trackers[trade.Venue].AddGaps(gaps)
	}
}

// applyEvent reacts to a venue connection transition. Losing the connection
// invalidates the venue's in-flight partial bar; the recompute that follows
// lets the filter see the new state without waiting for the next tick.
func (e *Engine) applyEvent(ev models.VenueStateEvent) {
	e.mu.Lock()
	e.inputVersion++
	discarded := 0
	if ev.State == models.ConnDisconnected || ev.State == models.ConnError {
		if builder, ok := e.builders[ev.Venue]; ok {
			discarded = builder.Discard()
			if discarded > 0 {
				e.gapsRecorded += int64(discarded)
				e.trackers[ev.Venue].AddGaps(discarded)
			}
		}
	}
	e.mu.Unlock()

	e.log.WithComponent("engine").WithFields(logger.Fields{
		"venue":  ev.Venue.VenueID,
		"market": string(ev.Venue.Market),
		"state":  string(ev.State),
		"gaps":   discarded,
	}).Info("venue state changed")

	e.recompute(time.Now())
}

func (e *Engine) reportMetrics() {
	e.mu.RLock()
	stats := metrics.EngineLoopMetrics{
		TradesApplied:   e.tradesApplied,
		TradesSkipped:   e.tradesSkipped,
		BarsClosed:      e.barsClosed,
		GapsRecorded:    e.gapsRecorded,
		Recomputes:      e.recomputes,
		TradeChannelLen: len(e.channels.Trades),
		TradeChannelCap: cap(e.channels.Trades),
		EventChannelLen: len(e.channels.Events),
		EventChannelCap: cap(e.channels.Events),
	}
	venueList := e.venues
	e.mu.RUnlock()

	metrics.ReportEngineMetrics(e.log, stats)

	now := time.Now()
	for _, vc := range venueList {
		metrics.ReportVenueTelemetry(e.log, e.trackers[vc.Key()].Snapshot(now))
	}
}
