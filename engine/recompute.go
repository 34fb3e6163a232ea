package engine

import (
	"time"

	"pricefuse/composite"
	"pricefuse/internal/metrics"
	"pricefuse/logger"
	"pricefuse/models"
	"pricefuse/telemetry"
)

// recompute re-derives the full chain (filter, composite, bars, basis,
// telemetry) from the current inputs and stores the result as the new State.
// Derivations are pure, so recomputing redundantly is harmless; the ticker
// calls this unconditionally because staleness classification moves with
// wall time even when no input changed.
func (e *Engine) recompute(now time.Time) {
	e.mu.Lock()

	threshold := e.config.Composite.OutlierThresholdBps

	spotFilter := composite.FilterVenues(e.legSnapshots(models.MarketSpot), now, e.stale, threshold)
	perpFilter := composite.FilterVenues(e.legSnapshots(models.MarketPerp), now, e.stale, threshold)
	e.totalOutliers += int64(spotFilter.Outliers + perpFilter.Outliers)

	spot := composite.Price(e.asset, models.MarketSpot, spotFilter, e.policy, e.totalSpot, now)
	perp := composite.Price(e.asset, models.MarketPerp, perpFilter, e.policy, e.totalPerp, now)
	basis := composite.Basis(e.asset, spot, perp, now)

	spotBars := composite.Bars(e.legHistories(models.MarketSpot), e.policy)
	perpBars := composite.Bars(e.legHistories(models.MarketPerp), e.policy)

	venueStats := make([]models.VenueTelemetry, 0, len(e.venues))
	for _, vc := range e.venues {
		venueStats = append(venueStats, e.trackers[vc.Key()].Snapshot(now))
	}
	health := telemetry.Aggregate(venueStats, e.totalOutliers)

	e.recomputes++
	e.state = State{
		Asset:       e.asset,
		Version:     e.inputVersion,
		Time:        now,
		Spot:        spot,
		Perp:        perp,
		SpotBars:    spotBars,
		PerpBars:    perpBars,
		Basis:       basis,
		BasisSeries: composite.BasisSeries(spotBars, perpBars),
		Venues:      venueStats,
		Health:      health,
	}
	update := e.state.Update()
	e.mu.Unlock()

	metrics.IncrementRecompute()
	logger.IncrementRecompute()
	metrics.ObserveComposite(string(models.MarketSpot), spot.Price, spot.IncludedCount, spot.Degraded)
	metrics.ObserveComposite(string(models.MarketPerp), perp.Price, perp.IncludedCount, perp.Degraded)
	metrics.ObserveBasisBps(basis.BasisBps)

	e.publish(update)
}

// legSnapshots assembles the outlier-filter input for one market leg. The
// price and its update time come from the venue's last applied trade; the
// connection state comes from the tracker, which the adapter updates
// synchronously even when a state event is dropped. Callers hold e.mu.
func (e *Engine) legSnapshots(market models.MarketType) []models.VenueSnapshot {
	snaps := make([]models.VenueSnapshot, 0, len(e.venues))
	for _, vc := range e.venues {
		key := vc.Key()
		if key.Market != market {
			continue
		}
		snap := models.VenueSnapshot{
			Venue: key,
			State: e.trackers[key].State(),
		}
		if price, at, ok := e.builders[key].LastTrade(); ok {
			p := price
			snap.Price = &p
			snap.LastUpdate = at
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// legHistories collects the closed bar history of every venue on one market
// leg, keyed by venue. Callers hold e.mu.
func (e *Engine) legHistories(market models.MarketType) map[models.VenueKey][]models.Bar {
	histories := make(map[models.VenueKey][]models.Bar, len(e.venues))
	for _, vc := range e.venues {
		key := vc.Key()
		if key.Market != market {
			continue
		}
		builder := e.builders[key]
		if builder.HistoryLen() == 0 {
			continue
		}
		histories[key] = builder.History(builder.HistoryLen())
	}
	return histories
}

// Subscribe registers a listener for recompute updates. Sends never block:
// a subscriber that falls behind misses updates rather than stalling the
// engine loop. The returned function cancels the subscription and closes
// the channel.
func (e *Engine) Subscribe(buffer int) (<-chan models.CompositeUpdate, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.CompositeUpdate, buffer)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	return ch, func() {
		e.subMu.Lock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
		e.subMu.Unlock()
	}
}

func (e *Engine) publish(update models.CompositeUpdate) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- update:
		default:
		}
	}
}
