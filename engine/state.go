package engine

import (
	"sort"
	"time"

	"pricefuse/models"
)

// State is one immutable derivation of the engine's inputs: both composite
// legs, the aligned composite bar histories, the basis, and the telemetry
// rollup, stamped with the input version that produced them. A recompute
// replaces the state wholesale and never mutates a published one.
type State struct {
	Asset       string                  `json:"asset"`
	Version     uint64                  `json:"version"`
	Time        time.Time               `json:"time"`
	Spot        models.CompositePrice   `json:"spot"`
	Perp        models.CompositePrice   `json:"perp"`
	SpotBars    []models.CompositeBar   `json:"spot_bars"`
	PerpBars    []models.CompositeBar   `json:"perp_bars"`
	Basis       models.BasisFeatures    `json:"basis"`
	BasisSeries []models.BasisPoint     `json:"basis_series"`
	Venues      []models.VenueTelemetry `json:"venues"`
	Health      models.SystemHealth     `json:"health"`
}

// Update strips the state down to the compact push-stream form.
func (s State) Update() models.CompositeUpdate {
	return models.CompositeUpdate{
		Asset:    s.Asset,
		Time:     s.Time,
		Version:  s.Version,
		Spot:     s.Spot.Summary(),
		Perp:     s.Perp.Summary(),
		BasisBps: s.Basis.BasisBps,
		Health:   s.Health.Overall,
	}
}

// Snapshot returns the most recent derived state.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Asset returns the asset the engine currently follows.
func (e *Engine) Asset() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.asset
}

// Policy returns the active quorum policy.
func (e *Engine) Policy() models.QuorumPolicy {
	return e.policy
}

// Composite returns the latest composite price for one market leg.
func (e *Engine) Composite(market models.MarketType) models.CompositePrice {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if market == models.MarketPerp {
		return e.state.Perp
	}
	return e.state.Spot
}

// CompositeBars returns up to limit most recent composite bars for one
// market leg, oldest first. A non-positive limit returns the full history.
func (e *Engine) CompositeBars(market models.MarketType, limit int) []models.CompositeBar {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if market == models.MarketPerp {
		return copyBars(e.state.PerpBars, limit)
	}
	return copyBars(e.state.SpotBars, limit)
}

// Basis returns the latest basis features.
func (e *Engine) Basis() models.BasisFeatures {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Basis
}

// BasisHistory returns up to limit most recent basis points, oldest first.
func (e *Engine) BasisHistory(limit int) []models.BasisPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	src := e.state.BasisSeries
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]models.BasisPoint, len(src))
	copy(out, src)
	return out
}

// Telemetry returns the per-venue telemetry from the latest recompute.
func (e *Engine) Telemetry() []models.VenueTelemetry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.VenueTelemetry, len(e.state.Venues))
	copy(out, e.state.Venues)
	return out
}

// Status returns the system health rollup from the latest recompute.
func (e *Engine) Status() models.SystemHealth {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Health
}

// SoakSnapshot assembles the point-in-time observation the soak harness
// samples. Timestamp carries the derivation time, so a wedged engine shows
// up as repeated timestamps across samples.
func (e *Engine) SoakSnapshot() models.SoakSnapshot {
	s := e.Snapshot()
	venues := make([]models.VenueTelemetry, len(s.Venues))
	copy(venues, s.Venues)
	return models.SoakSnapshot{
		Timestamp: s.Time,
		Asset:     s.Asset,
		Version:   s.Version,
		Spot:      s.Spot.Summary(),
		Perp:      s.Perp.Summary(),
		BasisBps:  s.Basis.BasisBps,
		Venues:    venues,
		Health:    s.Health,
	}
}

// PolicySnapshot reports the quorum and filter configuration in effect. The
// thresholds are rendered as duration strings so the payload survives JSON
// round-trips without losing units.
func (e *Engine) PolicySnapshot() models.PolicySnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stale := make(map[string]string, len(e.stale))
	venues := make([]string, 0, len(e.stale))
	for key, threshold := range e.stale {
		stale[key.String()] = threshold.String()
		venues = append(venues, key.String())
	}
	sort.Strings(venues)

	return models.PolicySnapshot{
		QuorumProfile:       e.config.Composite.QuorumProfile,
		Policy:              e.policy,
		OutlierThresholdBps: e.config.Composite.OutlierThresholdBps,
		StaleThresholds:     stale,
		RecomputeInterval:   e.config.Engine.RecomputeInterval.String(),
		Venues:              venues,
	}
}

func copyBars(src []models.CompositeBar, limit int) []models.CompositeBar {
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]models.CompositeBar, len(src))
	copy(out, src)
	return out
}
