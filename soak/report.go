package soak

import (
	"fmt"
	"sort"
	"time"

	"pricefuse/models"
)

// Report is the validation artifact one soak run produces: run metadata, the
// policy configuration in effect, every collected snapshot and the summary
// derived from them. The summary is recomputable from Snapshots alone.
type Report struct {
	RunID        string                `json:"run_id"`
	Asset        string                `json:"asset"`
	StartTime    time.Time             `json:"start_time"`
	EndTime      time.Time             `json:"end_time"`
	Backgrounded bool                  `json:"backgrounded"`
	Config       models.PolicySnapshot `json:"config"`
	Snapshots    []models.SoakSnapshot `json:"snapshots"`
	Summary      Summary               `json:"summary"`
}

// Summary condenses a soak run into the reliability verdict the report
// exists for.
type Summary struct {
	Samples          int                     `json:"samples"`
	DistinctVersions int                     `json:"distinct_versions"`
	Spot             LegSummary              `json:"spot"`
	Perp             LegSummary              `json:"perp"`
	Basis            BasisSummary            `json:"basis"`
	Venues           map[string]VenueSummary `json:"venues"`
	Notes            []string                `json:"notes"`
}

// VenueSummary aggregates one venue's telemetry across the run. Reconnects
// and TradesObserved are last-minus-first deltas, clamped at zero when a
// session reset lowered the counters mid-run.
type VenueSummary struct {
	ConnectedPercent float64 `json:"connected_percent"`
	Reconnects       int64   `json:"reconnects"`
	MaxGapCount      int64   `json:"max_gap_count"`
	TradesObserved   int64   `json:"trades_observed"`
}

// LegSummary describes how often one market leg had a publishable price and
// how its degraded time splits by reason.
type LegSummary struct {
	PriceAvailablePercent float64        `json:"price_available_percent"`
	DegradedPercent       float64        `json:"degraded_percent"`
	DegradedReasons       map[string]int `json:"degraded_reasons,omitempty"`
}

// BasisSummary covers the samples where both legs produced a price.
type BasisSummary struct {
	Samples int      `json:"samples"`
	MinBps  *float64 `json:"min_bps,omitempty"`
	MaxBps  *float64 `json:"max_bps,omitempty"`
	MeanBps *float64 `json:"mean_bps,omitempty"`
}

type venueAccumulator struct {
	samples   int
	connected int
	first     models.VenueTelemetry
	last      models.VenueTelemetry
	maxGaps   int64
}

// BuildSummary derives the run summary from the snapshot list alone, so a
// stored report's summary can always be reproduced and audited.
func BuildSummary(snapshots []models.SoakSnapshot) Summary {
	summary := Summary{
		Samples: len(snapshots),
		Spot:    LegSummary{DegradedReasons: make(map[string]int)},
		Perp:    LegSummary{DegradedReasons: make(map[string]int)},
		Venues:  make(map[string]VenueSummary),
		Notes:   []string{},
	}
	if len(snapshots) == 0 {
		summary.Notes = append(summary.Notes, "no samples collected")
		return summary
	}

	versions := make(map[uint64]struct{}, len(snapshots))
	venues := make(map[string]*venueAccumulator)

	var spotAvailable, spotDegraded, perpAvailable, perpDegraded int
	var basisSamples int
	var basisSum, basisMin, basisMax float64

	for _, snap := range snapshots {
		versions[snap.Version] = struct{}{}

		if snap.Spot.Price != nil {
			spotAvailable++
		}
		if snap.Spot.Degraded {
			spotDegraded++
			summary.Spot.DegradedReasons[string(snap.Spot.Reason)]++
		}
		if snap.Perp.Price != nil {
			perpAvailable++
		}
		if snap.Perp.Degraded {
			perpDegraded++
			summary.Perp.DegradedReasons[string(snap.Perp.Reason)]++
		}

		if snap.BasisBps != nil {
			v := *snap.BasisBps
			if basisSamples == 0 || v < basisMin {
				basisMin = v
			}
			if basisSamples == 0 || v > basisMax {
				basisMax = v
			}
			basisSum += v
			basisSamples++
		}

		for _, vt := range snap.Venues {
			key := vt.Venue.String()
			acc, ok := venues[key]
			if !ok {
				acc = &venueAccumulator{first: vt}
				venues[key] = acc
			}
			acc.samples++
			if vt.State == models.ConnConnected {
				acc.connected++
			}
			if vt.GapCount > acc.maxGaps {
				acc.maxGaps = vt.GapCount
			}
			acc.last = vt
		}
	}

	summary.DistinctVersions = len(versions)

	total := float64(len(snapshots))
	summary.Spot.PriceAvailablePercent = 100 * float64(spotAvailable) / total
	summary.Spot.DegradedPercent = 100 * float64(spotDegraded) / total
	summary.Perp.PriceAvailablePercent = 100 * float64(perpAvailable) / total
	summary.Perp.DegradedPercent = 100 * float64(perpDegraded) / total

	if basisSamples > 0 {
		mean := basisSum / float64(basisSamples)
		summary.Basis = BasisSummary{
			Samples: basisSamples,
			MinBps:  &basisMin,
			MaxBps:  &basisMax,
			MeanBps: &mean,
		}
	}

	for key, acc := range venues {
		vs := VenueSummary{
			ConnectedPercent: 100 * float64(acc.connected) / float64(acc.samples),
			Reconnects:       max(acc.last.ReconnectCount-acc.first.ReconnectCount, 0),
			MaxGapCount:      acc.maxGaps,
			TradesObserved:   max(acc.last.TradeCount-acc.first.TradeCount, 0),
		}
		summary.Venues[key] = vs

		if acc.connected == 0 {
			summary.Notes = append(summary.Notes, fmt.Sprintf("venue %s never connected", key))
		}
	}

	if len(snapshots) > 1 && summary.DistinctVersions == 1 {
		summary.Notes = append(summary.Notes, "engine state version never advanced across the run")
	}
	if spotDegraded == len(snapshots) {
		summary.Notes = append(summary.Notes, "spot composite degraded for the entire run")
	}
	if perpDegraded == len(snapshots) {
		summary.Notes = append(summary.Notes, "perp composite degraded for the entire run")
	}

	sort.Strings(summary.Notes)
	return summary
}
