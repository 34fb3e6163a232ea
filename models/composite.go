package models

import "time"

// ExclusionReason explains why a venue's price was left out of the composite.
type ExclusionReason string

const (
	ExcludeDisconnected ExclusionReason = "disconnected"
	ExcludeNoData       ExclusionReason = "no_data"
	ExcludeStale        ExclusionReason = "stale"
	ExcludeOutlier      ExclusionReason = "outlier"
)

// DegradedReason classifies how trustworthy a composite price is. Reasons
// are ordered by severity; aggregation picks the most severe applicable one.
type DegradedReason string

const (
	DegradedNone              DegradedReason = "none"
	DegradedSingleSource      DegradedReason = "single_source"
	DegradedBelowPreferred    DegradedReason = "below_preferred_quorum"
	DegradedVenueOutlier      DegradedReason = "venue_outlier"
	DegradedVenueStale        DegradedReason = "venue_stale"
	DegradedVenueDisconnected DegradedReason = "venue_disconnected"
)

// QuorumPolicy governs how many venues must contribute before the composite
// is published, and when it is flagged degraded.
type QuorumPolicy struct {
	MinQuorum         int  `json:"min_quorum" yaml:"min_quorum"`
	PreferredQuorum   int  `json:"preferred_quorum" yaml:"preferred_quorum"`
	AllowSingleSource bool `json:"allow_single_source" yaml:"allow_single_source"`
}

// VenueSnapshot is the engine's per-venue input to the outlier filter: the
// venue's connection state, its latest price if it has produced one, and when
// that price was last updated.
type VenueSnapshot struct {
	Venue      VenueKey  `json:"venue"`
	State      ConnState `json:"state"`
	Price      *float64  `json:"price,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// VenueContribution records how one venue fared in a composite computation.
// DeviationBps is only meaningful for venues that reached the outlier check.
type VenueContribution struct {
	VenueID      string          `json:"venue_id"`
	Price        float64         `json:"price,omitempty"`
	Included     bool            `json:"included"`
	Reason       ExclusionReason `json:"reason,omitempty"`
	DeviationBps float64         `json:"deviation_bps,omitempty"`
}

// CompositePrice is the cross-venue price for one market leg. Price is nil
// when quorum cannot be met. Median is the pre-filter median of valid venue
// prices, kept for diagnostics; the published price is recomputed from the
// included set only.
type CompositePrice struct {
	Asset         string              `json:"asset"`
	Market        MarketType          `json:"market"`
	Price         *float64            `json:"price"`
	Time          time.Time           `json:"time"`
	Degraded      bool                `json:"degraded"`
	Reason        DegradedReason      `json:"degraded_reason"`
	Median        float64             `json:"median,omitempty"`
	IncludedCount int                 `json:"included_count"`
	TotalVenues   int                 `json:"total_venues"`
	Contributions []VenueContribution `json:"contributions,omitempty"`
}

// Summary strips a composite price down to the fields snapshots and stream
// updates carry.
func (c CompositePrice) Summary() CompositeSummary {
	return CompositeSummary{
		Price:         c.Price,
		Degraded:      c.Degraded,
		Reason:        c.Reason,
		IncludedCount: c.IncludedCount,
		TotalVenues:   c.TotalVenues,
	}
}

// CompositeSummary is the compact form of a composite price used in soak
// snapshots and push updates.
type CompositeSummary struct {
	Price         *float64       `json:"price"`
	Degraded      bool           `json:"degraded"`
	Reason        DegradedReason `json:"degraded_reason"`
	IncludedCount int            `json:"included_count"`
	TotalVenues   int            `json:"total_venues"`
}

// CompositeUpdate is one push-stream event: both market legs plus the basis
// derived from them, stamped with the engine state version that produced it.
type CompositeUpdate struct {
	Asset    string           `json:"asset"`
	Time     time.Time        `json:"time"`
	Version  uint64           `json:"version"`
	Spot     CompositeSummary `json:"spot"`
	Perp     CompositeSummary `json:"perp"`
	BasisBps *float64         `json:"basis_bps"`
	Health   HealthStatus     `json:"health"`
}
