package composite

import (
	"time"

	"pricefuse/models"
)

// Price applies the quorum policy to a filter result and produces the
// composite price for one market leg. The published price is the median of
// the included set, not the pre-exclusion median. totalConfigured counts
// every enabled venue for the leg, connected or not.
func Price(asset string, market models.MarketType, result FilterResult, policy models.QuorumPolicy, totalConfigured int, now time.Time) models.CompositePrice {
	included := len(result.Included)

	contributions := make([]models.VenueContribution, 0, included+len(result.Excluded))
	contributions = append(contributions, result.Included...)
	contributions = append(contributions, result.Excluded...)

	out := models.CompositePrice{
		Asset:         asset,
		Market:        market,
		Time:          now,
		Median:        result.Median,
		IncludedCount: included,
		TotalVenues:   totalConfigured,
		Contributions: contributions,
	}

	// Below minimum quorum the composite is withheld outright unless the
	// policy's single-source allowance applies. The reason is always
	// venue_disconnected here: being under quorum dominates whatever mix of
	// staleness and outliers caused it.
	if included < policy.MinQuorum && (!policy.AllowSingleSource || included == 0) {
		out.Degraded = true
		out.Reason = models.DegradedVenueDisconnected
		return out
	}

	price := Median(result.IncludedPrices())
	out.Price = &price
	out.Degraded = true

	switch {
	case included == 1 && policy.AllowSingleSource:
		out.Reason = models.DegradedSingleSource
	case included < policy.PreferredQuorum:
		out.Reason = models.DegradedBelowPreferred
	case included < totalConfigured:
		out.Reason = exclusionReason(result)
	default:
		out.Degraded = false
		out.Reason = models.DegradedNone
	}
	return out
}

// exclusionReason picks the dominant reason when quorum is healthy but some
// venues were excluded: outliers outrank staleness, which outranks
// disconnection. Venues that are connected but have produced no price yet
// fall into the disconnected bucket.
func exclusionReason(result FilterResult) models.DegradedReason {
	switch {
	case result.Outliers > 0:
		return models.DegradedVenueOutlier
	case result.Stale > 0:
		return models.DegradedVenueStale
	default:
		return models.DegradedVenueDisconnected
	}
}
