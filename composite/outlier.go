package composite

import (
	"sort"
	"time"

	"pricefuse/models"
)

// DefaultOutlierThresholdBps is the deviation from the cross-venue median
// above which a venue price is rejected. Deviation of exactly the threshold
// is still included.
const DefaultOutlierThresholdBps = 100.0

// DefaultStaleThreshold applies to venues without a configured threshold.
const DefaultStaleThreshold = 10 * time.Second

// FilterResult is the outcome of one outlier-filter pass over a market leg.
// Median is the pre-exclusion median of valid venue prices; the composite
// itself is recomputed from Included afterwards.
type FilterResult struct {
	Included []models.VenueContribution
	Excluded []models.VenueContribution

	Median       float64
	Disconnected int
	NoData       int
	Stale        int
	Outliers     int
}

// IncludedPrices returns the prices that survived filtering.
func (r FilterResult) IncludedPrices() []float64 {
	prices := make([]float64, 0, len(r.Included))
	for _, c := range r.Included {
		prices = append(prices, c.Price)
	}
	return prices
}

// FilterVenues partitions one market leg's venue snapshots into included and
// excluded contributors. Venues are excluded in order of precedence:
// disconnected, then missing price, then stale against the per-venue
// threshold, then deviating more than thresholdBps from the median of the
// remaining valid prices.
func FilterVenues(snapshots []models.VenueSnapshot, now time.Time, staleThresholds map[models.VenueKey]time.Duration, thresholdBps float64) FilterResult {
	if thresholdBps <= 0 {
		thresholdBps = DefaultOutlierThresholdBps
	}

	ordered := make([]models.VenueSnapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Venue.VenueID < ordered[j].Venue.VenueID
	})

	result := FilterResult{}
	valid := make([]models.VenueSnapshot, 0, len(ordered))

	for _, snap := range ordered {
		if snap.State != models.ConnConnected {
			contribution := models.VenueContribution{VenueID: snap.Venue.VenueID, Reason: models.ExcludeDisconnected}
			if snap.Price != nil {
				contribution.Price = *snap.Price
			}
			result.Excluded = append(result.Excluded, contribution)
			result.Disconnected++
			continue
		}
		if snap.Price == nil {
			result.Excluded = append(result.Excluded, models.VenueContribution{VenueID: snap.Venue.VenueID, Reason: models.ExcludeNoData})
			result.NoData++
			continue
		}
		threshold, ok := staleThresholds[snap.Venue]
		if !ok || threshold <= 0 {
			threshold = DefaultStaleThreshold
		}
		if now.Sub(snap.LastUpdate) > threshold {
			result.Excluded = append(result.Excluded, models.VenueContribution{
				VenueID: snap.Venue.VenueID,
				Price:   *snap.Price,
				Reason:  models.ExcludeStale,
			})
			result.Stale++
			continue
		}
		valid = append(valid, snap)
	}

	if len(valid) == 0 {
		return result
	}

	prices := make([]float64, 0, len(valid))
	for _, snap := range valid {
		prices = append(prices, *snap.Price)
	}
	result.Median = Median(prices)

	for _, snap := range valid {
		price := *snap.Price
		deviation := 0.0
		if result.Median != 0 {
			deviation = abs(price-result.Median) / result.Median * 10000
		}
		contribution := models.VenueContribution{
			VenueID:      snap.Venue.VenueID,
			Price:        price,
			DeviationBps: deviation,
		}
		if deviation > thresholdBps {
			contribution.Reason = models.ExcludeOutlier
			result.Excluded = append(result.Excluded, contribution)
			result.Outliers++
			continue
		}
		contribution.Included = true
		result.Included = append(result.Included, contribution)
	}

	return result
}

// Median returns the median of values. Even-length inputs average the middle
// pair. The input slice is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
