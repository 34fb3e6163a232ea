package composite

import (
	"sort"
	"time"

	"pricefuse/models"
)

// Bars aligns per-venue bar histories by bar start time and aggregates every
// bucket that meets quorum into one composite bar. Buckets below quorum are
// dropped, never padded; venues with no bar for an interval simply do not
// contribute to it. Output is ordered by start time.
func Bars(histories map[models.VenueKey][]models.Bar, policy models.QuorumPolicy) []models.CompositeBar {
	required := policy.MinQuorum
	if policy.AllowSingleSource {
		required = 1
	}
	if required < 1 {
		required = 1
	}

	buckets := make(map[int64][]models.Bar)
	for _, history := range histories {
		for _, bar := range history {
			key := bar.StartTime.Unix()
			buckets[key] = append(buckets[key], bar)
		}
	}

	keys := make([]int64, 0, len(buckets))
	for key, bars := range buckets {
		if len(bars) >= required {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]models.CompositeBar, 0, len(keys))
	for _, key := range keys {
		bars := buckets[key]

		opens := make([]float64, 0, len(bars))
		closes := make([]float64, 0, len(bars))
		high := bars[0].High
		low := bars[0].Low
		volume := 0.0
		for _, bar := range bars {
			opens = append(opens, bar.Open)
			closes = append(closes, bar.Close)
			if bar.High > high {
				high = bar.High
			}
			if bar.Low < low {
				low = bar.Low
			}
			volume += bar.Volume
		}

		out = append(out, models.CompositeBar{
			StartTime:  time.Unix(key, 0).UTC(),
			Open:       Median(opens),
			High:       high,
			Low:        low,
			Close:      Median(closes),
			Volume:     volume,
			VenueCount: len(bars),
		})
	}
	return out
}
