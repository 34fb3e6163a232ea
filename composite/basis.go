package composite

import (
	"time"

	"pricefuse/models"
)

// Basis derives the perp-minus-spot spread from the two composite legs.
// Basis and BasisBps stay nil when either leg has no price; degraded is
// inherited from either leg.
func Basis(asset string, spot, perp models.CompositePrice, now time.Time) models.BasisFeatures {
	out := models.BasisFeatures{
		Asset:    asset,
		Time:     now,
		Degraded: spot.Degraded || perp.Degraded,
	}
	if spot.Price == nil || perp.Price == nil {
		return out
	}

	basis := *perp.Price - *spot.Price
	out.Basis = &basis
	if *spot.Price != 0 {
		bps := 10000 * basis / *spot.Price
		out.BasisBps = &bps
		out.Direction, out.Magnitude = Classify(bps)
	}
	return out
}

// Classify maps a basis in bps to a direction and magnitude band. This is
// presentation logic for dashboards and reports.
func Classify(bps float64) (models.BasisDirection, models.BasisMagnitude) {
	direction := models.BasisNeutral
	if bps > 5 {
		direction = models.BasisContango
	} else if bps < -5 {
		direction = models.BasisBackwardation
	}

	magnitude := models.BasisLarge
	switch a := abs(bps); {
	case a < 10:
		magnitude = models.BasisSmall
	case a < 50:
		magnitude = models.BasisModerate
	}
	return direction, magnitude
}

// BasisSeries joins spot and perp composite bars on exact bar time and
// derives one basis point per shared interval. Intervals present on only
// one side yield nothing; there is no interpolation.
func BasisSeries(spotBars, perpBars []models.CompositeBar) []models.BasisPoint {
	perpByTime := make(map[int64]models.CompositeBar, len(perpBars))
	for _, bar := range perpBars {
		perpByTime[bar.StartTime.Unix()] = bar
	}

	out := make([]models.BasisPoint, 0, len(spotBars))
	for _, spotBar := range spotBars {
		perpBar, ok := perpByTime[spotBar.StartTime.Unix()]
		if !ok || spotBar.Close == 0 {
			continue
		}
		basis := perpBar.Close - spotBar.Close
		out = append(out, models.BasisPoint{
			Time:     spotBar.StartTime,
			Basis:    basis,
			BasisBps: 10000 * basis / spotBar.Close,
		})
	}
	return out
}
