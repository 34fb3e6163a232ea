package telemetry

import (
	"pricefuse/models"
)

// Aggregate rolls per-venue telemetry into one system verdict. Each market
// leg is judged on its own (unhealthy with zero connected venues, degraded
// with some, healthy with all) and the overall status is the worse of the
// two. outlierExclusions is the engine's cumulative exclusion count, summed
// here so the status surface carries it alongside gaps and reconnects.
func Aggregate(venues []models.VenueTelemetry, outlierExclusions int64) models.SystemHealth {
	health := models.SystemHealth{TotalOutliers: outlierExclusions}

	for _, v := range venues {
		connected := v.State == models.ConnConnected
		switch v.Venue.Market {
		case models.MarketSpot:
			health.TotalSpot++
			if connected {
				health.ConnectedSpot++
			}
		case models.MarketPerp:
			health.TotalPerp++
			if connected {
				health.ConnectedPerp++
			}
		}
		health.TotalGaps += v.GapCount
		health.TotalReconnect += v.ReconnectCount
		health.TotalDropped += v.DroppedCount
	}

	spot := legHealth(health.ConnectedSpot, health.TotalSpot)
	perp := legHealth(health.ConnectedPerp, health.TotalPerp)
	health.Overall = worse(spot, perp)
	return health
}

func legHealth(connected, total int) models.HealthStatus {
	switch {
	case total == 0:
		return models.HealthHealthy
	case connected == 0:
		return models.HealthUnhealthy
	case connected < total:
		return models.HealthDegraded
	default:
		return models.HealthHealthy
	}
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthHealthy:   0,
		models.HealthDegraded:  1,
		models.HealthUnhealthy: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
