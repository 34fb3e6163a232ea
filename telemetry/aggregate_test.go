package telemetry

import (
	"testing"

	"pricefuse/models"
)

func venueTel(venueID string, market models.MarketType, state models.ConnState) models.VenueTelemetry {
	return models.VenueTelemetry{
		Venue: models.VenueKey{VenueID: venueID, Market: market},
		State: state,
	}
}

func TestAggregateHealthy(t *testing.T) {
	health := Aggregate([]models.VenueTelemetry{
		venueTel("binance", models.MarketSpot, models.ConnConnected),
		venueTel("bybit", models.MarketSpot, models.ConnConnected),
		venueTel("binance", models.MarketPerp, models.ConnConnected),
		venueTel("okx", models.MarketPerp, models.ConnConnected),
	}, 0)

	if health.Overall != models.HealthHealthy {
		t.Errorf("overall = %s, want healthy", health.Overall)
	}
	if health.ConnectedSpot != 2 || health.TotalSpot != 2 {
		t.Errorf("spot = %d/%d, want 2/2", health.ConnectedSpot, health.TotalSpot)
	}
	if health.ConnectedPerp != 2 || health.TotalPerp != 2 {
		t.Errorf("perp = %d/%d, want 2/2", health.ConnectedPerp, health.TotalPerp)
	}
}

func TestAggregateDegradedWhenSomeDisconnected(t *testing.T) {
	health := Aggregate([]models.VenueTelemetry{
		venueTel("binance", models.MarketSpot, models.ConnConnected),
		venueTel("bybit", models.MarketSpot, models.ConnDisconnected),
		venueTel("binance", models.MarketPerp, models.ConnConnected),
	}, 0)

	if health.Overall != models.HealthDegraded {
		t.Errorf("overall = %s, want degraded", health.Overall)
	}
}

func TestAggregateUnhealthyWhenLegDown(t *testing.T) {
	// Spot fully up, every perp venue down: the dead leg dominates.
	health := Aggregate([]models.VenueTelemetry{
		venueTel("binance", models.MarketSpot, models.ConnConnected),
		venueTel("binance", models.MarketPerp, models.ConnDisconnected),
		venueTel("okx", models.MarketPerp, models.ConnError),
	}, 0)

	if health.Overall != models.HealthUnhealthy {
		t.Errorf("overall = %s, want unhealthy", health.Overall)
	}
	if health.Connected() != 1 || health.Total() != 3 {
		t.Errorf("connected/total = %d/%d, want 1/3", health.Connected(), health.Total())
	}
}

func TestAggregateSumsCounters(t *testing.T) {
	spot := venueTel("binance", models.MarketSpot, models.ConnConnected)
	spot.GapCount = 3
	spot.ReconnectCount = 2
	spot.DroppedCount = 1
	perp := venueTel("okx", models.MarketPerp, models.ConnConnected)
	perp.GapCount = 1
	perp.ReconnectCount = 4

	health := Aggregate([]models.VenueTelemetry{spot, perp}, 7)

	if health.TotalGaps != 4 {
		t.Errorf("gaps = %d, want 4", health.TotalGaps)
	}
	if health.TotalReconnect != 6 {
		t.Errorf("reconnects = %d, want 6", health.TotalReconnect)
	}
	if health.TotalDropped != 1 {
		t.Errorf("dropped = %d, want 1", health.TotalDropped)
	}
	if health.TotalOutliers != 7 {
		t.Errorf("outliers = %d, want 7", health.TotalOutliers)
	}
}
