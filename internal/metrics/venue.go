package metrics

import (
	"pricefuse/logger"
	"pricefuse/models"
)

// ReportVenueTelemetry emits one metric set for a venue adapter snapshot.
// All names carry the venue_ prefix so the whole family can be switched off
// through the venue_events feature.
func ReportVenueTelemetry(log *logger.Log, vt models.VenueTelemetry) {
	component := vt.Venue.VenueID + "_" + string(vt.Venue.Market) + "_trades"
	fields := logger.Fields{
		"venue":  vt.Venue.VenueID,
		"market": string(vt.Venue.Market),
		"state":  string(vt.State),
	}

	EmitMetric(log, component, "venue_uptime_percent", vt.UptimePercent, "gauge", cloneFields(fields))
	EmitMetric(log, component, "venue_staleness_seconds", vt.StalenessSeconds, "gauge", cloneFields(fields))
	EmitMetric(log, component, "venue_messages_per_sec", vt.MessagesPerSec, "gauge", cloneFields(fields))
	EmitMetric(log, component, "venue_reconnects", vt.ReconnectCount, "counter", cloneFields(fields))
	EmitMetric(log, component, "venue_gaps", vt.GapCount, "counter", cloneFields(fields))
	EmitMetric(log, component, "venue_trades", vt.TradeCount, "counter", cloneFields(fields))
}
