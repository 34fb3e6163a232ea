package metrics

import "pricefuse/logger"

// DropMetric identifies the metric name emitted when channel messages are dropped.
type DropMetric string

const (
	// DropMetricTrade records normalized trades dropped on a full trade buffer.
	DropMetricTrade DropMetric = "trades_dropped"
	// DropMetricEvent records venue state events dropped on a full event buffer.
	DropMetricEvent DropMetric = "venue_events_dropped"
	// DropMetricStream records stream updates dropped on a slow push client.
	DropMetricStream DropMetric = "stream_updates_dropped"
)

// EmitDropMetric logs and emits a metric representing a dropped message. The
// metric value is always incremented by one so callers should invoke this helper for
// each dropped message. Optional metadata (venue, market, symbol, stage) is added
// to the metric fields when provided which enables downstream aggregation per
// venue and stream type.
func EmitDropMetric(log *logger.Log, metric DropMetric, venue, market, symbol, stage string) {
	fields := logger.Fields{}
	if venue != "" {
		fields["venue"] = venue
	}
	if market != "" {
		fields["market"] = market
	}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
