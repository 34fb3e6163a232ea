package metrics

import "pricefuse/logger"

// EngineLoopMetrics holds channel and recompute statistics for the engine loop.
type EngineLoopMetrics struct {
	TradesApplied   int64
	TradesSkipped   int64
	BarsClosed      int64
	GapsRecorded    int64
	Recomputes      int64
	TradeChannelLen int
	TradeChannelCap int
	EventChannelLen int
	EventChannelCap int
}

// ReportEngineMetrics emits the engine loop statistics as individual metrics
// plus one combined log line.
func ReportEngineMetrics(log *logger.Log, stats EngineLoopMetrics) {
	l := log.WithComponent("engine")

	skipRate := float64(0)
	if stats.TradesApplied+stats.TradesSkipped > 0 {
		skipRate = float64(stats.TradesSkipped) / float64(stats.TradesApplied+stats.TradesSkipped)
	}

	l.LogMetric("engine", "trades_applied", stats.TradesApplied, "counter", logger.Fields{})
	l.LogMetric("engine", "trades_skipped", stats.TradesSkipped, "counter", logger.Fields{})
	l.LogMetric("engine", "bars_closed", stats.BarsClosed, "counter", logger.Fields{})
	l.LogMetric("engine", "gaps_recorded", stats.GapsRecorded, "counter", logger.Fields{})
	l.LogMetric("engine", "recomputes", stats.Recomputes, "counter", logger.Fields{})
	l.LogMetric("engine", "trade_skip_rate", skipRate, "gauge", logger.Fields{})

	l.WithFields(logger.Fields{
		"trades_applied":    stats.TradesApplied,
		"trades_skipped":    stats.TradesSkipped,
		"bars_closed":       stats.BarsClosed,
		"gaps_recorded":     stats.GapsRecorded,
		"recomputes":        stats.Recomputes,
		"trade_channel_len": stats.TradeChannelLen,
		"trade_channel_cap": stats.TradeChannelCap,
		"event_channel_len": stats.EventChannelLen,
		"event_channel_cap": stats.EventChannelCap,
	}).Info("engine loop statistics")
}
