package metrics

import (
	"context"
	"time"

	"pricefuse/internal/channel/trades"
	"pricefuse/logger"
)

// StartChannelSizeMetrics emits occupancy metrics for the trade and event
// channel buffers. Metrics are logged every `interval` until the context is
// cancelled. When interval <=0, a one-second cadence is used.
func StartChannelSizeMetrics(ctx context.Context, channels *trades.Channels, interval time.Duration) {
	if !IsFeatureEnabled(FeatureChannelSize) {
		return
	}
	if channels == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "channel_buffers"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				EmitMetric(log, component, "trades_buffer_length", len(channels.Trades), "gauge", logger.Fields{
					"buffer":   "trades",
					"capacity": cap(channels.Trades),
				})
				EmitMetric(log, component, "events_buffer_length", len(channels.Events), "gauge", logger.Fields{
					"buffer":   "events",
					"capacity": cap(channels.Events),
				})
			}
		}
	}()
}
