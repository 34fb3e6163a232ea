package metrics

import (
	"strings"
	"sync"

	"pricefuse/config"
)

// Feature identifies an optional metric family that can be switched off.
type Feature string

const (
	// FeatureChannelSize gates the periodic channel occupancy gauges.
	FeatureChannelSize Feature = "channel_size"
	// FeatureVenueEvents gates per-venue stream lifecycle metrics.
	FeatureVenueEvents Feature = "venue_events"
)

var (
	featuresMu sync.RWMutex
	features   = map[Feature]bool{
		FeatureChannelSize: true,
		FeatureVenueEvents: true,
	}
)

// Configure applies the metrics section of the application configuration.
func Configure(cfg config.MetricsConfig) {
	featuresMu.Lock()
	features[FeatureChannelSize] = cfg.ChannelSize
	features[FeatureVenueEvents] = cfg.VenueEvents
	featuresMu.Unlock()
}

// IsFeatureEnabled reports whether the given metric feature is enabled.
func IsFeatureEnabled(feature Feature) bool {
	featuresMu.RLock()
	defer featuresMu.RUnlock()
	return features[feature]
}

// featureForMetric maps a metric name to the feature that gates it. Metrics
// without a gating feature are always emitted.
func featureForMetric(name string) (Feature, bool) {
	switch {
	case strings.HasSuffix(name, "_buffer_length"):
		return FeatureChannelSize, true
	case strings.HasPrefix(name, "venue_"):
		return FeatureVenueEvents, true
	default:
		return "", false
	}
}
