package models

import "time"

// VenueTelemetry is a point-in-time health readout for one venue adapter.
// UptimePercent accumulates connected time across reconnects within the
// current session. StalenessSeconds is the age of the last market message
// and is tracked independently of connection state.
type VenueTelemetry struct {
	Venue            VenueKey  `json:"venue"`
	State            ConnState `json:"state"`
	SessionStart     time.Time `json:"session_start"`
	ConnectedAt      time.Time `json:"connected_at,omitempty"`
	LastMessageAt    time.Time `json:"last_message_at,omitempty"`
	StalenessSeconds float64   `json:"staleness_seconds"`
	MessageCount     int64     `json:"message_count"`
	TradeCount       int64     `json:"trade_count"`
	DroppedCount     int64     `json:"dropped_count"`
	ReconnectCount   int64     `json:"reconnect_count"`
	GapCount         int64     `json:"gap_count"`
	UptimePercent    float64   `json:"uptime_percent"`
	MessagesPerSec   float64   `json:"messages_per_sec"`
}

// HealthStatus is the rolled-up system health level.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// SystemHealth is the cross-venue telemetry rollup. Overall is unhealthy
// when no venue is connected, degraded when some are, healthy when all are.
type SystemHealth struct {
	Overall        HealthStatus `json:"overall"`
	ConnectedSpot  int          `json:"connected_spot"`
	ConnectedPerp  int          `json:"connected_perp"`
	TotalSpot      int          `json:"total_spot"`
	TotalPerp      int          `json:"total_perp"`
	TotalGaps      int64        `json:"total_gaps"`
	TotalReconnect int64        `json:"total_reconnects"`
	TotalDropped   int64        `json:"total_dropped"`
	TotalOutliers  int64        `json:"total_outliers"`
}

// Connected returns the total connected adapter count across both legs.
func (h SystemHealth) Connected() int {
	return h.ConnectedSpot + h.ConnectedPerp
}

// Total returns the total configured adapter count across both legs.
func (h SystemHealth) Total() int {
	return h.TotalSpot + h.TotalPerp
}
