package models

import "time"

// SoakSnapshot is one periodic observation of the whole engine: both
// composite legs, the basis, per-venue telemetry and the health rollup.
// Everything a validation report needs is carried here so report summaries
// can be recomputed from snapshots alone.
type SoakSnapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Asset     string           `json:"asset"`
	Version   uint64           `json:"version"`
	Spot      CompositeSummary `json:"spot"`
	Perp      CompositeSummary `json:"perp"`
	BasisBps  *float64         `json:"basis_bps"`
	Venues    []VenueTelemetry `json:"venues"`
	Health    SystemHealth     `json:"health"`
}
