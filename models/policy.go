package models

// PolicySnapshot describes the quorum and filter configuration the engine is
// running with. The API serves it and soak reports embed it so a report stays
// interpretable without the config file that produced it.
type PolicySnapshot struct {
	QuorumProfile       string            `json:"quorum_profile"`
	Policy              QuorumPolicy      `json:"policy"`
	OutlierThresholdBps float64           `json:"outlier_threshold_bps"`
	StaleThresholds     map[string]string `json:"stale_thresholds"`
	RecomputeInterval   string            `json:"recompute_interval"`
	Venues              []string          `json:"venues"`
}
