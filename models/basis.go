package models

import "time"

// BasisDirection labels the sign of the perp-minus-spot basis.
type BasisDirection string

const (
	BasisContango      BasisDirection = "contango"
	BasisBackwardation BasisDirection = "backwardation"
	BasisNeutral       BasisDirection = "neutral"
)

// BasisMagnitude buckets the absolute basis size in bps.
type BasisMagnitude string

const (
	BasisSmall    BasisMagnitude = "small"
	BasisModerate BasisMagnitude = "moderate"
	BasisLarge    BasisMagnitude = "large"
)

// BasisFeatures is the derived perp-minus-spot basis. Basis and BasisBps are
// nil whenever either composite leg is nil. Degraded is true when either leg
// is degraded.
type BasisFeatures struct {
	Asset     string         `json:"asset"`
	Basis     *float64       `json:"basis"`
	BasisBps  *float64       `json:"basis_bps"`
	Time      time.Time      `json:"time"`
	Degraded  bool           `json:"degraded"`
	Direction BasisDirection `json:"direction,omitempty"`
	Magnitude BasisMagnitude `json:"magnitude,omitempty"`
}

// BasisPoint is one element of a historical basis series, derived from the
// composite bar closes of both legs at the same interval.
type BasisPoint struct {
	Time     time.Time `json:"time"`
	Basis    float64   `json:"basis"`
	BasisBps float64   `json:"basis_bps"`
}
