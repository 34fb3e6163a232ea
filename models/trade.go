package models

import (
	"fmt"
	"time"
)

// MarketType distinguishes the two market legs a venue can serve.
type MarketType string

const (
	MarketSpot MarketType = "spot"
	MarketPerp MarketType = "perp"
)

// Valid reports whether the market type is one of the supported legs.
func (m MarketType) Valid() bool {
	return m == MarketSpot || m == MarketPerp
}

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// VenueKey identifies one adapter instance: a venue serving one market type.
type VenueKey struct {
	VenueID string     `json:"venue_id"`
	Market  MarketType `json:"market"`
}

func (k VenueKey) String() string {
	return fmt.Sprintf("%s:%s", k.VenueID, k.Market)
}

// Trade is the canonical normalized trade produced by every venue adapter.
// Timestamp carries the exchange's event time at millisecond precision,
// ReceivedAt the local receipt time.
type Trade struct {
	Venue      VenueKey  `json:"venue"`
	Asset      string    `json:"asset"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Side       Side      `json:"side"`
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at"`
}

// ConnState is the connection lifecycle state of a venue adapter.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnError        ConnState = "error"
)

// VenueStateEvent is published by adapters on every connection state
// transition so the engine can react immediately rather than waiting for the
// next recompute tick.
type VenueStateEvent struct {
	Venue VenueKey  `json:"venue"`
	State ConnState `json:"state"`
	At    time.Time `json:"at"`
}
