package config

import (
	"fmt"
	"time"

	"pricefuse/models"
)

// VenueConfig describes one adapter instance: a venue serving one market
// leg. Symbol overrides the wire symbol derived from engine.asset and
// engine.quote; StaleThreshold overrides the venue's built-in staleness
// bound.
type VenueConfig struct {
	ID             string        `yaml:"id"`
	Market         string        `yaml:"market"`
	Enabled        bool          `yaml:"enabled"`
	WsURL          string        `yaml:"ws_url"`
	RestURL        string        `yaml:"rest_url"`
	Symbol         string        `yaml:"symbol"`
	StaleThreshold time.Duration `yaml:"stale_threshold"`
}

// Key returns the venue's identity used throughout the engine.
func (v VenueConfig) Key() models.VenueKey {
	return models.VenueKey{VenueID: v.ID, Market: models.MarketType(v.Market)}
}

// defaultStaleThresholds reflects observed publish cadence per venue: the
// high-volume venues push trades near-continuously, kucoin futures can sit
// quiet for tens of seconds on slow markets.
var defaultStaleThresholds = map[string]time.Duration{
	"binance": 10 * time.Second,
	"bybit":   10 * time.Second,
	"okx":     20 * time.Second,
	"kucoin":  30 * time.Second,
}

// EffectiveStaleThreshold returns the configured staleness bound, falling
// back to the per-venue default.
func (v VenueConfig) EffectiveStaleThreshold() time.Duration {
	if v.StaleThreshold > 0 {
		return v.StaleThreshold
	}
	if d, ok := defaultStaleThresholds[v.ID]; ok {
		return d
	}
	return 10 * time.Second
}

// DefaultVenues returns the reference venue set: binance, bybit and okx on
// both legs, kucoin futures on the perp leg only.
func DefaultVenues() []VenueConfig {
	return []VenueConfig{
		{
			ID:      "binance",
			Market:  string(models.MarketSpot),
			Enabled: true,
			RestURL: "https://api.binance.com",
		},
		{
			ID:      "binance",
			Market:  string(models.MarketPerp),
			Enabled: true,
			RestURL: "https://fapi.binance.com",
		},
		{
			ID:      "bybit",
			Market:  string(models.MarketSpot),
			Enabled: true,
			WsURL:   "wss://stream.bybit.com/v5/public/spot",
			RestURL: "https://api.bybit.com",
		},
		{
			ID:      "bybit",
			Market:  string(models.MarketPerp),
			Enabled: true,
			WsURL:   "wss://stream.bybit.com/v5/public/linear",
			RestURL: "https://api.bybit.com",
		},
		{
			ID:      "okx",
			Market:  string(models.MarketSpot),
			Enabled: true,
			WsURL:   "wss://ws.okx.com:8443/ws/v5/public",
			RestURL: "https://www.okx.com",
		},
		{
			ID:      "okx",
			Market:  string(models.MarketPerp),
			Enabled: true,
			WsURL:   "wss://ws.okx.com:8443/ws/v5/public",
			RestURL: "https://www.okx.com",
		},
		{
			ID:      "kucoin",
			Market:  string(models.MarketPerp),
			Enabled: true,
			RestURL: "https://api-futures.kucoin.com",
		},
	}
}

func validateVenues(venues []VenueConfig) error {
	if len(venues) == 0 {
		return fmt.Errorf("at least one venue must be configured")
	}

	seen := make(map[models.VenueKey]bool, len(venues))
	enabled := 0
	for _, v := range venues {
		switch v.ID {
		case "binance", "bybit", "okx", "kucoin":
		default:
			return fmt.Errorf("venue id '%s' is not supported", v.ID)
		}
		if !models.MarketType(v.Market).Valid() {
			return fmt.Errorf("venue %s market '%s' is invalid (want spot or perp)", v.ID, v.Market)
		}
		if v.ID == "kucoin" && models.MarketType(v.Market) != models.MarketPerp {
			return fmt.Errorf("venue kucoin only supports the perp market")
		}
		key := v.Key()
		if seen[key] {
			return fmt.Errorf("venue %s is configured twice", key)
		}
		seen[key] = true
		if v.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one venue must be enabled")
	}
	return nil
}

// EnabledVenues filters the configured venues down to the enabled ones,
// optionally restricted to one market leg.
func EnabledVenues(venues []VenueConfig, market models.MarketType) []VenueConfig {
	out := make([]VenueConfig, 0, len(venues))
	for _, v := range venues {
		if !v.Enabled {
			continue
		}
		if market != "" && models.MarketType(v.Market) != market {
			continue
		}
		out = append(out, v)
	}
	return out
}
