package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pricefuse/config"
	"pricefuse/models"
)

var klineHTTPClient = &http.Client{Timeout: 15 * time.Second}

type klineResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string     `json:"category"`
		Symbol   string     `json:"symbol"`
		List     [][]string `json:"list"`
	} `json:"result"`
}

// Klines fetches up to limit recent 1m klines for symbol from the v5 market
// endpoint, oldest first. The category is derived from the configured market
// leg: spot or linear.
func Klines(ctx context.Context, cfg config.VenueConfig, symbol string, limit int) ([]models.Bar, error) {
	category := "spot"
	if models.MarketType(cfg.Market) == models.MarketPerp {
		category = "linear"
	}

	query := url.Values{}
	query.Set("category", category)
	query.Set("symbol", symbol)
	query.Set("interval", "1")
	query.Set("limit", strconv.Itoa(limit))
	reqURL := fmt.Sprintf("%s/v5/market/kline?%s", cfg.RestURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build kline request: %w", err)
	}

	resp, err := klineHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bybit klines for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bybit kline request returned status %d", resp.StatusCode)
	}

	var payload klineResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode bybit kline response: %w", err)
	}
	if payload.RetCode != 0 {
		return nil, fmt.Errorf("bybit kline request failed: %s (retCode %d)", payload.RetMsg, payload.RetCode)
	}

	return barsFromKlineList(payload.Result.List)
}

// barsFromKlineList converts the raw kline rows into bars. The v5 endpoint
// returns rows newest first; the result is reversed into ascending order.
func barsFromKlineList(list [][]string) ([]models.Bar, error) {
	bars := make([]models.Bar, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		row := list[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
		}

		startMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse kline start %q: %w", row[0], err)
		}
		var ohlcv [5]float64
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("parse kline field %q: %w", row[j+1], err)
			}
			ohlcv[j] = v
		}

		bars = append(bars, models.Bar{
			StartTime: time.UnixMilli(startMs).UTC(),
			Open:      ohlcv[0],
			High:      ohlcv[1],
			Low:       ohlcv[2],
			Close:     ohlcv[3],
			Volume:    ohlcv[4],
			IsPartial: false,
		})
	}
	return bars, nil
}
