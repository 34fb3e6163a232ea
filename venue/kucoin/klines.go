package kucoin

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
	Code string      `json:"code"`
	Data [][]float64 `json:"data"`
}

// Klines fetches up to limit recent 1m klines for the contract, oldest
// first. Kline volumes arrive in contract lots and are scaled by the
// contract multiplier so they line up with the live execution stream.
func Klines(ctx context.Context, cfg config.VenueConfig, symbol string, limit int) ([]models.Bar, error) {
	multiplier, err := fetchMultiplier(ctx, cfg.RestURL, symbol)
	if err != nil {
		multiplier = 1
	}

	to := time.Now().UTC().Truncate(time.Minute)
	from := to.Add(-time.Duration(limit) * time.Minute)

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("granularity", "1")
	query.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
	query.Set("to", strconv.FormatInt(to.UnixMilli(), 10))
	reqURL := fmt.Sprintf("%s/api/v1/kline/query?%s", cfg.RestURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build kline request: %w", err)
	}

	res, err := klineHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch kucoin klines for %s: %w", symbol, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kucoin kline request returned status %d", res.StatusCode)
	}

	var payload klineResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode kucoin kline response: %w", err)
	}
	if payload.Code != "200000" {
		return nil, fmt.Errorf("kucoin kline request failed with code %s", payload.Code)
	}

	return barsFromKlineRows(payload.Data, multiplier)
}

// barsFromKlineRows converts raw kline rows into bars. Rows arrive oldest
// first as [time ms, open, high, low, close, volume].
func barsFromKlineRows(rows [][]float64, multiplier float64) ([]models.Bar, error) {
	if multiplier <= 0 {
		multiplier = 1
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row has %d fields, want 6", len(row))
		}

		bars = append(bars, models.Bar{
			StartTime: time.UnixMilli(int64(row[0])).UTC(),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5] * multiplier,
			IsPartial: false,
		})
	}
	return bars, nil
}
