package okx

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

var klineHTTPClient = &http.Client{
	Transport: userAgentTransport{agent: "curl/8.5.0", base: &http.Transport{}},
	Timeout:   15 * time.Second,
}

type candleResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// Klines fetches up to limit recent 1m candles for the instrument, oldest
// first. Unconfirmed candles (the in-progress minute) are dropped.
func Klines(ctx context.Context, cfg config.VenueConfig, symbol string, limit int) ([]models.Bar, error) {
	query := url.Values{}
	query.Set("instId", symbol)
	query.Set("bar", "1m")
	query.Set("limit", strconv.Itoa(limit))
	reqURL := fmt.Sprintf("%s/api/v5/market/candles?%s", cfg.RestURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build candles request: %w", err)
	}

	resp, err := klineHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch okx candles for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("okx candles request returned status %d", resp.StatusCode)
	}

	var payload candleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode okx candles response: %w", err)
	}
	if payload.Code != "0" {
		return nil, fmt.Errorf("okx candles request failed: %s (code %s)", payload.Msg, payload.Code)
	}

	return barsFromCandles(payload.Data)
}

// barsFromCandles converts raw candle rows into bars. Rows arrive newest
// first with a confirm flag in the last position; unconfirmed rows are
// skipped and the result is reversed into ascending order.
func barsFromCandles(rows [][]string) ([]models.Bar, error) {
	bars := make([]models.Bar, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 9 {
			return nil, fmt.Errorf("candle row has %d fields, want 9", len(row))
		}
		if row[8] == "0" {
			continue
		}

		startMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse candle ts %q: %w", row[0], err)
		}
		var ohlcv [5]float64
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("parse candle field %q: %w", row[j+1], err)
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
