package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	futures "github.com/adshao/go-binance/v2/futures"

	"pricefuse/config"
	"pricefuse/models"
)

const klineInterval = "1m"

var klineHTTPClient = &http.Client{Timeout: 15 * time.Second}

// SpotKlines fetches up to limit recent 1m spot klines for symbol, oldest
// first. The last element may cover the in-progress minute; the caller
// decides whether to keep it.
func SpotKlines(ctx context.Context, cfg config.VenueConfig, symbol string, limit int) ([]models.Bar, error) {
	client := binance.NewClient("", "")
	client.HTTPClient = klineHTTPClient
	if cfg.RestURL != "" {
		client.BaseURL = cfg.RestURL
	}

	klines, err := client.NewKlinesService().
		Symbol(symbol).
		Interval(klineInterval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch spot klines for %s: %w", symbol, err)
	}

	bars := make([]models.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := barFromKline(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.TradeNum)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// PerpKlines fetches up to limit recent 1m futures klines for symbol, oldest
// first.
func PerpKlines(ctx context.Context, cfg config.VenueConfig, symbol string, limit int) ([]models.Bar, error) {
	client := futures.NewClient("", "")
	client.HTTPClient = klineHTTPClient
	if cfg.RestURL != "" {
		client.SetApiEndpoint(cfg.RestURL)
	}

	klines, err := client.NewKlinesService().
		Symbol(symbol).
		Interval(klineInterval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch perp klines for %s: %w", symbol, err)
	}

	bars := make([]models.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := barFromKline(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.TradeNum)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func barFromKline(openTimeMs int64, open, high, low, closePrice, volume string, tradeCount int64) (models.Bar, error) {
	o, err := strconv.ParseFloat(open, 64)
	if err != nil {
		return models.Bar{}, fmt.Errorf("parse kline open %q: %w", open, err)
	}
	h, err := strconv.ParseFloat(high, 64)
	if err != nil {
		return models.Bar{}, fmt.Errorf("parse kline high %q: %w", high, err)
	}
	l, err := strconv.ParseFloat(low, 64)
	if err != nil {
		return models.Bar{}, fmt.Errorf("parse kline low %q: %w", low, err)
	}
	c, err := strconv.ParseFloat(closePrice, 64)
	if err != nil {
		return models.Bar{}, fmt.Errorf("parse kline close %q: %w", closePrice, err)
	}
	v, err := strconv.ParseFloat(volume, 64)
	if err != nil {
		return models.Bar{}, fmt.Errorf("parse kline volume %q: %w", volume, err)
	}

	return models.Bar{
		StartTime:  time.UnixMilli(openTimeMs).UTC(),
		Open:       o,
		High:       h,
		Low:        l,
		Close:      c,
		Volume:     v,
		TradeCount: tradeCount,
		IsPartial:  false,
	}, nil
}
