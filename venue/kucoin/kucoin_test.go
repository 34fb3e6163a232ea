package kucoin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pricefuse/config"
	"pricefuse/internal/channel/trades"
	"pricefuse/models"
	"pricefuse/telemetry"
)

func perpConfig() config.VenueConfig {
	return config.VenueConfig{
		ID:      "kucoin",
		Market:  string(models.MarketPerp),
		Enabled: true,
		RestURL: "https://api-futures.kucoin.com",
	}
}

func TestTradeReader(t *testing.T) {
	ch := trades.NewChannels(8, 8)
	r := TradeReader(perpConfig(), "BTC", "XBTUSDTM", ch, telemetry.NewTracker(perpConfig().Key(), time.Now().UTC()))
	if r == nil {
		t.Fatal("TradeReader returned nil")
	}
	if got := r.Key(); got.VenueID != "kucoin" || got.Market != models.MarketPerp {
		t.Fatalf("unexpected key %s", got)
	}
	if r.multiplier != 1 {
		t.Fatalf("multiplier = %v, want default 1 before resolution", r.multiplier)
	}
}

func TestTradeFromExecutionScalesLots(t *testing.T) {
	exec := executionData{
		Symbol:    "XBTUSDTM",
		Sequence:  36,
		Side:      "buy",
		MatchSize: 25,
		Price:     64500.5,
		Time:      1553846281766256031,
	}

	trade, err := tradeFromExecution(exec, perpConfig().Key(), "BTC", 0.001)
	if err != nil {
		t.Fatalf("tradeFromExecution returned error: %v", err)
	}
	if trade.Price != 64500.5 {
		t.Errorf("price = %v, want 64500.5", trade.Price)
	}
	if trade.Quantity != 0.025 {
		t.Errorf("quantity = %v, want 0.025 after lot scaling", trade.Quantity)
	}
	if trade.Side != models.SideBuy {
		t.Errorf("side = %s, want buy", trade.Side)
	}
	want := time.Unix(0, 1553846281766256031).UTC()
	if !trade.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v from nanoseconds", trade.Timestamp, want)
	}
}

func TestTradeFromExecutionPrefersTsOverTime(t *testing.T) {
	exec := executionData{
		Side:      "sell",
		MatchSize: 1,
		Price:     100,
		Ts:        1553846281766256031,
		Time:      1,
	}

	trade, err := tradeFromExecution(exec, perpConfig().Key(), "BTC", 1)
	if err != nil {
		t.Fatalf("tradeFromExecution returned error: %v", err)
	}
	want := time.Unix(0, 1553846281766256031).UTC()
	if !trade.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", trade.Timestamp, want)
	}
	if trade.Side != models.SideSell {
		t.Errorf("side = %s, want sell", trade.Side)
	}
}

func TestTradeFromExecutionFallsBackToSize(t *testing.T) {
	exec := executionData{
		Side:  "buy",
		Size:  4,
		Price: 100,
		Time:  1553846281766256031,
	}

	trade, err := tradeFromExecution(exec, perpConfig().Key(), "BTC", 0.5)
	if err != nil {
		t.Fatalf("tradeFromExecution returned error: %v", err)
	}
	if trade.Quantity != 2 {
		t.Errorf("quantity = %v, want 2", trade.Quantity)
	}
}

func TestTradeFromExecutionRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		exec executionData
	}{
		{"zero price", executionData{Side: "buy", MatchSize: 1, Time: 1}},
		{"zero size", executionData{Side: "buy", Price: 100, Time: 1}},
		{"unknown side", executionData{Side: "both", MatchSize: 1, Price: 100, Time: 1}},
		{"missing timestamp", executionData{Side: "buy", MatchSize: 1, Price: 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tradeFromExecution(tc.exec, perpConfig().Key(), "BTC", 1); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestFetchMultiplier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/v1/contracts/XBTUSDTM" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		w.Write([]byte(`{"code":"200000","data":{"symbol":"XBTUSDTM","multiplier":0.001}}`))
	}))
	defer srv.Close()

	m, err := fetchMultiplier(context.Background(), srv.URL, "XBTUSDTM")
	if err != nil {
		t.Fatalf("fetchMultiplier returned error: %v", err)
	}
	if m != 0.001 {
		t.Errorf("multiplier = %v, want 0.001", m)
	}
}

func TestFetchMultiplierRejectsBadResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"code":"404000","data":{}}`))
	}))
	defer srv.Close()

	if _, err := fetchMultiplier(context.Background(), srv.URL, "NOPEUSDTM"); err == nil {
		t.Fatal("expected error for non-success code")
	}
}

func TestBarsFromKlineRows(t *testing.T) {
	rows := [][]float64{
		{1575331200000, 7495.01, 8309.67, 7250, 8296.83, 204934},
		{1575331260000, 8296.83, 8310.20, 8290.1, 8300.00, 51200},
	}

	bars, err := barsFromKlineRows(rows, 0.001)
	if err != nil {
		t.Fatalf("barsFromKlineRows returned error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if !bars[0].StartTime.Before(bars[1].StartTime) {
		t.Fatal("bars are not in ascending time order")
	}
	if bars[0].Open != 7495.01 || bars[0].Close != 8296.83 {
		t.Errorf("unexpected open/close %v/%v", bars[0].Open, bars[0].Close)
	}
	if bars[0].Volume != 204.934 {
		t.Errorf("volume = %v, want 204.934 after lot scaling", bars[0].Volume)
	}
	want := time.UnixMilli(1575331200000).UTC()
	if !bars[0].StartTime.Equal(want) {
		t.Errorf("start time = %v, want %v", bars[0].StartTime, want)
	}
}

func TestBarsFromKlineRowsRejectsShortRow(t *testing.T) {
	if _, err := barsFromKlineRows([][]float64{{1575331200000, 7495.01}}, 1); err == nil {
		t.Fatal("expected error for short kline row")
	}
}
