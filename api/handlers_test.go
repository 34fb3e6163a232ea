package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"pricefuse/config"
	"pricefuse/internal/metrics"
	"pricefuse/logger"
	"pricefuse/models"
)

func newTestRouter(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()

	srv, err := NewServer(config.Default().API, newTestEngine(t), logger.GetLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(srv.cleanup)

	router, err := srv.buildRouter()
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	return srv, router
}

func performRequest(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestPriceEndpointServesBothLegs(t *testing.T) {
	_, router := newTestRouter(t)

	for market, totalVenues := range map[string]int{"spot": 3, "perp": 4} {
		rec := performRequest(router, http.MethodGet, "/api/price/"+market)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET /api/price/%s status = %d, want 200", market, rec.Code)
		}

		var payload struct {
			Composite models.CompositePrice `json:"composite"`
			LastBar   *models.CompositeBar  `json:"last_bar"`
		}
		decodeBody(t, rec, &payload)

		if payload.Composite.Asset != "BTC" {
			t.Errorf("%s asset = %q, want BTC", market, payload.Composite.Asset)
		}
		if string(payload.Composite.Market) != market {
			t.Errorf("market = %q, want %q", payload.Composite.Market, market)
		}
		if payload.Composite.Price != nil {
			t.Errorf("%s price = %v, want nil with no venue connected", market, *payload.Composite.Price)
		}
		if payload.Composite.Reason != models.DegradedVenueDisconnected {
			t.Errorf("%s degraded reason = %q, want %q", market, payload.Composite.Reason, models.DegradedVenueDisconnected)
		}
		if payload.Composite.TotalVenues != totalVenues {
			t.Errorf("%s total venues = %d, want %d", market, payload.Composite.TotalVenues, totalVenues)
		}
		if payload.LastBar != nil {
			t.Errorf("%s last bar = %+v, want nil with no history", market, payload.LastBar)
		}
	}
}

func TestPriceEndpointRejectsUnknownMarket(t *testing.T) {
	_, router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/api/price/futures")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var payload struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &payload)
	if payload.Error == "" {
		t.Fatal("expected an error message in the response body")
	}
}

func TestCandlesEndpointEmptyHistory(t *testing.T) {
	_, router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/api/candles/spot?limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Asset   string          `json:"asset"`
		Market  string          `json:"market"`
		Candles []models.Candle `json:"candles"`
	}
	decodeBody(t, rec, &payload)

	if payload.Asset != "BTC" || payload.Market != "spot" {
		t.Errorf("payload = %s/%s, want BTC/spot", payload.Asset, payload.Market)
	}
	if len(payload.Candles) != 0 {
		t.Errorf("candles = %d, want none before any bar closes", len(payload.Candles))
	}
}

func TestCandlesEndpointRejectsBadLimit(t *testing.T) {
	_, router := newTestRouter(t)

	for _, target := range []string{"/api/candles/spot?limit=abc", "/api/candles/spot?limit=-1"} {
		rec := performRequest(router, http.MethodGet, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", target, rec.Code)
		}
	}
}

func TestBasisEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/api/basis")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var basis models.BasisFeatures
	decodeBody(t, rec, &basis)

	if basis.Asset != "BTC" {
		t.Errorf("asset = %q, want BTC", basis.Asset)
	}
	if basis.BasisBps != nil {
		t.Errorf("basis bps = %v, want nil while both legs are empty", *basis.BasisBps)
	}
	if !basis.Degraded {
		t.Error("expected a degraded basis while both legs are empty")
	}
}

func TestBasisHistoryEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/api/basis/history?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Asset  string              `json:"asset"`
		Points []models.BasisPoint `json:"points"`
	}
	decodeBody(t, rec, &payload)

	if payload.Asset != "BTC" {
		t.Errorf("asset = %q, want BTC", payload.Asset)
	}
	if len(payload.Points) != 0 {
		t.Errorf("points = %d, want none before aligned bars exist", len(payload.Points))
	}
}

func TestVenuesEndpointListsConfiguredVenues(t *testing.T) {
	_, router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/api/venues")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Venues []models.VenueTelemetry `json:"venues"`
	}
	decodeBody(t, rec, &payload)

	if len(payload.Venues) != 7 {
		t.Fatalf("venues = %d, want the 7 configured instances", len(payload.Venues))
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Asset     string              `json:"asset"`
		Version   uint64              `json:"version"`
		Health    models.SystemHealth `json:"health"`
		WSClients int                 `json:"ws_clients"`
	}
	decodeBody(t, rec, &payload)

	if payload.Asset != "BTC" {
		t.Errorf("asset = %q, want BTC", payload.Asset)
	}
	if payload.Health.Overall != models.HealthUnhealthy {
		t.Errorf("overall health = %q, want unhealthy with no venue connected", payload.Health.Overall)
	}
	if payload.Health.TotalSpot != 3 || payload.Health.TotalPerp != 4 {
		t.Errorf("venue totals = %d/%d, want 3 spot and 4 perp", payload.Health.TotalSpot, payload.Health.TotalPerp)
	}
	if payload.WSClients != 0 {
		t.Errorf("ws clients = %d, want 0", payload.WSClients)
	}
}

func TestPolicyEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/api/policy")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload models.PolicySnapshot
	decodeBody(t, rec, &payload)

	if payload.QuorumProfile != "permissive" {
		t.Errorf("profile = %q, want permissive", payload.QuorumProfile)
	}
	if payload.Policy.MinQuorum != 1 || !payload.Policy.AllowSingleSource {
		t.Errorf("policy = %+v, want the permissive quorum", payload.Policy)
	}
	if payload.OutlierThresholdBps != 100 {
		t.Errorf("outlier threshold = %v, want 100", payload.OutlierThresholdBps)
	}
	if len(payload.Venues) != 7 {
		t.Errorf("venues = %d, want 7", len(payload.Venues))
	}
	if got := payload.StaleThresholds["binance:spot"]; got != "10s" {
		t.Errorf("binance:spot stale threshold = %q, want 10s", got)
	}
	if got := payload.StaleThresholds["kucoin:perp"]; got != "30s" {
		t.Errorf("kucoin:perp stale threshold = %q, want 30s", got)
	}
}

func TestSoakSnapshotEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/api/soak/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var snap models.SoakSnapshot
	decodeBody(t, rec, &snap)

	if snap.Asset != "BTC" {
		t.Errorf("asset = %q, want BTC", snap.Asset)
	}
	if len(snap.Venues) != 7 {
		t.Errorf("venues = %d, want 7", len(snap.Venues))
	}
	if snap.Health.Overall != models.HealthUnhealthy {
		t.Errorf("health = %q, want unhealthy", snap.Health.Overall)
	}
}

func TestMetricEventsEndpointCapturesEmittedMetrics(t *testing.T) {
	srv, router := newTestRouter(t)

	metrics.EmitMetric(logger.GetLogger(), "api_test", "unit_metric", 1, "counter", nil)

	rec := performRequest(router, http.MethodGet, "/api/metrics/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Metrics []struct {
			Name      string `json:"name"`
			Component string `json:"component"`
		} `json:"metrics"`
	}
	decodeBody(t, rec, &payload)

	found := false
	for _, m := range payload.Metrics {
		if m.Name == "unit_metric" && m.Component == "api_test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("emitted metric missing from %d captured events", len(payload.Metrics))
	}

	if len(srv.metricStore.snapshot()) == 0 {
		t.Fatal("metric store captured nothing")
	}
}

func TestHealthzReportsUnavailableWhenDisconnected(t *testing.T) {
	_, router := newTestRouter(t)

	rec := performRequest(router, http.MethodGet, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 with no venue connected", rec.Code)
	}

	var payload struct {
		Status models.HealthStatus `json:"status"`
	}
	decodeBody(t, rec, &payload)
	if payload.Status != models.HealthUnhealthy {
		t.Fatalf("status = %q, want unhealthy", payload.Status)
	}
}
