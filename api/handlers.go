package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pricefuse/models"
)

func parseMarket(raw string) (models.MarketType, bool) {
	market := models.MarketType(raw)
	return market, market.Valid()
}

// parseLimit parses the optional limit query parameter. Absent or zero means
// the full history.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return limit, nil
}

func (s *Server) handlePrice(c *gin.Context) {
	market, ok := parseMarket(c.Param("market"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown market: " + c.Param("market")})
		return
	}

	payload := gin.H{"composite": s.engine.Composite(market)}
	if bars := s.engine.CompositeBars(market, 1); len(bars) > 0 {
		payload["last_bar"] = bars[0]
	} else {
		payload["last_bar"] = nil
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleCandles(c *gin.Context) {
	market, ok := parseMarket(c.Param("market"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown market: " + c.Param("market")})
		return
	}

	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bars := s.engine.CompositeBars(market, limit)
	candles := make([]models.Candle, 0, len(bars))
	for _, bar := range bars {
		candles = append(candles, bar.ToCandle())
	}
	c.JSON(http.StatusOK, gin.H{
		"asset":   s.engine.Asset(),
		"market":  market,
		"candles": candles,
	})
}

func (s *Server) handleBasis(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Basis())
}

func (s *Server) handleBasisHistory(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"asset":  s.engine.Asset(),
		"points": s.engine.BasisHistory(limit),
	})
}

func (s *Server) handleVenues(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"venues": s.engine.Telemetry()})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"asset":      snap.Asset,
		"version":    snap.Version,
		"time":       snap.Time,
		"health":     snap.Health,
		"basis_bps":  snap.Basis.BasisBps,
		"ws_clients": s.hub.count(),
	})
}

func (s *Server) handlePolicy(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.PolicySnapshot())
}

func (s *Server) handleSoakSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.SoakSnapshot())
}

func (s *Server) handleMetricEvents(c *gin.Context) {
	events := s.metricStore.snapshot()
	payload := make([]gin.H, 0, len(events))
	for _, m := range events {
		payload = append(payload, gin.H{
			"timestamp": m.Timestamp.Format(time.RFC3339Nano),
			"component": m.Component,
			"name":      m.Name,
			"value":     m.Value,
			"type":      m.Type,
			"fields":    m.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload})
}

// handleHealthz reports 503 only when no venue is connected at all. A
// degraded composite still answers 200.
func (s *Server) handleHealthz(c *gin.Context) {
	health := s.engine.Status()
	code := http.StatusOK
	if health.Overall == models.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": health.Overall})
}
