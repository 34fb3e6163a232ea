package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pricefuse/config"
	"pricefuse/engine"
	"pricefuse/internal/metrics"
	"pricefuse/logger"
)

// metricEventHistory bounds the in-memory metric event ring served by the
// /api/metrics/events endpoint.
const metricEventHistory = 256

// Server hosts the Gin-powered read API over a running composite engine: the
// latest composite prices, candle and basis histories, venue telemetry, and a
// websocket push stream of recomputed updates.
type Server struct {
	cfg           config.APIConfig
	engine        *engine.Engine
	log           *logger.Log
	metricStore   *metricStore
	metricHandler metrics.MetricHandlerID
	hub           *hub
	httpServer    *http.Server
}

// NewServer constructs the API server when the API feature is enabled. When
// the API is disabled the returned server is nil and every method on it is a
// no-op.
func NewServer(cfg config.APIConfig, eng *engine.Engine, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if eng == nil {
		return nil, errors.New("api server requires an engine")
	}

	cfg.Address = normalizeAddress(cfg.Address)

	if cfg.WSBuffer <= 0 {
		cfg.WSBuffer = 256
	}

	metricStore := newMetricStore(metricEventHistory)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	return &Server{
		cfg:           cfg,
		engine:        eng,
		log:           log,
		metricStore:   metricStore,
		metricHandler: handlerID,
		hub:           newHub(eng, cfg.WSBuffer, log),
	}, nil
}

// Run starts the API HTTP server and blocks until the provided context is
// cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	go s.hub.run(ctx)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	s.log.WithComponent("api").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("api server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
}

// Address reports the network address the API server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	// Allow running behind load balancers by trusting all proxies by
	// default. Users can override Gin's trusted proxy list via the
	// GIN_TRUSTED_PROXIES environment variable if needed.
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	api := router.Group("/api")
	api.GET("/price/:market", s.handlePrice)
	api.GET("/candles/:market", s.handleCandles)
	api.GET("/basis", s.handleBasis)
	api.GET("/basis/history", s.handleBasisHistory)
	api.GET("/venues", s.handleVenues)
	api.GET("/status", s.handleStatus)
	api.GET("/policy", s.handlePolicy)
	api.GET("/soak/snapshot", s.handleSoakSnapshot)
	api.GET("/metrics/events", s.handleMetricEvents)

	router.GET("/healthz", s.handleHealthz)
	router.GET("/ws/live", s.handleLive)

	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8090"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8090"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8090")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8090")
	}

	return addr
}
