// Registers:
//
//	#pricefuse_trades_ingested_total
//	#pricefuse_trades_dropped_total
//	#pricefuse_venue_reconnects_total
//	#pricefuse_recomputes_total
//	#pricefuse_composite_price and related gauges
//	#go_* and process_* system metrics
//
// Exposes them on :2112/metrics using Prometheus HTTP handler
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once            sync.Once
	tradesIngested  *prometheus.CounterVec
	tradesDropped   *prometheus.CounterVec
	venueReconnects *prometheus.CounterVec
	recomputeTotal  prometheus.Counter
	compositePrice  *prometheus.GaugeVec
	includedVenues  *prometheus.GaugeVec
	degradedGauge   *prometheus.GaugeVec
	basisBpsGauge   prometheus.Gauge
)

func Init(addr string) {
	once.Do(func() {
		if addr == "" {
			addr = "0.0.0.0:2112"
		}

		tradesIngested = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricefuse_trades_ingested_total",
				Help: "Number of normalized trades accepted from venue streams",
			},
			[]string{"venue", "market"},
		)

		tradesDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricefuse_trades_dropped_total",
				Help: "Number of trades dropped on full channel buffers",
			},
			[]string{"venue", "market"},
		)

		venueReconnects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricefuse_venue_reconnects_total",
				Help: "Number of venue stream reconnects",
			},
			[]string{"venue", "market"},
		)

		recomputeTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pricefuse_recomputes_total",
				Help: "Number of composite recomputations",
			},
		)

		compositePrice = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricefuse_composite_price",
				Help: "Latest composite price per market leg",
			},
			[]string{"market"},
		)

		includedVenues = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricefuse_included_venues",
				Help: "Venues included in the latest composite per market leg",
			},
			[]string{"market"},
		)

		degradedGauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricefuse_degraded",
				Help: "Whether the latest composite is degraded (1) or not (0)",
			},
			[]string{"market"},
		)

		basisBpsGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricefuse_basis_bps",
				Help: "Latest perp minus spot basis in basis points",
			},
		)

		_ = prometheus.Register(tradesIngested)
		_ = prometheus.Register(tradesDropped)
		_ = prometheus.Register(venueReconnects)
		_ = prometheus.Register(recomputeTotal)
		_ = prometheus.Register(compositePrice)
		_ = prometheus.Register(includedVenues)
		_ = prometheus.Register(degradedGauge)
		_ = prometheus.Register(basisBpsGauge)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, nil); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncrementTradeIngested increases the ingest counter for a venue leg.
func IncrementTradeIngested(venue, market string) {
	if tradesIngested != nil {
		tradesIngested.WithLabelValues(venue, market).Inc()
	}
}

// IncrementTradeDropped increases the drop counter for a venue leg.
func IncrementTradeDropped(venue, market string) {
	if tradesDropped != nil {
		tradesDropped.WithLabelValues(venue, market).Inc()
	}
}

// IncrementReconnect increases the reconnect counter for a venue leg.
func IncrementReconnect(venue, market string) {
	if venueReconnects != nil {
		venueReconnects.WithLabelValues(venue, market).Inc()
	}
}

// IncrementRecompute counts one engine recomputation.
func IncrementRecompute() {
	if recomputeTotal != nil {
		recomputeTotal.Inc()
	}
}

// ObserveComposite records the latest composite outcome for a market leg.
// The price gauge keeps its previous value while the composite is null.
func ObserveComposite(market string, price *float64, included int, degraded bool) {
	if compositePrice == nil {
		return
	}
	if price != nil {
		compositePrice.WithLabelValues(market).Set(*price)
	}
	includedVenues.WithLabelValues(market).Set(float64(included))
	v := 0.0
	if degraded {
		v = 1
	}
	degradedGauge.WithLabelValues(market).Set(v)
}

// ObserveBasisBps records the latest basis. A nil basis leaves the gauge at
// its previous value.
func ObserveBasisBps(bps *float64) {
	if basisBpsGauge != nil && bps != nil {
		basisBpsGauge.Set(*bps)
	}
}
