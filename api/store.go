package api

import (
	"sync"

	"pricefuse/internal/metrics"
)

// metricStore retains a bounded window of the most recent metric events
// emitted by the application. It is safe for concurrent use.
type metricStore struct {
	mu    sync.RWMutex
	items []metrics.Metric
	limit int
}

func newMetricStore(limit int) *metricStore {
	if limit <= 0 {
		limit = 200
	}
	return &metricStore{limit: limit}
}

func (s *metricStore) handle(metric metrics.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, metric)
	if len(s.items) > s.limit {
		// keep the most recent entries only
		s.items = append([]metrics.Metric(nil), s.items[len(s.items)-s.limit:]...)
	}
}

func (s *metricStore) snapshot() []metrics.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]metrics.Metric, len(s.items))
	copy(out, s.items)
	return out
}
