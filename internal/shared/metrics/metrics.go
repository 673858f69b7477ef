// Package metrics holds the prometheus collectors shared by the pool manager,
// the relay engine and the web layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "georelay"

var (
	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_size",
		Help:      "Number of proxy endpoints currently in the pool.",
	})

	PoolRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_refresh_total",
		Help:      "Pool refresh runs by result (replaced, retained, seeded, empty, skipped).",
	}, []string{"result"})

	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_failures_total",
		Help:      "Proxy-list source fetch or parse failures.",
	}, []string{"source"})

	Penalized = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "penalized_total",
		Help:      "Endpoints evicted from the pool after a failed attempt.",
	})

	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_attempts_total",
		Help:      "Individual fetch attempts by transport (direct, proxy) and outcome (success, failure).",
	}, []string{"transport", "outcome"})

	FetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_requests_total",
		Help:      "Relay requests by final result.",
	}, []string{"result"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
