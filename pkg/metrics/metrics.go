// Package metrics exposes Prometheus counters for the ingestion and demo
// paths.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "voltwatch_"

// Rejection reasons for the ingest counter.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonBadPayload   = "bad_payload"
	ReasonRateLimited  = "rate_limited"
	ReasonStoreError   = "store_error"
)

var (
	registerOnce sync.Once

	ingestAccepted prometheus.Counter
	ingestRejected *prometheus.CounterVec
	seedRuns       *prometheus.CounterVec
	demoFallbacks  *prometheus.CounterVec
)

// Init registers the service metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		ingestAccepted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "ingest_accepted_total",
			Help: "Telemetry payloads accepted and persisted",
		})
		ingestRejected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_rejected_total",
				Help: "Telemetry payloads rejected, by reason",
			},
			[]string{"reason"},
		)
		seedRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "seed_total",
				Help: "Demo reseed operations, by destination (store or memory)",
			},
			[]string{"destination"},
		)
		demoFallbacks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "demo_fallback_total",
				Help: "Read requests served from the in-memory demo series, by endpoint",
			},
			[]string{"endpoint"},
		)

		prometheus.MustRegister(ingestAccepted, ingestRejected, seedRuns, demoFallbacks)
	})
}

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IngestAccepted counts one persisted payload.
func IngestAccepted() {
	if ingestAccepted != nil {
		ingestAccepted.Inc()
	}
}

// IngestRejected counts one rejected payload.
func IngestRejected(reason string) {
	if ingestRejected != nil {
		ingestRejected.WithLabelValues(reason).Inc()
	}
}

// SeedRun counts one reseed, destination "store" or "memory".
func SeedRun(destination string) {
	if seedRuns != nil {
		seedRuns.WithLabelValues(destination).Inc()
	}
}

// DemoFallback counts one read served from the demo cache.
func DemoFallback(endpoint string) {
	if demoFallbacks != nil {
		demoFallbacks.WithLabelValues(endpoint).Inc()
	}
}
