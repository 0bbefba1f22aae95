// Package metrics exposes the Prometheus registry and the collection run metrics.
// Component metrics are defined in their own packages (client, batch, cache,
// ratelimit) to keep them modular and avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry. All metrics are registered
// via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Run results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "club_rides_runs_total",
		Help: "Total collection runs by result",
	}, []string{"result"})

	lastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "club_rides_last_run_timestamp_seconds",
		Help: "Unix time of the last successful collection run",
	})

	lastRunEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "club_rides_last_run_events",
		Help: "Events found by the last successful collection run",
	}, []string{"scope"})
)

// RecordRun records the outcome of a collection run. Event counts are only
// updated for successful runs.
func RecordRun(result string, unixTime float64, allEvents, cityEvents int) {
	runsTotal.WithLabelValues(result).Inc()
	if result != ResultSuccess {
		return
	}
	lastRunTimestamp.Set(unixTime)
	lastRunEvents.WithLabelValues("all").Set(float64(allEvents))
	lastRunEvents.WithLabelValues("city").Set(float64(cityEvents))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics reference
//
// Run metrics (this package):
//   - club_rides_runs_total{result} (Counter)
//   - club_rides_last_run_timestamp_seconds (Gauge)
//   - club_rides_last_run_events{scope="all"|"city"} (Gauge)
//
// Request metrics (pkg/client):
//   - club_rides_strava_requests_total{endpoint, status} (Counter)
//   - club_rides_strava_request_duration_seconds{endpoint} (Histogram)
//   - club_rides_strava_errors_total{class} (Counter)
//
// Retry metrics (pkg/client):
//   - club_rides_fetch_attempts_total{outcome} (Counter)
//   - club_rides_fetch_exhausted_total (Counter)
//   - club_rides_retry_backoff_seconds (Histogram)
//
// Batch metrics (pkg/batch):
//   - club_rides_batches_total (Counter)
//   - club_rides_batch_duration_seconds (Histogram)
//
// Rate limit metrics (pkg/ratelimit):
//   - club_rides_rate_limit_usage{window="15m"|"daily"} (Gauge)
//   - club_rides_rate_limit_blocks_total (Counter)
//   - club_rides_rate_limit_throttles_total (Counter)
//
// Cache metrics (pkg/cache):
//   - club_rides_cache_hits_total{layer="redis"} (Counter)
//   - club_rides_cache_misses_total (Counter)
//   - club_rides_cache_errors_total{operation} (Counter)
//
// Example queries:
//
//   # Share of club fetches that gave up
//   rate(club_rides_fetch_exhausted_total[1h]) /
//   rate(club_rides_fetch_attempts_total{outcome="success"}[1h])
//
//   # Time since the last good run
//   time() - club_rides_last_run_timestamp_seconds
