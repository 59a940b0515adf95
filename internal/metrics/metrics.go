// Package metrics exposes Prometheus collectors for the crawl and query
// pipelines.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal            *prometheus.CounterVec
	crawlRunsTotal        *prometheus.CounterVec
	queriesTotal          prometheus.Counter
	queryDurationSeconds  prometheus.Histogram
	providerFallbackTotal *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathfinder_pages_total",
				Help: "Pages visited by the crawl loop, labeled by site host and status.",
			},
			[]string{"site", "status"},
		)
		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathfinder_crawl_runs_total",
				Help: "Crawl runs, labeled by terminal status.",
			},
			[]string{"status"},
		)
		queriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pathfinder_queries_total",
				Help: "Retrieval pipeline invocations.",
			},
		)
		queryDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pathfinder_query_duration_seconds",
				Help:    "End-to-end retrieval pipeline latency.",
				Buckets: prometheus.DefBuckets,
			},
		)
		providerFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathfinder_provider_fallback_total",
				Help: "Provider calls that degraded to the deterministic fallback, labeled by operation.",
			},
			[]string{"op"},
		)
	})
}

// PageCrawled counts one page visit with the given status
// (ok, failed, robots_skip).
func PageCrawled(site, status string) {
	Init()
	pagesTotal.WithLabelValues(site, status).Inc()
}

// CrawlRunFinished counts a crawl run's terminal status (done, error).
func CrawlRunFinished(status string) {
	Init()
	crawlRunsTotal.WithLabelValues(status).Inc()
}

// QueryObserved records one retrieval pipeline invocation and its latency.
func QueryObserved(d time.Duration) {
	Init()
	queriesTotal.Inc()
	queryDurationSeconds.Observe(d.Seconds())
}

// ProviderFallback counts a degraded provider call for the named operation.
func ProviderFallback(op string) {
	Init()
	providerFallbackTotal.WithLabelValues(op).Inc()
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}
