package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	lyricsResolutions *prometheus.CounterVec
	fetchAttempts     *prometheus.CounterVec
	breakerOpen       *prometheus.GaugeVec
)

// InitMetrics registers the Prometheus collectors (idempotent). Until it is
// called the Record methods only update the in-process counters.
func InitMetrics() {
	metricsOnce.Do(func() {
		requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lyrics_bridge_requests_total", Help: "HTTP requests by route",
		}, []string{"endpoint"})
		requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "lyrics_bridge_request_duration_seconds", Help: "HTTP request duration seconds", Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"})
		cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lyrics_bridge_cache_lookups_total", Help: "Result cache lookups by table and result",
		}, []string{"table", "result"})
		lyricsResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lyrics_bridge_lyrics_resolutions_total", Help: "Lyrics resolutions by winning source and outcome",
		}, []string{"source", "outcome"})
		fetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lyrics_bridge_fetch_attempts_total", Help: "Outbound HTTP attempts by status class",
		}, []string{"status"})
		breakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lyrics_bridge_source_breaker_open", Help: "Per-source circuit breaker open=1 otherwise 0",
		}, []string{"source"})
	})
}
