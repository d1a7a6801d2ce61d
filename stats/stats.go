package stats

import (
	"lyrics-bridge-go/cache"
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds process-wide counters behind the /stats endpoint.
type Stats struct {
	StartTime time.Time

	// Requests by route, keyed by path template.
	requests      sync.Map // string -> *atomic.Int64
	TotalRequests atomic.Int64

	// Result cache lookups
	LyricsCacheHits        atomic.Int64
	LyricsCacheMisses      atomic.Int64
	TranslationCacheHits   atomic.Int64
	TranslationCacheMisses atomic.Int64

	// Lyrics waterfall outcomes
	LyricsFound    atomic.Int64
	LyricsNotFound atomic.Int64
	sourceWins     sync.Map // source name -> *atomic.Int64

	// Translation outcomes
	Translations        atomic.Int64
	TranslationFailures atomic.Int64

	// Outbound fetches
	FetchAttempts    atomic.Int64
	FetchRateLimited atomic.Int64
	FetchErrors      atomic.Int64

	BreakerOpens      atomic.Int64
	RateLimitExceeded atomic.Int64

	// Response status codes
	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Response times in microseconds
	totalResponseTime atomic.Int64
	responseCount     atomic.Int64
	minResponseTime   atomic.Int64
	maxResponseTime   atomic.Int64
}

const noMin = int64(^uint64(0) >> 1)

var global = newStats()

func newStats() *Stats {
	s := &Stats{StartTime: time.Now()}
	s.minResponseTime.Store(noMin)
	return s
}

// Get returns the global stats instance
func Get() *Stats {
	return global
}

func counter(m *sync.Map, key string) *atomic.Int64 {
	if c, ok := m.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := m.LoadOrStore(key, &atomic.Int64{})
	return c.(*atomic.Int64)
}

func snapshotMap(m *sync.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

// RecordRequest records a request to a route.
func (s *Stats) RecordRequest(endpoint string) {
	s.TotalRequests.Add(1)
	counter(&s.requests, endpoint).Add(1)
	if requestsTotal != nil {
		requestsTotal.WithLabelValues(endpoint).Inc()
	}
}

// RecordCacheLookup records a ResultCache lookup on table.
func (s *Stats) RecordCacheLookup(table string, hit bool) {
	switch {
	case table == cache.TableLyrics && hit:
		s.LyricsCacheHits.Add(1)
	case table == cache.TableLyrics:
		s.LyricsCacheMisses.Add(1)
	case hit:
		s.TranslationCacheHits.Add(1)
	default:
		s.TranslationCacheMisses.Add(1)
	}
	if cacheLookups != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		cacheLookups.WithLabelValues(table, result).Inc()
	}
}

// RecordLyricsOutcome records how a lyrics resolution ended. source is empty
// for cache hits and not-found results.
func (s *Stats) RecordLyricsOutcome(source string, found, cached bool) {
	outcome := "not_found"
	switch {
	case cached:
		outcome = "cached"
	case found:
		outcome = "found"
		s.LyricsFound.Add(1)
		counter(&s.sourceWins, source).Add(1)
	default:
		s.LyricsNotFound.Add(1)
	}
	if lyricsResolutions != nil {
		lyricsResolutions.WithLabelValues(source, outcome).Inc()
	}
}

// RecordTranslation records a translation result.
func (s *Stats) RecordTranslation(failed bool) {
	if failed {
		s.TranslationFailures.Add(1)
	} else {
		s.Translations.Add(1)
	}
}

// RecordFetch records one physical outbound request. status is 0 on transport errors.
func (s *Stats) RecordFetch(status int, err error) {
	s.FetchAttempts.Add(1)
	class := statusClass(status)
	switch {
	case err != nil:
		s.FetchErrors.Add(1)
		class = "error"
	case status == 429:
		s.FetchRateLimited.Add(1)
		class = "429"
	}
	if fetchAttempts != nil {
		fetchAttempts.WithLabelValues(class).Inc()
	}
}

// RecordBreakerState records a circuit breaker moving to state ("OPEN", "CLOSED", ...).
func (s *Stats) RecordBreakerState(source, state string) {
	if state == "OPEN" {
		s.BreakerOpens.Add(1)
	}
	if breakerOpen != nil {
		v := 0.0
		if state == "OPEN" {
			v = 1
		}
		breakerOpen.WithLabelValues(source).Set(v)
	}
}

// RecordRateLimitExceeded records an inbound request rejected with 429.
func (s *Stats) RecordRateLimitExceeded() {
	s.RateLimitExceeded.Add(1)
}

// RecordStatusCode records a response status code
func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordResponseTime records how long a request to endpoint took.
func (s *Stats) RecordResponseTime(duration time.Duration, endpoint string) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}

	if requestDuration != nil {
		requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	}
}

// Uptime returns the server uptime
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// CacheHitRate returns the hit rate across both tables as a percentage.
func (s *Stats) CacheHitRate() float64 {
	hits := s.LyricsCacheHits.Load() + s.TranslationCacheHits.Load()
	misses := s.LyricsCacheMisses.Load() + s.TranslationCacheMisses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

// AvgResponseTime returns the average response time
func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

// MinResponseTime returns the minimum response time
func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == noMin {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

// MaxResponseTime returns the maximum response time
func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

// Snapshot returns a point-in-time view of all counters.
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":       s.TotalRequests.Load(),
			"by_endpoint": snapshotMap(&s.requests),
		},
		"cache": map[string]interface{}{
			"lyrics_hits":        s.LyricsCacheHits.Load(),
			"lyrics_misses":      s.LyricsCacheMisses.Load(),
			"translation_hits":   s.TranslationCacheHits.Load(),
			"translation_misses": s.TranslationCacheMisses.Load(),
			"hit_rate":           s.CacheHitRate(),
		},
		"lyrics": map[string]interface{}{
			"found":       s.LyricsFound.Load(),
			"not_found":   s.LyricsNotFound.Load(),
			"source_wins": snapshotMap(&s.sourceWins),
		},
		"translation": map[string]interface{}{
			"succeeded": s.Translations.Load(),
			"failed":    s.TranslationFailures.Load(),
		},
		"fetch": map[string]interface{}{
			"attempts":      s.FetchAttempts.Load(),
			"rate_limited":  s.FetchRateLimited.Load(),
			"errors":        s.FetchErrors.Load(),
			"breaker_opens": s.BreakerOpens.Load(),
		},
		"rate_limiting": map[string]interface{}{
			"exceeded": s.RateLimitExceeded.Load(),
		},
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"response_times": map[string]interface{}{
			"avg": s.AvgResponseTime().String(),
			"min": s.MinResponseTime().String(),
			"max": s.MaxResponseTime().String(),
		},
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
