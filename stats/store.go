package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"lyrics-bridge-go/logcolors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	statsBucketName = "stats"
	statsKey        = "server_stats"
)

// Store persists the counters so /stats survives restarts.
type Store struct {
	db       *bolt.DB
	stats    *Stats
	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// PersistedStats is the on-disk form of Stats.
type PersistedStats struct {
	Requests               map[string]int64 `json:"requests"`
	TotalRequests          int64            `json:"total_requests"`
	LyricsCacheHits        int64            `json:"lyrics_cache_hits"`
	LyricsCacheMisses      int64            `json:"lyrics_cache_misses"`
	TranslationCacheHits   int64            `json:"translation_cache_hits"`
	TranslationCacheMisses int64            `json:"translation_cache_misses"`
	LyricsFound            int64            `json:"lyrics_found"`
	LyricsNotFound         int64            `json:"lyrics_not_found"`
	SourceWins             map[string]int64 `json:"source_wins"`
	Translations           int64            `json:"translations"`
	TranslationFailures    int64            `json:"translation_failures"`
	FetchAttempts          int64            `json:"fetch_attempts"`
	FetchRateLimited       int64            `json:"fetch_rate_limited"`
	FetchErrors            int64            `json:"fetch_errors"`
	BreakerOpens           int64            `json:"breaker_opens"`
	RateLimitExceeded      int64            `json:"rate_limit_exceeded"`
	Status2xx              int64            `json:"status_2xx"`
	Status4xx              int64            `json:"status_4xx"`
	Status5xx              int64            `json:"status_5xx"`

	TotalResponseTime int64 `json:"total_response_time"`
	ResponseCount     int64 `json:"response_count"`
	MinResponseTime   int64 `json:"min_response_time"`
	MaxResponseTime   int64 `json:"max_response_time"`

	LastSaved    time.Time `json:"last_saved"`
	FirstStarted time.Time `json:"first_started"`
}

// NewStore opens (or creates) a dedicated bolt file for s.
func NewStore(dbPath string, s *Stats) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(statsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stats bucket: %w", err)
	}

	log.Infof("%s Stats store initialized at %s", logcolors.LogStats, dbPath)
	return &Store{db: db, stats: s, stopChan: make(chan struct{})}, nil
}

// Load applies persisted counters to the bound Stats.
func (st *Store) Load() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	var p PersistedStats
	found := false
	err := st.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(statsBucketName)).Get([]byte(statsKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if !found {
		return nil
	}

	s := st.stats
	for endpoint, n := range p.Requests {
		counter(&s.requests, endpoint).Store(n)
	}
	for source, n := range p.SourceWins {
		counter(&s.sourceWins, source).Store(n)
	}
	restore := []struct {
		dst *atomic.Int64
		v   int64
	}{
		{&s.TotalRequests, p.TotalRequests},
		{&s.LyricsCacheHits, p.LyricsCacheHits},
		{&s.LyricsCacheMisses, p.LyricsCacheMisses},
		{&s.TranslationCacheHits, p.TranslationCacheHits},
		{&s.TranslationCacheMisses, p.TranslationCacheMisses},
		{&s.LyricsFound, p.LyricsFound},
		{&s.LyricsNotFound, p.LyricsNotFound},
		{&s.Translations, p.Translations},
		{&s.TranslationFailures, p.TranslationFailures},
		{&s.FetchAttempts, p.FetchAttempts},
		{&s.FetchRateLimited, p.FetchRateLimited},
		{&s.FetchErrors, p.FetchErrors},
		{&s.BreakerOpens, p.BreakerOpens},
		{&s.RateLimitExceeded, p.RateLimitExceeded},
		{&s.Status2xx, p.Status2xx},
		{&s.Status4xx, p.Status4xx},
		{&s.Status5xx, p.Status5xx},
		{&s.totalResponseTime, p.TotalResponseTime},
		{&s.responseCount, p.ResponseCount},
	}
	for _, r := range restore {
		r.dst.Store(r.v)
	}
	if p.MinResponseTime > 0 && p.MinResponseTime < noMin {
		s.minResponseTime.Store(p.MinResponseTime)
	}
	if p.MaxResponseTime > 0 {
		s.maxResponseTime.Store(p.MaxResponseTime)
	}
	if !p.FirstStarted.IsZero() {
		s.StartTime = p.FirstStarted
	}

	log.Infof("%s Loaded persisted stats (total requests: %d, first started: %s)",
		logcolors.LogStats, p.TotalRequests, p.FirstStarted.Format(time.RFC3339))
	return nil
}

// Save writes the current counters to disk.
func (st *Store) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.stats
	p := PersistedStats{
		Requests:               snapshotMap(&s.requests),
		TotalRequests:          s.TotalRequests.Load(),
		LyricsCacheHits:        s.LyricsCacheHits.Load(),
		LyricsCacheMisses:      s.LyricsCacheMisses.Load(),
		TranslationCacheHits:   s.TranslationCacheHits.Load(),
		TranslationCacheMisses: s.TranslationCacheMisses.Load(),
		LyricsFound:            s.LyricsFound.Load(),
		LyricsNotFound:         s.LyricsNotFound.Load(),
		SourceWins:             snapshotMap(&s.sourceWins),
		Translations:           s.Translations.Load(),
		TranslationFailures:    s.TranslationFailures.Load(),
		FetchAttempts:          s.FetchAttempts.Load(),
		FetchRateLimited:       s.FetchRateLimited.Load(),
		FetchErrors:            s.FetchErrors.Load(),
		BreakerOpens:           s.BreakerOpens.Load(),
		RateLimitExceeded:      s.RateLimitExceeded.Load(),
		Status2xx:              s.Status2xx.Load(),
		Status4xx:              s.Status4xx.Load(),
		Status5xx:              s.Status5xx.Load(),
		TotalResponseTime:      s.totalResponseTime.Load(),
		ResponseCount:          s.responseCount.Load(),
		MinResponseTime:        s.minResponseTime.Load(),
		MaxResponseTime:        s.maxResponseTime.Load(),
		LastSaved:              time.Now(),
		FirstStarted:           s.StartTime,
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	err = st.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(statsBucketName)).Put([]byte(statsKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// StartAutoSave saves every interval until Close.
func (st *Store) StartAutoSave(interval time.Duration) {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := st.Save(); err != nil {
					log.Warnf("%s Failed to auto-save stats: %v", logcolors.LogStats, err)
				}
			case <-st.stopChan:
				return
			}
		}
	}()
	log.Infof("%s Started auto-save with interval %v", logcolors.LogStats, interval)
}

// Close stops auto-save, saves once more and closes the database.
func (st *Store) Close() error {
	st.stopOnce.Do(func() { close(st.stopChan) })
	st.wg.Wait()

	if err := st.Save(); err != nil {
		log.Warnf("%s Failed to save stats on close: %v", logcolors.LogStats, err)
	} else {
		log.Infof("%s Stats saved on shutdown", logcolors.LogStats)
	}
	return st.db.Close()
}
