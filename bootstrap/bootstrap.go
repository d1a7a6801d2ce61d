// Package bootstrap assembles the service components from a config.Config.
// The HTTP server and lyricsctl both build through it so they behave the same.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"lyrics-bridge-go/cache"
	"lyrics-bridge-go/circuitbreaker"
	"lyrics-bridge-go/config"
	"lyrics-bridge-go/deeplink"
	"lyrics-bridge-go/fetcher"
	"lyrics-bridge-go/logcolors"
	"lyrics-bridge-go/lyrics"
	"lyrics-bridge-go/stats"
	"lyrics-bridge-go/translation"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// App holds the wired components. Close releases everything New opened.
type App struct {
	Config     config.Config
	Backend    cache.Backend
	Fetcher    *fetcher.Fetcher
	Translator *translation.Translator
	Lyrics     *lyrics.Resolver
	Codec      *deeplink.Codec
	Sweeper    *cache.Sweeper
	Stats      *stats.Stats

	statsStore *stats.Store
}

// Option adjusts how New wires components.
type Option func(*options)

type options struct {
	fetcherOpts []fetcher.Option
	translOpts  []translation.Option
}

// WithFetcherOptions passes extra options to the outbound fetcher.
func WithFetcherOptions(opts ...fetcher.Option) Option {
	return func(o *options) { o.fetcherOpts = append(o.fetcherOpts, opts...) }
}

// WithTranslationOptions passes extra options to the translator.
func WithTranslationOptions(opts ...translation.Option) Option {
	return func(o *options) { o.translOpts = append(o.translOpts, opts...) }
}

// ConfigureLogging applies LOG_LEVEL to logrus.
func ConfigureLogging(cfg config.Config) {
	level, err := log.ParseLevel(cfg.Configuration.LogLevel)
	if err != nil {
		log.Warnf("%s Unknown LOG_LEVEL %q, using info", logcolors.LogConfig, cfg.Configuration.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// OpenBackend opens the result cache store named by CACHE_BACKEND.
func OpenBackend(cfg config.Config) (cache.Backend, error) {
	c := cfg.Configuration
	switch strings.ToLower(c.CacheBackend) {
	case "", "bolt":
		store, err := cache.NewBoltStore(c.CachePath, c.CacheBackupPath, cfg.FeatureFlags.CacheCompression)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := cache.NewSQLiteStore(c.CachePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want bolt or sqlite)", c.CacheBackend)
	}
}

// NewCodec builds the deep-link codec alone; it needs no stores.
func NewCodec(cfg config.Config) *deeplink.Codec {
	return deeplink.New(cfg.Configuration.DeepLinkScheme, cfg.Configuration.DeepLinkMaxFieldLength)
}

// New builds every component. On error anything already opened is closed.
func New(cfg config.Config, opts ...Option) (_ *App, err error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	c := cfg.Configuration

	app := &App{Config: cfg, Stats: stats.Get()}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.Backend, err = OpenBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	log.Infof("%s Result cache ready (%s at %s)", logcolors.LogCacheInit, c.CacheBackend, c.CachePath)

	retention := cfg.Retention()
	lyricsCache := cache.NewResultCache(app.Backend, cache.TableLyrics, retention).WithObserver(app.Stats.RecordCacheLookup)
	translationCache := cache.NewResultCache(app.Backend, cache.TableTranslations, retention).WithObserver(app.Stats.RecordCacheLookup)
	app.Sweeper = cache.NewSweeper(app.Backend, retention)

	fetcherOpts := append([]fetcher.Option{
		fetcher.WithObserver(func(a fetcher.Attempt, status int, err error) {
			app.Stats.RecordFetch(status, err)
		}),
	}, o.fetcherOpts...)
	app.Fetcher = fetcher.New(fetcher.Config{
		Timeout:             cfg.FetchTimeout(),
		MaxAttempts:         c.FetchMaxAttempts,
		BackoffMin:          millis(c.FetchBackoffMinMs),
		BackoffMax:          millis(c.FetchBackoffMaxMs),
		RateLimitBackoffMin: millis(c.RateLimitBackoffMinMs),
		RateLimitBackoffMax: millis(c.RateLimitBackoffMaxMs),
		RequestsPerSecond:   c.SourceRequestsPerSecond,
		Burst:               c.SourceBurstLimit,
	}, fetcherOpts...)

	app.Translator, err = translation.New(translation.Config{
		Endpoint:         c.TranslateEndpoint,
		SourceLang:       c.TranslateSourceLang,
		TargetLang:       c.TranslateTargetLang,
		Attempts:         c.TranslateAttempts,
		RetryDelay:       millis(c.TranslateRetryDelayMs),
		ErrorMessage:     c.TranslateErrorMessage,
		SkipSameLanguage: cfg.FeatureFlags.SkipSameLanguage,
	}, translationCache, app.Fetcher, o.translOpts...)
	if err != nil {
		return nil, fmt.Errorf("translator: %w", err)
	}

	sources, err := lyrics.LoadSources(c.LyricSourcesFile)
	if err != nil {
		return nil, fmt.Errorf("lyric sources: %w", err)
	}
	app.Lyrics, err = lyrics.NewResolver(sources, app.Fetcher, lyricsCache, lyrics.Config{
		BreakerThreshold:    c.CircuitBreakerThreshold,
		BreakerCooldown:     time.Duration(c.CircuitBreakerCooldownSecs) * time.Second,
		BreakerTrialTimeout: app.Fetcher.MaxDuration(),
		OnBreakerStateChange: func(name string, from, to circuitbreaker.State) {
			app.Stats.RecordBreakerState(name, to.String())
		},
		OnOutcome: func(out lyrics.Outcome) {
			app.Stats.RecordLyricsOutcome(out.Source, out.Found, out.Cached)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("lyrics resolver: %w", err)
	}
	log.Infof("%s Lyric sources in order: %s", logcolors.LogWaterfall, strings.Join(app.Lyrics.SourceNames(), ", "))

	app.Codec = NewCodec(cfg)

	if cfg.FeatureFlags.PersistStats && c.StatsPath != "" {
		app.statsStore, err = stats.NewStore(c.StatsPath, app.Stats)
		if err != nil {
			return nil, fmt.Errorf("stats store: %w", err)
		}
		if err := app.statsStore.Load(); err != nil {
			log.Warnf("%s Ignoring unreadable persisted stats: %v", logcolors.LogStats, err)
		}
	}

	return app, nil
}

// Start launches the background jobs: the retention sweep and stats auto-save.
func (a *App) Start() error {
	if err := a.Sweeper.Start(a.Config.Configuration.CacheSweepSchedule); err != nil {
		return err
	}
	if a.statsStore != nil {
		interval := time.Duration(a.Config.Configuration.StatsSaveIntervalSecs) * time.Second
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		a.statsStore.StartAutoSave(interval)
	}
	return nil
}

// Translate runs the translator and counts the outcome.
func (a *App) Translate(ctx context.Context, text string) string {
	out := a.Translator.Translate(ctx, text)
	if strings.TrimSpace(text) != "" {
		a.Stats.RecordTranslation(out == a.Translator.ErrorMessage())
	}
	return out
}

// CacheCounts reports the number of stored rows per table, expired ones included.
func (a *App) CacheCounts() (map[string]int, error) {
	counts := make(map[string]int, len(cache.Tables()))
	for _, table := range cache.Tables() {
		n, err := a.Backend.Count(table)
		if err != nil {
			return nil, err
		}
		counts[table] = n
	}
	return counts, nil
}

// Backup snapshots the cache when the backend supports it.
func (a *App) Backup() (string, error) {
	b, ok := a.Backend.(interface{ Backup() (string, error) })
	if !ok {
		return "", fmt.Errorf("%s backend does not support backups", a.Config.Configuration.CacheBackend)
	}
	return b.Backup()
}

// Close stops background jobs and closes the stores.
func (a *App) Close() error {
	var errs []error
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.statsStore != nil {
		if err := a.statsStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stats store: %w", err))
		}
		a.statsStore = nil
	}
	if a.Backend != nil {
		if err := a.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
		a.Backend = nil
	}
	return errors.Join(errs...)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
