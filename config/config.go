package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		Port     string `envconfig:"PORT" default:"10000"`
		LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

		// Result cache
		CacheBackend       string `envconfig:"CACHE_BACKEND" default:"bolt"` // bolt or sqlite
		CachePath          string `envconfig:"CACHE_PATH" default:"data/cache.db"`
		CacheBackupPath    string `envconfig:"CACHE_BACKUP_PATH" default:"data/backups"`
		CacheRetentionDays int    `envconfig:"CACHE_RETENTION_DAYS" default:"30"`
		CacheSweepSchedule string `envconfig:"CACHE_SWEEP_SCHEDULE" default:"@every 1h"`

		// Outbound fetching
		FetchTimeoutSecs        int     `envconfig:"FETCH_TIMEOUT_SECS" default:"12"`
		FetchMaxAttempts        int     `envconfig:"FETCH_MAX_ATTEMPTS" default:"3"`
		FetchBackoffMinMs       int     `envconfig:"FETCH_BACKOFF_MIN_MS" default:"2000"`
		FetchBackoffMaxMs       int     `envconfig:"FETCH_BACKOFF_MAX_MS" default:"5000"`
		RateLimitBackoffMinMs   int     `envconfig:"RATE_LIMIT_BACKOFF_MIN_MS" default:"5000"`
		RateLimitBackoffMaxMs   int     `envconfig:"RATE_LIMIT_BACKOFF_MAX_MS" default:"10000"`
		SourceRequestsPerSecond float64 `envconfig:"SOURCE_REQUESTS_PER_SECOND" default:"1"`
		SourceBurstLimit        int     `envconfig:"SOURCE_BURST_LIMIT" default:"3"`

		// Translation endpoint
		TranslateEndpoint     string `envconfig:"TRANSLATE_ENDPOINT" default:"https://translate.googleapis.com/translate_a/single"`
		TranslateSourceLang   string `envconfig:"TRANSLATE_SOURCE_LANG" default:"auto"`
		TranslateTargetLang   string `envconfig:"TRANSLATE_TARGET_LANG" default:"fa"`
		TranslateAttempts     int    `envconfig:"TRANSLATE_ATTEMPTS" default:"3"`
		TranslateRetryDelayMs int    `envconfig:"TRANSLATE_RETRY_DELAY_MS" default:"2000"`
		TranslateErrorMessage string `envconfig:"TRANSLATE_ERROR_MESSAGE" default:"خطا در هنگام ترجمه."`

		// Lyrics waterfall; empty means the built-in source table
		LyricSourcesFile string `envconfig:"LYRIC_SOURCES_FILE" default:""`

		DeepLinkScheme         string `envconfig:"DEEPLINK_SCHEME" default:"lyrics"`
		DeepLinkMaxFieldLength int    `envconfig:"DEEPLINK_MAX_FIELD_LENGTH" default:"100"`
		BotUsername            string `envconfig:"BOT_USERNAME" default:""`

		// Inbound HTTP
		RateLimitPerSecond  int      `envconfig:"RATE_LIMIT_PER_SECOND" default:"2"`
		RateLimitBurstLimit int      `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"5"`
		APIKey              string   `envconfig:"API_KEY" default:""`
		APIKeyRequired      bool     `envconfig:"API_KEY_REQUIRED" default:"false"`
		CORSAllowedOrigins  []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

		StatsPath             string `envconfig:"STATS_PATH" default:"data/stats.db"`
		StatsSaveIntervalSecs int    `envconfig:"STATS_SAVE_INTERVAL_SECS" default:"300"`

		CircuitBreakerThreshold    int `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`      // Consecutive failures before a source is skipped
		CircuitBreakerCooldownSecs int `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"300"` // Seconds before a skipped source is retried
	}

	FeatureFlags struct {
		CacheCompression bool `envconfig:"FF_CACHE_COMPRESSION" default:"true"`
		PersistStats     bool `envconfig:"FF_PERSIST_STATS" default:"true"`
		SkipSameLanguage bool `envconfig:"FF_SKIP_SAME_LANGUAGE" default:"true"`
	}
}

// Retention returns the cache retention window.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Configuration.CacheRetentionDays) * 24 * time.Hour
}

// FetchTimeout returns the per-request timeout for outbound fetches.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Configuration.FetchTimeoutSecs) * time.Second
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}

// Reload re-reads the environment. Used by the CLI after flags override env vars.
func Reload() (Config, error) {
	c, err := load()
	if err != nil {
		return c, err
	}
	conf = c
	return c, nil
}
