package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
)

// Cache-related log prefixes
const (
	LogCacheInit        = Blue + "[Cache:Init]" + Reset
	LogCache            = Blue + "[Cache]" + Reset
	LogCacheBackup      = Blue + "[Cache:Backup]" + Reset
	LogCacheLyrics      = Green + "[Cache:Lyrics]" + Reset
	LogCacheTranslation = Green + "[Cache:Translation]" + Reset
	LogCacheSweep       = Cyan + "[Cache:Sweep]" + Reset
)

// Outbound fetch log prefixes
const (
	LogFetch     = Cyan + "[Fetch]" + Reset
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogThrottle  = Purple + "[Throttle]" + Reset
)

// Resolver log prefixes
const (
	LogSearch    = Blue + "[Search]" + Reset
	LogMatch     = Green + "[Match]" + Reset
	LogLyrics    = Blue + "[Lyrics]" + Reset
	LogWaterfall = Cyan + "[Waterfall]" + Reset
	LogNotFound  = Yellow + "[NotFound]" + Reset
	LogTranslate = Blue + "[Translate]" + Reset
	LogMetadata  = Cyan + "[Metadata]" + Reset
	LogDeepLink  = Cyan + "[DeepLink]" + Reset
)

// Server/Init log prefixes
const (
	LogServer = Green + "[Server]" + Reset
	LogConfig = Cyan + "[Config]" + Reset
	LogAPIKey = Purple + "[APIKey]" + Reset
	LogStats  = Blue + "[Stats]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

// sourceColors rotate per lyric source so interleaved waterfall logs stay readable
var sourceColors = []string{Green, Blue, Purple, Cyan, Yellow}

// Source returns a colored source name for log messages.
// Same source name always gets the same color.
func Source(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	return sourceColors[hash%len(sourceColors)] + name + Reset
}

// StatusColor picks a color for an HTTP status code.
func StatusColor(code int) string {
	switch {
	case code >= 500:
		return Red
	case code >= 400:
		return Yellow
	case code >= 300:
		return Cyan
	default:
		return Green
	}
}
