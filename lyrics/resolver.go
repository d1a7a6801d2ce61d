// Package lyrics finds song lyrics by scraping an ordered list of websites.
//
// Sources form a waterfall: they are tried one at a time in priority order and
// the first one that yields a lyrics body wins. Successful results are cached;
// "not found" never is, since a source may publish the song later.
package lyrics

import (
	"context"
	"errors"
	"fmt"
	"lyrics-bridge-go/cache"
	"lyrics-bridge-go/circuitbreaker"
	"lyrics-bridge-go/logcolors"
	"lyrics-bridge-go/metadata"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves a page body. *fetcher.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers http.Header) ([]byte, error)
}

// Outcome describes how one Resolve call ended.
type Outcome struct {
	Query  string
	Source string // empty for cache hits and not-found results
	Cached bool
	Found  bool
}

// Config tunes the per-source circuit breakers and hooks.
type Config struct {
	BreakerThreshold     int
	BreakerCooldown      time.Duration
	BreakerTrialTimeout  time.Duration // bounds a half-open trial; should cover the fetcher's worst case
	OnBreakerStateChange circuitbreaker.StateChangeFunc
	OnOutcome            func(Outcome)
}

// Resolver is safe for concurrent use.
type Resolver struct {
	sources  []Source
	fetcher  Fetcher
	cache    *cache.ResultCache
	breakers map[string]*circuitbreaker.CircuitBreaker
	group    singleflight.Group
	cfg      Config
}

// NewResolver validates sources and builds a resolver over them.
func NewResolver(sources []Source, f Fetcher, rc *cache.ResultCache, cfg Config) (*Resolver, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no lyric sources configured")
	}

	r := &Resolver{
		sources:  make([]Source, len(sources)),
		fetcher:  f,
		cache:    rc,
		breakers: make(map[string]*circuitbreaker.CircuitBreaker, len(sources)),
		cfg:      cfg,
	}
	for i, src := range sources {
		if err := src.compile(); err != nil {
			return nil, err
		}
		if _, dup := r.breakers[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", src.Name)
		}
		r.sources[i] = src
		r.breakers[src.Name] = circuitbreaker.New(circuitbreaker.Config{
			Name:            src.Name,
			Threshold:       cfg.BreakerThreshold,
			Cooldown:        cfg.BreakerCooldown,
			HalfOpenTimeout: cfg.BreakerTrialTimeout,
			OnStateChange:   cfg.OnBreakerStateChange,
		})
	}
	return r, nil
}

// SourceNames lists sources in waterfall order.
func (r *Resolver) SourceNames() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name
	}
	return names
}

// BreakerStates maps each source to its circuit breaker state.
func (r *Resolver) BreakerStates() map[string]string {
	states := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = cb.State().String()
	}
	return states
}

// BreakerStatus is a point-in-time view of one source's circuit breaker.
type BreakerStatus struct {
	Source   string  `json:"source"`
	State    string  `json:"state"`
	Failures int     `json:"failures"`
	RetryIn  float64 `json:"retry_in_seconds"`
}

// BreakerStatuses reports every breaker in waterfall order.
func (r *Resolver) BreakerStatuses() []BreakerStatus {
	out := make([]BreakerStatus, 0, len(r.sources))
	for _, src := range r.sources {
		cb := r.breakers[src.Name]
		out = append(out, BreakerStatus{
			Source:   cb.Name(),
			State:    cb.State().String(),
			Failures: cb.Failures(),
			RetryIn:  cb.TimeUntilRetry().Seconds(),
		})
	}
	return out
}

// ResetBreaker forces the named source's breaker closed.
func (r *Resolver) ResetBreaker(name string) error {
	cb, ok := r.breakers[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	cb.Reset()
	return nil
}

// NotFoundMessage is returned when every source has been exhausted.
func NotFoundMessage(title, artist string) string {
	if artist == "" || artist == metadata.UnknownArtist {
		return fmt.Sprintf("Sorry, no lyrics were found for %q.", title)
	}
	return fmt.Sprintf("Sorry, no lyrics were found for %q by %s.", title, artist)
}

// Resolve returns formatted lyrics for the song, or NotFoundMessage. It never fails.
func (r *Resolver) Resolve(ctx context.Context, title, artist string) string {
	text, _ := r.Lookup(ctx, title, artist)
	return text
}

// Lookup is Resolve that also reports whether any source had the song.
func (r *Resolver) Lookup(ctx context.Context, title, artist string) (string, bool) {
	q := metadata.SongQuery{Title: strings.TrimSpace(title), Artist: strings.TrimSpace(artist)}
	if q.Artist == "" {
		q.Artist = metadata.UnknownArtist
	}
	return r.LookupQuery(ctx, q)
}

// ResolveQuery is Resolve for an already extracted SongQuery.
func (r *Resolver) ResolveQuery(ctx context.Context, q metadata.SongQuery) string {
	text, _ := r.LookupQuery(ctx, q)
	return text
}

type resolution struct {
	text  string
	found bool
}

// LookupQuery is Lookup for an already extracted SongQuery. The waterfall
// ignores ctx cancellation; fetch attempts carry their own timeouts.
func (r *Resolver) LookupQuery(ctx context.Context, q metadata.SongQuery) (string, bool) {
	ctx = context.WithoutCancel(ctx)
	key := q.Query()

	if cached, ok := r.cache.Get(key); ok {
		log.Debugf("%s Cache hit for %q", logcolors.LogCacheLyrics, key)
		r.report(Outcome{Query: key, Cached: true, Found: true})
		return cached, true
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		return r.waterfall(ctx, q, key), nil
	})
	res := v.(resolution)
	return res.text, res.found
}

func (r *Resolver) waterfall(ctx context.Context, q metadata.SongQuery, key string) resolution {
	for i := range r.sources {
		src := &r.sources[i]
		body, err := r.trySource(ctx, src, key)
		if err != nil {
			log.Infof("%s %s yielded nothing for %q: %v", logcolors.LogWaterfall, logcolors.Source(src.Name), key, err)
			continue
		}

		result := formatLyrics(q, src.Name, body)
		if err := r.cache.Put(key, result); err != nil {
			log.Errorf("%s Failed to cache lyrics for %q: %v", logcolors.LogCacheLyrics, key, err)
		}
		log.Infof("%s Found %q on %s", logcolors.LogLyrics, key, logcolors.Source(src.Name))
		r.report(Outcome{Query: key, Source: src.Name, Found: true})
		return resolution{text: result, found: true}
	}

	log.Warnf("%s All %d sources exhausted for %q", logcolors.LogNotFound, len(r.sources), key)
	r.report(Outcome{Query: key})
	return resolution{text: NotFoundMessage(q.Title, q.Artist)}
}

// trySource walks one source: search page, first matching link, lyrics page, body.
func (r *Resolver) trySource(ctx context.Context, src *Source, query string) (string, error) {
	searchURL := src.SearchURL(query)
	log.Debugf("%s %s %s", logcolors.LogSearch, logcolors.Source(src.Name), searchURL)

	page, err := r.fetch(ctx, src, searchURL)
	if err != nil {
		return "", newSourceError(src.Name, StageSearch, err)
	}
	doc, err := parseHTML(page)
	if err != nil {
		return "", newSourceError(src.Name, StageSearch, err)
	}

	href, ok := firstLink(doc, src.linkRe)
	if !ok {
		return "", newSourceError(src.Name, StageLink, errNoResultLink)
	}
	lyricsURL, err := src.absolute(href)
	if err != nil {
		return "", newSourceError(src.Name, StageLink, err)
	}
	log.Debugf("%s %s -> %s", logcolors.LogMatch, logcolors.Source(src.Name), lyricsURL)

	page, err = r.fetch(ctx, src, lyricsURL)
	if err != nil {
		return "", newSourceError(src.Name, StagePage, err)
	}
	doc, err = parseHTML(page)
	if err != nil {
		return "", newSourceError(src.Name, StagePage, err)
	}

	body := extractBody(doc, src.selector)
	if body == "" {
		return "", newSourceError(src.Name, StageBody, errEmptyBody)
	}
	return body, nil
}

// fetch goes through the source's breaker; an open breaker counts as unavailable.
// A cancelled fetch is released by the breaker instead of counted as a failure.
func (r *Resolver) fetch(ctx context.Context, src *Source, url string) ([]byte, error) {
	headers := http.Header{}
	headers.Set("Accept", "text/html,application/xhtml+xml")
	headers.Set("Accept-Language", "en-US,en;q=0.9")

	var body []byte
	err := r.breakers[src.Name].Execute(func() error {
		var err error
		body, err = r.fetcher.Fetch(ctx, url, headers)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		log.Debugf("%s %s skipped, breaker open", logcolors.LogWaterfall, logcolors.Source(src.Name))
	}
	return body, err
}

func (r *Resolver) report(o Outcome) {
	if r.cfg.OnOutcome != nil {
		r.cfg.OnOutcome(o)
	}
}

// formatLyrics prepends an attribution header to the body.
func formatLyrics(q metadata.SongQuery, source, body string) string {
	var header string
	if q.HasArtist() {
		header = fmt.Sprintf("🎵 %s - %s\n📖 Source: %s", q.Artist, q.Title, source)
	} else {
		header = fmt.Sprintf("🎵 %s\n📖 Source: %s", q.Title, source)
	}
	return header + "\n\n" + body
}
