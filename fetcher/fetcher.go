// Package fetcher implements retrying HTTP GETs against third-party sites.
//
// Every physical request carries a User-Agent drawn at random from a pool.
// A 429 response backs off longer than any other failure; exhausting all
// attempts yields ErrNotFound, which callers treat as "source unavailable".
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"lyrics-bridge-go/logcolors"
	"math/rand/v2"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned once every attempt has failed.
var ErrNotFound = errors.New("source unavailable")

// DefaultUserAgents is the rotation pool used when Config.UserAgents is empty.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

// Attempt describes one physical request. It is never persisted.
type Attempt struct {
	URL     string
	Headers http.Header
	Number  int
}

// Observer is told about every physical request. status is 0 on transport errors.
type Observer func(a Attempt, status int, err error)

// Config configures the fetcher.
type Config struct {
	Timeout             time.Duration // per physical request. Default: 12s.
	MaxAttempts         int           // Default: 3.
	BackoffMin          time.Duration // after non-429 failures. Default: 2s.
	BackoffMax          time.Duration // Default: 5s.
	RateLimitBackoffMin time.Duration // after a 429. Default: 5s.
	RateLimitBackoffMax time.Duration // Default: 10s.
	UserAgents          []string
	RequestsPerSecond   float64 // per host; <= 0 disables throttling.
	Burst               int
	MaxBytes            int64 // Max response body size. Default: 5MB.
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 12 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 2 * time.Second
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = max(5*time.Second, c.BackoffMin)
	}
	if c.RateLimitBackoffMin <= 0 {
		c.RateLimitBackoffMin = 5 * time.Second
	}
	if c.RateLimitBackoffMax < c.RateLimitBackoffMin {
		c.RateLimitBackoffMax = max(10*time.Second, c.RateLimitBackoffMin)
	}
	if len(c.UserAgents) == 0 {
		c.UserAgents = DefaultUserAgents
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 * 1024 * 1024
	}
}

// Fetcher performs GETs with retries, UA rotation and per-host throttling.
type Fetcher struct {
	client  *http.Client
	config  Config
	limiter *HostLimiter
	sleep   func(ctx context.Context, d time.Duration) error
	randN   func(n int64) int64
	observe Observer
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// WithRand replaces the random source; randN must return a value in [0, n).
func WithRand(randN func(n int64) int64) Option {
	return func(f *Fetcher) { f.randN = randN }
}

// WithObserver registers a hook invoked after every physical request.
func WithObserver(o Observer) Option {
	return func(f *Fetcher) { f.observe = o }
}

// New creates a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	cfg.defaults()

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	f := &Fetcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		config:  cfg,
		limiter: NewHostLimiter(limit, cfg.Burst),
		sleep:   sleepContext,
		randN:   rand.Int64N,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs url, retrying per the configured policy. On success it returns the
// body of the 200 response. Any failure is reported as an error wrapping
// ErrNotFound and the last attempt's error.
func (f *Fetcher) Fetch(ctx context.Context, url string, headers http.Header) ([]byte, error) {
	var lastErr error
	attempts := 0

	for n := 1; n <= f.config.MaxAttempts; n++ {
		attempts = n
		status, body, err := f.Do(ctx, Attempt{URL: url, Headers: headers, Number: n})
		if err == nil && status == http.StatusOK {
			return body, nil
		}

		wait := f.backoff(f.config.BackoffMin, f.config.BackoffMax)
		switch {
		case err != nil:
			lastErr = err
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("http %d", status)
			wait = f.backoff(f.config.RateLimitBackoffMin, f.config.RateLimitBackoffMax)
			log.Warnf("%s %s throttled us (attempt %d/%d), backing off %v", logcolors.LogRateLimit, url, n, f.config.MaxAttempts, wait)
		default:
			lastErr = fmt.Errorf("http %d", status)
		}

		if n == f.config.MaxAttempts {
			break
		}
		log.Debugf("%s Attempt %d/%d for %s failed (%v), retrying in %v", logcolors.LogFetch, n, f.config.MaxAttempts, url, lastErr, wait)
		if err := f.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	log.Warnf("%s Giving up on %s after %d attempts: %v", logcolors.LogFetch, url, attempts, lastErr)
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrNotFound, url, attempts, lastErr)
}

// MaxDuration is the longest one Fetch can take under the configured policy,
// excluding time spent waiting on the per-host limiter.
func (f *Fetcher) MaxDuration() time.Duration {
	n := time.Duration(f.config.MaxAttempts)
	pause := max(f.config.BackoffMax, f.config.RateLimitBackoffMax)
	return n*f.config.Timeout + (n-1)*pause
}

// Do performs exactly one physical GET. Non-200 responses are not errors here;
// the status and body are returned for the caller to judge.
func (f *Fetcher) Do(ctx context.Context, a Attempt) (int, []byte, error) {
	status, body, err := f.do(ctx, a)
	if f.observe != nil {
		f.observe(a, status, err)
	}
	return status, body, err
}

func (f *Fetcher) do(ctx context.Context, a Attempt) (int, []byte, error) {
	if err := f.limiter.Wait(ctx, a.URL); err != nil {
		return 0, nil, fmt.Errorf("throttle: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("new request: %w", err)
	}
	for k, vs := range a.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", f.userAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (f *Fetcher) userAgent() string {
	pool := f.config.UserAgents
	return pool[f.randN(int64(len(pool)))]
}

// backoff draws uniformly from [lo, hi].
func (f *Fetcher) backoff(lo, hi time.Duration) time.Duration {
	span := int64(hi - lo)
	if span <= 0 {
		return lo
	}
	return lo + time.Duration(f.randN(span+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
