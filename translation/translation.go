// Package translation resolves text into the target language through a
// Google-style "gtx" endpoint, caching every successful result.
package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lyrics-bridge-go/cache"
	"lyrics-bridge-go/fetcher"
	"lyrics-bridge-go/logcolors"
	"lyrics-bridge-go/utils"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
)

const (
	DefaultEndpoint     = "https://translate.googleapis.com/translate_a/single"
	DefaultErrorMessage = "خطا در هنگام ترجمه"
)

var errEmptyTranslation = errors.New("response carried no translated segments")

// Doer performs one physical HTTP request. *fetcher.Fetcher satisfies it.
type Doer interface {
	Do(ctx context.Context, a fetcher.Attempt) (int, []byte, error)
}

// Detector guesses the ISO 639-1 code of text and whether the guess is reliable.
type Detector func(text string) (lang string, reliable bool)

// Config configures a Translator.
type Config struct {
	Endpoint         string
	SourceLang       string // "auto" lets the endpoint detect it
	TargetLang       string
	Attempts         int
	RetryDelay       time.Duration
	ErrorMessage     string // returned verbatim when translation fails
	SkipSameLanguage bool
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.SourceLang == "" {
		c.SourceLang = "auto"
	}
	if c.TargetLang == "" {
		c.TargetLang = "fa"
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.ErrorMessage == "" {
		c.ErrorMessage = DefaultErrorMessage
	}
}

// Translator is safe for concurrent use.
type Translator struct {
	cfg    Config
	target language.Tag
	cache  *cache.ResultCache
	doer   Doer
	group  singleflight.Group
	detect Detector
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option customizes a Translator.
type Option func(*Translator)

// WithDetector replaces the language detector used for the same-language short-circuit.
func WithDetector(d Detector) Option {
	return func(t *Translator) { t.detect = d }
}

// WithSleep replaces the pause between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Translator) { t.sleep = sleep }
}

// New validates the language codes and builds a Translator.
func New(cfg Config, rc *cache.ResultCache, doer Doer, opts ...Option) (*Translator, error) {
	cfg.defaults()

	target, err := language.Parse(cfg.TargetLang)
	if err != nil {
		return nil, fmt.Errorf("invalid target language %q: %w", cfg.TargetLang, err)
	}
	if cfg.SourceLang != "auto" {
		if _, err := language.Parse(cfg.SourceLang); err != nil {
			return nil, fmt.Errorf("invalid source language %q: %w", cfg.SourceLang, err)
		}
	}

	t := &Translator{
		cfg:    cfg,
		target: target,
		cache:  rc,
		doer:   doer,
		detect: detectWhatlang,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// ErrorMessage is the sentinel string Translate returns on failure.
func (t *Translator) ErrorMessage() string {
	return t.cfg.ErrorMessage
}

// Translate returns the translation of text, or the configured error message.
// It never returns an error; failures are not cached. ctx cancellation is
// ignored; attempts are bounded by the fetcher timeout.
func (t *Translator) Translate(ctx context.Context, text string) string {
	ctx = context.WithoutCancel(ctx)
	key := strings.TrimSpace(text)
	if key == "" {
		return ""
	}

	if cached, ok := t.cache.Get(key); ok {
		log.Debugf("%s Cache hit for %q", logcolors.LogCacheTranslation, truncate(key))
		return cached
	}

	if t.cfg.SkipSameLanguage && t.alreadyTarget(key) {
		log.Debugf("%s %q is already %s, skipping", logcolors.LogTranslate, truncate(key), t.cfg.TargetLang)
		return key
	}

	v, err, shared := t.group.Do(key, func() (any, error) {
		translated, err := t.fetch(ctx, key)
		if err != nil {
			return "", err
		}
		if err := t.cache.Put(key, translated); err != nil {
			log.Errorf("%s Failed to cache translation: %v", logcolors.LogCacheTranslation, err)
		}
		return translated, nil
	})
	if err != nil {
		log.Warnf("%s Translation of %q failed: %v", logcolors.LogTranslate, truncate(key), err)
		return t.cfg.ErrorMessage
	}
	if shared {
		log.Debugf("%s Coalesced duplicate request for %q", logcolors.LogTranslate, truncate(key))
	}
	return v.(string)
}

func (t *Translator) fetch(ctx context.Context, text string) (string, error) {
	reqURL := t.requestURL(text)
	headers := http.Header{}
	headers.Set("Accept", "application/json")

	var lastErr error
	for n := 1; n <= t.cfg.Attempts; n++ {
		status, body, err := t.doer.Do(ctx, fetcher.Attempt{URL: reqURL, Headers: headers, Number: n})
		switch {
		case err != nil:
			lastErr = err
		case status != http.StatusOK:
			lastErr = fmt.Errorf("http %d", status)
		default:
			translated, perr := parseResponse(body)
			if perr == nil {
				return translated, nil
			}
			lastErr = perr
		}

		if n == t.cfg.Attempts {
			break
		}
		log.Debugf("%s Attempt %d/%d failed (%v), retrying in %v", logcolors.LogTranslate, n, t.cfg.Attempts, lastErr, t.cfg.RetryDelay)
		if err := t.sleep(ctx, t.cfg.RetryDelay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", t.cfg.Attempts, lastErr)
}

func (t *Translator) requestURL(text string) string {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", t.cfg.SourceLang)
	q.Set("tl", t.cfg.TargetLang)
	q.Set("dt", "t")
	q.Set("q", text)
	return t.cfg.Endpoint + "?" + q.Encode()
}

func (t *Translator) alreadyTarget(text string) bool {
	lang, reliable := t.detect(text)
	if !reliable || lang == "" {
		return false
	}
	base, _ := t.target.Base()
	return lang == base.String()
}

// parseResponse concatenates data[0][i][0] from the nested-array response.
func parseResponse(body []byte) (string, error) {
	var data []any
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(data) == 0 {
		return "", errEmptyTranslation
	}
	segments, ok := data[0].([]any)
	if !ok {
		return "", errEmptyTranslation
	}

	var sb strings.Builder
	for _, seg := range segments {
		parts, ok := seg.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		if s, ok := parts[0].(string); ok {
			sb.WriteString(s)
		}
	}
	if sb.Len() == 0 {
		return "", errEmptyTranslation
	}
	return sb.String(), nil
}

func detectWhatlang(text string) (string, bool) {
	info := whatlanggo.Detect(text)
	return info.Lang.Iso6391(), info.IsReliable()
}

func truncate(s string) string {
	return utils.TruncateRunes(s, 40)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
