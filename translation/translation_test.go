package translation

import (
	"context"
	"lyrics-bridge-go/cache"
	"lyrics-bridge-go/fetcher"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const helloWorldResponse = `[[["سلام ","Hello ",null,null,10],["دنیا","world",null,null,10]],null,"en",null,null,null,1,[],[["en"],null,[1],["en"]]]`

type testEnv struct {
	translator *Translator
	cache      *cache.ResultCache
	hits       *atomic.Int32
	sleeps     *[]time.Duration
	lastQuery  func() map[string]string
}

func newTestEnv(t *testing.T, handler http.HandlerFunc, cfg Config, opts ...Option) *testEnv {
	t.Helper()

	var hits atomic.Int32
	var mu sync.Mutex
	last := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mu.Lock()
		for k := range r.URL.Query() {
			last[k] = r.URL.Query().Get(k)
		}
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	store, err := cache.NewBoltStore(filepath.Join(t.TempDir(), "cache.db"), "", false)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	rc := cache.NewResultCache(store, cache.TableTranslations, cache.DefaultRetention)

	var sleeps []time.Duration
	cfg.Endpoint = srv.URL
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	opts = append([]Option{
		WithSleep(func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		}),
		WithDetector(func(string) (string, bool) { return "", false }),
	}, opts...)

	tr, err := New(cfg, rc, fetcher.New(fetcher.Config{}), opts...)
	if err != nil {
		t.Fatalf("Failed to create translator: %v", err)
	}

	return &testEnv{
		translator: tr,
		cache:      rc,
		hits:       &hits,
		sleeps:     &sleeps,
		lastQuery: func() map[string]string {
			mu.Lock()
			defer mu.Unlock()
			return last
		},
	}
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestTranslateMissThenHit(t *testing.T) {
	env := newTestEnv(t, respond(http.StatusOK, helloWorldResponse), Config{})
	ctx := context.Background()

	got := env.translator.Translate(ctx, "Hello world")
	if got != "سلام دنیا" {
		t.Fatalf("Expected concatenated segments, got %q", got)
	}
	if env.hits.Load() != 1 {
		t.Errorf("Expected 1 request, got %d", env.hits.Load())
	}

	q := env.lastQuery()
	for k, want := range map[string]string{"client": "gtx", "sl": "auto", "tl": "fa", "dt": "t", "q": "Hello world"} {
		if q[k] != want {
			t.Errorf("Query param %s = %q, want %q", k, q[k], want)
		}
	}

	if again := env.translator.Translate(ctx, "  Hello world \n"); again != got {
		t.Errorf("Expected cached translation for trimmed key, got %q", again)
	}
	if env.hits.Load() != 1 {
		t.Errorf("Expected cache hit without a second request, got %d requests", env.hits.Load())
	}
}

func TestTranslateIgnoresCallerCancellation(t *testing.T) {
	env := newTestEnv(t, respond(http.StatusOK, helloWorldResponse), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := env.translator.Translate(ctx, "Hello world"); got != "سلام دنیا" {
		t.Fatalf("Expected translation despite cancelled caller, got %q", got)
	}
	if cached, ok := env.cache.Get("Hello world"); !ok || cached != "سلام دنیا" {
		t.Errorf("Expected result to be cached, got %q (ok=%v)", cached, ok)
	}
}

func TestTranslateServesFromCache(t *testing.T) {
	env := newTestEnv(t, respond(http.StatusOK, helloWorldResponse), Config{})
	env.cache.Put("Goodbye", "خداحافظ")

	if got := env.translator.Translate(context.Background(), "Goodbye"); got != "خداحافظ" {
		t.Errorf("Expected cached value, got %q", got)
	}
	if env.hits.Load() != 0 {
		t.Errorf("Expected no outbound request, got %d", env.hits.Load())
	}
}

func TestTranslateFailureReturnsSentinel(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", respond(http.StatusInternalServerError, "")},
		{"rate limited", respond(http.StatusTooManyRequests, "")},
		{"garbage body", respond(http.StatusOK, "<html>not json</html>")},
		{"empty array", respond(http.StatusOK, "[]")},
		{"no segments", respond(http.StatusOK, `[null,null,"en"]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.handler, Config{})

			got := env.translator.Translate(context.Background(), "Hello")
			if got != DefaultErrorMessage {
				t.Errorf("Expected error sentinel, got %q", got)
			}
			if env.hits.Load() != 3 {
				t.Errorf("Expected 3 attempts, got %d", env.hits.Load())
			}
			if len(*env.sleeps) != 2 {
				t.Errorf("Expected 2 pauses between attempts, got %v", *env.sleeps)
			}
			for _, d := range *env.sleeps {
				if d != 2*time.Second {
					t.Errorf("Expected fixed 2s delay, got %v", d)
				}
			}
			if _, found := env.cache.Get("Hello"); found {
				t.Error("Expected failure not to be cached")
			}
		})
	}
}

func TestTranslateRecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(helloWorldResponse))
	}
	env := newTestEnv(t, handler, Config{})

	if got := env.translator.Translate(context.Background(), "Hello world"); got != "سلام دنیا" {
		t.Errorf("Expected translation after retry, got %q", got)
	}
	if env.hits.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", env.hits.Load())
	}
}

func TestTranslateCustomSentinelAndLanguages(t *testing.T) {
	env := newTestEnv(t, respond(http.StatusBadGateway, ""), Config{
		SourceLang:   "en",
		TargetLang:   "de",
		Attempts:     1,
		ErrorMessage: "translation failed",
	})

	if got := env.translator.Translate(context.Background(), "Hello"); got != "translation failed" {
		t.Errorf("Expected custom sentinel, got %q", got)
	}
	q := env.lastQuery()
	if q["sl"] != "en" || q["tl"] != "de" {
		t.Errorf("Expected sl=en tl=de, got sl=%q tl=%q", q["sl"], q["tl"])
	}
	if len(*env.sleeps) != 0 {
		t.Errorf("Expected no pause with a single attempt, got %v", *env.sleeps)
	}
}

func TestTranslateSkipsSameLanguage(t *testing.T) {
	env := newTestEnv(t, respond(http.StatusOK, helloWorldResponse),
		Config{SkipSameLanguage: true},
		WithDetector(func(string) (string, bool) { return "fa", true }),
	)

	if got := env.translator.Translate(context.Background(), "سلام دنیا"); got != "سلام دنیا" {
		t.Errorf("Expected text returned unchanged, got %q", got)
	}
	if env.hits.Load() != 0 {
		t.Errorf("Expected no outbound request, got %d", env.hits.Load())
	}
}

func TestTranslateUnreliableDetectionStillTranslates(t *testing.T) {
	env := newTestEnv(t, respond(http.StatusOK, helloWorldResponse),
		Config{SkipSameLanguage: true},
		WithDetector(func(string) (string, bool) { return "fa", false }),
	)

	env.translator.Translate(context.Background(), "Hello world")
	if env.hits.Load() != 1 {
		t.Errorf("Expected translation request, got %d", env.hits.Load())
	}
}

func TestTranslateEmptyText(t *testing.T) {
	env := newTestEnv(t, respond(http.StatusOK, helloWorldResponse), Config{})
	if got := env.translator.Translate(context.Background(), "   "); got != "" {
		t.Errorf("Expected empty result, got %q", got)
	}
	if env.hits.Load() != 0 {
		t.Errorf("Expected no request for empty text, got %d", env.hits.Load())
	}
}

func TestNewRejectsInvalidLanguage(t *testing.T) {
	if _, err := New(Config{TargetLang: "not a language"}, nil, nil); err == nil {
		t.Error("Expected invalid target language to be rejected")
	}
	if _, err := New(Config{SourceLang: "??"}, nil, nil); err == nil {
		t.Error("Expected invalid source language to be rejected")
	}
}

func TestParseResponse(t *testing.T) {
	got, err := parseResponse([]byte(`[[["a",null],[1],["b"],[]]]`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "ab" {
		t.Errorf("Expected non-string segments to be skipped, got %q", got)
	}
}
