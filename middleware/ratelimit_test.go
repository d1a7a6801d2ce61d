package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// TestNewIPRateLimiter tests the creation of a new IPRateLimiter.
func TestNewIPRateLimiter(t *testing.T) {
	rl := NewIPRateLimiter(2, 5)
	if rl == nil {
		t.Fatal("Expected IPRateLimiter to be created, got nil")
	}
	if rl.rate != 2 {
		t.Errorf("Expected rate limit to be 2, got %v", rl.rate)
	}
	if rl.GetLimit() != 5 {
		t.Errorf("Expected burst limit to be 5, got %v", rl.GetLimit())
	}
}

// TestGetLimiterReusesBucket tests that one IP always maps to the same limiter.
func TestGetLimiterReusesBucket(t *testing.T) {
	rl := NewIPRateLimiter(1, 5)
	ip := "192.168.1.1"

	first := rl.GetLimiter(ip)
	if first == nil {
		t.Fatal("Expected limiter to be returned, got nil")
	}
	if _, exists := rl.ips[ip]; !exists {
		t.Error("Expected IP to be added to ips map, but it was not found")
	}
	if second := rl.GetLimiter(ip); second != first {
		t.Error("Expected the same limiter for repeated lookups")
	}
	if other := rl.GetLimiter("192.168.1.2"); other == first {
		t.Error("Expected a distinct limiter for another IP")
	}
}

// TestRateLimiting tests the actual rate limiting functionality.
func TestRateLimiting(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(20), 1)
	limiter := rl.GetLimiter("192.168.1.1")

	if !limiter.Allow() {
		t.Error("Expected first request to be allowed")
	}
	if limiter.Allow() {
		t.Error("Expected second request to be denied due to rate limiting")
	}

	time.Sleep(100 * time.Millisecond)
	if !limiter.Allow() {
		t.Error("Expected request to be allowed after waiting")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(NewIPRateLimiter(rate.Limit(0.001), 2))(next)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/lyrics", nil)
		// Different ports, same host
		req.RemoteAddr = "10.0.0.1:" + []string{"1111", "2222", "3333"}[i]
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)

		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("Expected X-RateLimit-Limit 2, got %q", rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Expected burst of 2 to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected third request to be rejected, got %d", codes[2])
	}

	// A different client is unaffected
	req := httptest.NewRequest("GET", "/lyrics", nil)
	req.RemoteAddr = "10.0.0.2:1111"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected other IP to pass, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote   string
		expected string
	}{
		{"192.168.1.1:8080", "192.168.1.1"},
		{"[::1]:443", "::1"},
		{"no-port", "no-port"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tt.remote
		if got := clientIP(req); got != tt.expected {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remote, got, tt.expected)
		}
	}
}
