package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIKeyMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	public := []string{"/", "/health", "/link/*"}

	tests := []struct {
		name     string
		apiKey   string
		required bool
		path     string
		header   string
		expected int
	}{
		{"not required", "secret", false, "/lyrics", "", http.StatusOK},
		{"required without configured key", "", true, "/lyrics", "", http.StatusOK},
		{"public exact path", "secret", true, "/health", "", http.StatusOK},
		{"public prefix path", "secret", true, "/link/decode", "", http.StatusOK},
		{"missing key", "secret", true, "/lyrics", "", http.StatusUnauthorized},
		{"wrong key", "secret", true, "/cache/sweep", "nope", http.StatusUnauthorized},
		{"valid key", "secret", true, "/cache/sweep", "secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := APIKeyMiddleware(tt.apiKey, tt.required, public)(ok)
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rec.Code)
			}
			if tt.expected == http.StatusUnauthorized && rec.Header().Get("Content-Type") != "application/json" {
				t.Error("Expected JSON error body")
			}
		})
	}
}
