package middleware

import (
	"context"
	"lyrics-bridge-go/logcolors"
	"lyrics-bridge-go/stats"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID returns the id LoggingMiddleware attached to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// responseRecorder captures the status code and body size of a response
type responseRecorder struct {
	http.ResponseWriter
	StatusCode  int
	BodySize    int
	wroteHeader bool
}

func NewResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rec *responseRecorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.wroteHeader = true
	rec.StatusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.wroteHeader = true
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.BodySize += n
	return n, err
}

func getStatusColor(code int) string {
	if code < 200 {
		return logcolors.Reset
	}
	return logcolors.StatusColor(code)
}

// LoggingMiddleware tags each request with an id, logs it, and feeds the stats counters.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)

		rec := NewResponseRecorder(w)
		next.ServeHTTP(rec, r.WithContext(ctx))

		duration := time.Since(start)
		endpoint := r.URL.Path
		if rec.StatusCode == http.StatusNotFound || rec.StatusCode == http.StatusMethodNotAllowed {
			// Keep arbitrary paths out of the per-endpoint counters
			endpoint = "unmatched"
		}

		s := stats.Get()
		s.RecordRequest(endpoint)
		s.RecordStatusCode(rec.StatusCode)
		s.RecordResponseTime(duration, endpoint)

		color := getStatusColor(rec.StatusCode)
		log.WithFields(log.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.StatusCode,
			"bytes":      rec.BodySize,
			"duration":   duration.String(),
			"remote":     r.RemoteAddr,
		}).Infof("%s %s %s%d%s %v", r.Method, r.URL.Path, color, rec.StatusCode, logcolors.Reset, duration)
	})
}
