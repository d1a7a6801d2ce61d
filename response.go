package main

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// APIResponse keeps headers and JSON encoding consistent across handlers.
type APIResponse struct {
	w       http.ResponseWriter
	r       *http.Request
	headers map[string]string
}

// Respond creates a response helper for one request
func Respond(w http.ResponseWriter, r *http.Request) *APIResponse {
	return &APIResponse{w: w, r: r, headers: map[string]string{}}
}

// SetLyricsStatus sets X-Lyrics-Status to "found" or "not_found".
func (a *APIResponse) SetLyricsStatus(found bool) *APIResponse {
	if found {
		a.headers["X-Lyrics-Status"] = "found"
	} else {
		a.headers["X-Lyrics-Status"] = "not_found"
	}
	return a
}

// SetHeader adds an arbitrary response header.
func (a *APIResponse) SetHeader(key, value string) *APIResponse {
	a.headers[key] = value
	return a
}

func (a *APIResponse) writeHeaders() {
	a.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for k, v := range a.headers {
		a.w.Header().Set(k, v)
	}
}

// JSON writes headers and encodes data as JSON (200 OK)
func (a *APIResponse) JSON(data interface{}) error {
	return a.Status(http.StatusOK, data)
}

// Status writes headers, the status code and data as JSON.
func (a *APIResponse) Status(statusCode int, data interface{}) error {
	a.writeHeaders()
	a.w.WriteHeader(statusCode)
	enc := json.NewEncoder(a.w)
	// Lyrics and translations are mostly non-ASCII; keep them readable
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		log.Errorf("Failed to encode response for %s: %v", a.r.URL.Path, err)
		return err
	}
	return nil
}

// Error writes {"error": message} with the given status code.
func (a *APIResponse) Error(statusCode int, message string) error {
	return a.Status(statusCode, map[string]interface{}{"error": message})
}
