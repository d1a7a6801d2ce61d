package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes for the API
func setupRoutes(router *mux.Router) {
	// Keep-alive endpoint for the hosting platform
	router.HandleFunc("/", keepAliveHandler).Methods(http.MethodGet, http.MethodHead)

	router.HandleFunc("/translate", translateHandler).Methods(http.MethodGet)
	router.HandleFunc("/lyrics", lyricsHandler).Methods(http.MethodGet)
	router.HandleFunc("/extract", extractHandler).Methods(http.MethodGet)

	// Deep-link tokens
	router.HandleFunc("/link/encode", encodeLinkHandler).Methods(http.MethodGet)
	router.HandleFunc("/link/decode", decodeLinkHandler).Methods(http.MethodGet)

	// Cache management
	router.HandleFunc("/cache/sweep", sweepCacheHandler).Methods(http.MethodPost)
	router.HandleFunc("/cache/backup", backupCacheHandler).Methods(http.MethodPost)

	// Circuit breakers
	router.HandleFunc("/circuit-breaker/reset", resetBreakerHandler).Methods(http.MethodPost)

	// Health and stats endpoints
	router.HandleFunc("/health", getHealthStatus).Methods(http.MethodGet)
	router.HandleFunc("/stats", getStats).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}
