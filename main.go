package main

import (
	"context"
	"errors"
	"lyrics-bridge-go/bootstrap"
	"lyrics-bridge-go/config"
	"lyrics-bridge-go/logcolors"
	"lyrics-bridge-go/middleware"
	"lyrics-bridge-go/stats"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var conf = config.Get()

// app is shared by every handler.
var app *bootstrap.App

// publicPaths stay reachable when API_KEY_REQUIRED is set.
var publicPaths = []string{"/", "/health", "/metrics"}

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

// buildHandler wraps the router: logging, CORS, IP rate limit, then the API key guard.
func buildHandler(router http.Handler, cfg config.Config) http.Handler {
	c := cfg.Configuration

	limiter := middleware.NewIPRateLimiter(rate.Limit(c.RateLimitPerSecond), c.RateLimitBurstLimit)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead},
		AllowedHeaders: []string{"Content-Type", middleware.APIKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "X-Lyrics-Status", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
	})

	handler := middleware.APIKeyMiddleware(c.APIKey, c.APIKeyRequired, publicPaths)(router)
	handler = middleware.RateLimitMiddleware(limiter)(handler)
	handler = corsHandler.Handler(handler)
	return middleware.LoggingMiddleware(handler)
}

func main() {
	bootstrap.ConfigureLogging(conf)
	stats.InitMetrics()

	var err error
	app, err = bootstrap.New(conf)
	if err != nil {
		log.Fatalf("%s Failed to initialize: %v", logcolors.LogServer, err)
	}
	if err := app.Start(); err != nil {
		app.Close()
		log.Fatalf("%s Failed to start background jobs: %v", logcolors.LogServer, err)
	}

	router := mux.NewRouter()
	setupRoutes(router)

	port := conf.Configuration.Port
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           buildHandler(router, conf),
		ReadHeaderTimeout: 10 * time.Second,
		// The lyrics waterfall can take several retried fetches per source
		WriteTimeout: 3 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("%s Server listening on port %s", logcolors.LogServer, port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("%s Server error: %v", logcolors.LogServer, err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infof("%s Shutting down", logcolors.LogServer)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("%s Graceful shutdown failed: %v", logcolors.LogServer, err)
	}
	if err := app.Close(); err != nil {
		log.Warnf("%s Error closing components: %v", logcolors.LogServer, err)
	}
}
