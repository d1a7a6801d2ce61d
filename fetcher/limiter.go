package fetcher

import (
	"context"
	"lyrics-bridge-go/logcolors"
	"net/url"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HostLimiter keeps one token bucket per outbound host.
type HostLimiter struct {
	hosts map[string]*rate.Limiter
	mu    sync.Mutex
	rate  rate.Limit
	burst int
}

// NewHostLimiter creates a limiter handing out r requests per second per host.
func NewHostLimiter(r rate.Limit, burst int) *HostLimiter {
	return &HostLimiter{
		hosts: make(map[string]*rate.Limiter),
		rate:  r,
		burst: burst,
	}
}

// GetLimiter returns the bucket for host, creating it on first use.
func (h *HostLimiter) GetLimiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	limiter, exists := h.hosts[host]
	if !exists {
		limiter = rate.NewLimiter(h.rate, h.burst)
		h.hosts[host] = limiter
	}
	return limiter
}

// Wait blocks until the host of rawURL may be contacted again.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h.rate == rate.Inf {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	limiter := h.GetLimiter(u.Host)
	if limiter.Tokens() < 1 {
		log.Debugf("%s Waiting for a slot on %s", logcolors.LogThrottle, u.Host)
	}
	return limiter.Wait(ctx)
}
