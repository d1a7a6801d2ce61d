// Package circuitbreaker stops hammering a lyric source that keeps failing.
package circuitbreaker

import (
	"context"
	"errors"
	"lyrics-bridge-go/logcolors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // requests flow
	StateOpen                  // requests rejected until cooldown passes
	StateHalfOpen              // one trial request in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateChangeFunc is called, outside the lock, after every transition.
type StateChangeFunc func(name string, from, to State)

// Config holds circuit breaker configuration
type Config struct {
	Name            string
	Threshold       int           // consecutive failures before opening. Default: 5.
	Cooldown        time.Duration // time spent open before probing. Default: 5m.
	HalfOpenTimeout time.Duration // trial deadline before reopening. Default: 30s.
	OnStateChange   StateChangeFunc
	Now             func() time.Time
}

func (c *Config) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Minute
	}
	if c.HalfOpenTimeout <= 0 {
		c.HalfOpenTimeout = 30 * time.Second
	}
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// CircuitBreaker guards a single upstream.
type CircuitBreaker struct {
	cfg Config

	mu            sync.RWMutex
	state         State
	failures      int
	openedAt      time.Time
	halfOpenStart time.Time
	trialPending  bool // a half-open trial was admitted and has not reported back
}

// New creates a new circuit breaker
func New(cfg Config) *CircuitBreaker {
	cfg.defaults()
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Name returns the upstream this breaker guards.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Allow reports whether a request may proceed. An open breaker whose cooldown
// has elapsed lets exactly one trial request through and moves to HALF-OPEN.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	from := cb.state
	allowed := cb.allowLocked()
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return allowed
}

func (cb *CircuitBreaker) allowLocked() bool {
	now := cb.cfg.Now()
	switch cb.state {
	case StateOpen:
		if now.Sub(cb.openedAt) < cb.cfg.Cooldown {
			return false
		}
		cb.state = StateHalfOpen
		cb.halfOpenStart = now
		cb.trialPending = true
		log.Infof("%s Cooldown passed, trying one request", logcolors.CircuitBreakerPrefix(cb.cfg.Name))
		return true
	case StateHalfOpen:
		if now.Sub(cb.halfOpenStart) >= cb.cfg.HalfOpenTimeout {
			cb.state = StateOpen
			cb.openedAt = now
			log.Warnf("%s Trial request timed out, reopening", logcolors.CircuitBreakerPrefix(cb.cfg.Name))
		}
		return false
	default:
		return true
	}
}

// RecordSuccess clears the failure streak. A success from the admitted trial
// request closes the breaker, even if the trial outlived HalfOpenTimeout.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	cb.failures = 0
	if cb.state == StateHalfOpen || (cb.state == StateOpen && cb.trialPending) {
		cb.state = StateClosed
		cb.trialPending = false
		log.Infof("%s Trial request succeeded, closing", logcolors.CircuitBreakerPrefix(cb.cfg.Name))
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// RecordFailure extends the failure streak and opens the breaker at threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	cb.failures++
	now := cb.cfg.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.openedAt = now
		cb.trialPending = false
		log.Warnf("%s Trial request failed, reopening", logcolors.CircuitBreakerPrefix(cb.cfg.Name))
	case StateOpen:
		cb.trialPending = false
	case StateClosed:
		if cb.failures >= cb.cfg.Threshold {
			cb.state = StateOpen
			cb.openedAt = now
			log.Warnf("%s %d consecutive failures, opening for %v",
				logcolors.CircuitBreakerPrefix(cb.cfg.Name), cb.failures, cb.cfg.Cooldown)
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// Release reports that an admitted request ended without a verdict on the
// upstream. The failure streak is untouched; a half-open breaker returns to
// OPEN with its original cooldown so the next Allow may try again.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateHalfOpen {
		cb.state = StateOpen
	}
	cb.trialPending = false
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// Execute runs fn if the breaker allows it and records the outcome. An error
// wrapping context.Canceled is released, not counted as a failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	switch {
	case err == nil:
		cb.RecordSuccess()
	case errors.Is(err, context.Canceled):
		cb.Release()
	default:
		cb.RecordFailure()
	}
	return err
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.openedAt = time.Time{}
	cb.halfOpenStart = time.Time{}
	cb.trialPending = false
	cb.mu.Unlock()

	log.Infof("%s Manually reset to CLOSED", logcolors.CircuitBreakerPrefix(cb.cfg.Name))
	cb.notify(from, StateClosed)
}

// TimeUntilRetry returns the remaining cooldown for an open breaker, else 0.
func (cb *CircuitBreaker) TimeUntilRetry() time.Duration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if cb.state != StateOpen {
		return 0
	}
	remaining := cb.cfg.Cooldown - cb.cfg.Now().Sub(cb.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
