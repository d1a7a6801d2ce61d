package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is advanced by hand so state transitions don't need real sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)}
	cb := New(Config{Name: "genius", Threshold: threshold, Cooldown: cooldown, Now: clock.Now})
	return cb, clock
}

func TestNew_Defaults(t *testing.T) {
	cb := New(Config{})

	if cb.cfg.Threshold != 5 {
		t.Errorf("Expected default threshold 5, got %d", cb.cfg.Threshold)
	}
	if cb.cfg.Cooldown != 5*time.Minute {
		t.Errorf("Expected default cooldown 5m, got %v", cb.cfg.Cooldown)
	}
	if cb.cfg.HalfOpenTimeout != 30*time.Second {
		t.Errorf("Expected default half-open timeout 30s, got %v", cb.cfg.HalfOpenTimeout)
	}
	if cb.Name() != "default" {
		t.Errorf("Expected default name, got %q", cb.Name())
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected CLOSED, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	for i := 1; i <= 2; i++ {
		cb.RecordFailure()
		if cb.State() != StateClosed {
			t.Fatalf("Expected CLOSED after %d failures, got %s", i, cb.State())
		}
	}
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("Expected OPEN after 3 failures, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected Allow() to be false while OPEN")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	if cb.Failures() != 0 {
		t.Errorf("Expected 0 failures after success, got %d", cb.Failures())
	}
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Error("Expected streak to restart after a success")
	}
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	tests := []struct {
		name      string
		trialOK   bool
		wantState State
	}{
		{"trial succeeds", true, StateClosed},
		{"trial fails", false, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(2, time.Minute)
			cb.RecordFailure()
			cb.RecordFailure()

			clock.Advance(59 * time.Second)
			if cb.Allow() {
				t.Fatal("Expected request to be blocked before cooldown")
			}

			clock.Advance(time.Second)
			if !cb.Allow() {
				t.Fatal("Expected one trial request after cooldown")
			}
			if cb.State() != StateHalfOpen {
				t.Fatalf("Expected HALF-OPEN, got %s", cb.State())
			}
			if cb.Allow() {
				t.Error("Expected only one trial request while HALF-OPEN")
			}

			if tt.trialOK {
				cb.RecordSuccess()
			} else {
				cb.RecordFailure()
			}
			if cb.State() != tt.wantState {
				t.Errorf("Expected %s, got %s", tt.wantState, cb.State())
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenTimeout(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)
	cb.RecordFailure()
	clock.Advance(time.Minute)
	cb.Allow()

	clock.Advance(30 * time.Second)
	if cb.Allow() {
		t.Error("Expected stalled trial request to block requests")
	}
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN after trial timeout, got %s", cb.State())
	}
	if got := cb.TimeUntilRetry(); got != time.Minute {
		t.Errorf("Expected full cooldown to restart, got %v", got)
	}
}

func TestCircuitBreaker_SlowTrialOutcome(t *testing.T) {
	tests := []struct {
		name      string
		trialOK   bool
		wantState State
	}{
		{"late success closes", true, StateClosed},
		{"late failure stays open", false, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(1, time.Minute)
			cb.RecordFailure()
			clock.Advance(time.Minute)
			if !cb.Allow() {
				t.Fatal("Expected trial request after cooldown")
			}

			// The trial outlives HalfOpenTimeout and a concurrent caller reopens the breaker.
			clock.Advance(40 * time.Second)
			if cb.Allow() {
				t.Fatal("Expected requests to stay blocked while the trial is outstanding")
			}
			if cb.State() != StateOpen {
				t.Fatalf("Expected OPEN after trial timeout, got %s", cb.State())
			}

			if tt.trialOK {
				cb.RecordSuccess()
			} else {
				cb.RecordFailure()
			}
			if cb.State() != tt.wantState {
				t.Errorf("Expected %s, got %s", tt.wantState, cb.State())
			}
		})
	}
}

func TestCircuitBreaker_StragglerSuccessKeepsOpen(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	cb.RecordFailure()

	// A request admitted before the breaker opened reports back late.
	cb.RecordSuccess()
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN, got %s", cb.State())
	}
}

func TestCircuitBreaker_ExecuteCanceled(t *testing.T) {
	tests := []struct {
		name         string
		openFirst    bool
		wantState    State
		wantFailures int
	}{
		{"closed breaker ignores cancellation", false, StateClosed, 1},
		{"half-open trial is released", true, StateOpen, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(2, time.Minute)
			cb.RecordFailure()
			if tt.openFirst {
				cb.RecordFailure()
				clock.Advance(time.Minute)
			}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := cb.Execute(func() error {
				return fmt.Errorf("fetch: %w", ctx.Err())
			})
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("Expected context.Canceled, got %v", err)
			}
			if cb.State() != tt.wantState {
				t.Errorf("Expected %s, got %s", tt.wantState, cb.State())
			}
			if cb.Failures() != tt.wantFailures {
				t.Errorf("Expected %d failures, got %d", tt.wantFailures, cb.Failures())
			}

			// The cancelled call must not push the cooldown back.
			if !cb.Allow() {
				t.Error("Expected the next request to be admitted")
			}
		})
	}
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	boom := errors.New("boom")

	if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Expected fn error, got %v", err)
	}
	cb.Execute(func() error { return boom })

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected fn not to run while OPEN")
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	var transitions []string
	cb := New(Config{
		Name:      "lyrics.com",
		Threshold: 1,
		Cooldown:  time.Second,
		Now:       clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	cb.RecordFailure()
	clock.Advance(time.Second)
	cb.Allow()
	cb.RecordSuccess()
	cb.RecordSuccess()

	want := []string{
		"lyrics.com:CLOSED->OPEN",
		"lyrics.com:OPEN->HALF-OPEN",
		"lyrics.com:HALF-OPEN->CLOSED",
	}
	if len(transitions) != len(want) {
		t.Fatalf("Expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("Transition %d: expected %q, got %q", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	cb.RecordFailure()
	cb.Reset()

	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Errorf("Expected clean CLOSED breaker, got %s with %d failures", cb.State(), cb.Failures())
	}
	if cb.TimeUntilRetry() != 0 {
		t.Error("Expected no retry delay after reset")
	}
}

func TestCircuitBreaker_StateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF-OPEN"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := New(Config{Threshold: 1000, Cooldown: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); cb.Allow() }()
		go func() { defer wg.Done(); cb.RecordFailure() }()
		go func() { defer wg.Done(); cb.RecordSuccess() }()
	}
	wg.Wait()

	if s := cb.State(); s != StateClosed {
		t.Errorf("Expected CLOSED with high threshold, got %s", s)
	}
}
