package cache

import (
	"fmt"
	"lyrics-bridge-go/logcolors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Sweeper physically deletes rows that have outlived the retention window.
// ResultCache already hides them; the sweep only reclaims space.
type Sweeper struct {
	backend   Backend
	retention time.Duration
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSweeper(backend Backend, retention time.Duration) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Sweeper{
		backend:   backend,
		retention: retention,
		now:       time.Now,
	}
}

// SweepNow deletes expired rows from every table and returns the total removed.
func (s *Sweeper) SweepNow() (int, error) {
	cutoff := s.now().Add(-s.retention)
	total := 0
	for _, table := range Tables() {
		n, err := s.backend.DeleteOlderThan(table, cutoff)
		if err != nil {
			return total, fmt.Errorf("sweep %s: %w", table, err)
		}
		if n > 0 {
			log.Infof("%s Deleted %d expired entries from %s", logcolors.LogCacheSweep, n, table)
		}
		total += n
	}
	return total, nil
}

// Start runs SweepNow on a cron schedule such as "@every 1h" or "0 3 * * *".
func (s *Sweeper) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.SweepNow(); err != nil {
			log.Errorf("%s Sweep failed: %v", logcolors.LogCacheSweep, err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c

	log.Infof("%s Retention sweep scheduled (%s, retention %v)", logcolors.LogCacheSweep, schedule, s.retention)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}
