package cache

import (
	"errors"
	"fmt"
	"lyrics-bridge-go/logcolors"
	"time"

	log "github.com/sirupsen/logrus"
)

// Logical tables shared by every backend.
const (
	TableTranslations = "translations"
	TableLyrics       = "lyrics"
)

// DefaultRetention is how long an entry stays valid.
const DefaultRetention = 30 * 24 * time.Hour

var ErrUnknownTable = errors.New("unknown cache table")

// Tables lists every logical table in sweep order.
func Tables() []string {
	return []string{TableTranslations, TableLyrics}
}

func validTable(table string) error {
	for _, t := range Tables() {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

// Entry is one cached resolution.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

// Backend is a durable key/value store split into logical tables.
// Store is an upsert. Backends do not apply retention on Load; ResultCache does.
type Backend interface {
	Load(table, key string) (Entry, bool, error)
	Store(table string, entry Entry) error
	DeleteOlderThan(table string, cutoff time.Time) (int, error)
	Count(table string) (int, error)
	Close() error
}

// ResultCache is a retention-aware view over one backend table.
type ResultCache struct {
	backend   Backend
	table     string
	retention time.Duration
	now       func() time.Time
	observe   func(table string, hit bool)
}

// NewResultCache binds a backend table. A non-positive retention uses DefaultRetention.
func NewResultCache(backend Backend, table string, retention time.Duration) *ResultCache {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &ResultCache{
		backend:   backend,
		table:     table,
		retention: retention,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (c *ResultCache) WithClock(now func() time.Time) *ResultCache {
	c.now = now
	return c
}

// WithObserver registers a hook told about every lookup and whether it hit.
func (c *ResultCache) WithObserver(observe func(table string, hit bool)) *ResultCache {
	c.observe = observe
	return c
}

// Table returns the bound table name.
func (c *ResultCache) Table() string {
	return c.table
}

// Get returns the value for key unless it is absent or older than the retention window.
// Backend errors are logged and reported as a miss.
func (c *ResultCache) Get(key string) (string, bool) {
	value, hit := c.get(key)
	if c.observe != nil {
		c.observe(c.table, hit)
	}
	return value, hit
}

func (c *ResultCache) get(key string) (string, bool) {
	entry, ok, err := c.backend.Load(c.table, key)
	if err != nil {
		log.Errorf("%s Load failed for %s/%q: %v", logcolors.LogCache, c.table, key, err)
		return "", false
	}
	if !ok {
		return "", false
	}
	if c.expired(entry) {
		log.Debugf("%s Ignoring expired entry %s/%q (created %s)", logcolors.LogCache, c.table, key, entry.CreatedAt.Format(time.RFC3339))
		return "", false
	}
	return entry.Value, true
}

// Put upserts key with a fresh timestamp.
func (c *ResultCache) Put(key, value string) error {
	return c.backend.Store(c.table, Entry{
		Key:       key,
		Value:     value,
		CreatedAt: c.now(),
	})
}

func (c *ResultCache) expired(e Entry) bool {
	return c.now().Sub(e.CreatedAt) > c.retention
}
