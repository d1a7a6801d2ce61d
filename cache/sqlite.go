package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"lyrics-bridge-go/logcolors"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps one table per logical cache table.
// Writes go through a single connection; reads use their own pool so
// lookups for different keys never queue behind a write.
type SQLiteStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

const sqliteDSNOptions = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// NewSQLiteStore opens (or creates) the sqlite file and ensures the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath+sqliteDSNOptions)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	s := &SQLiteStore{writeDB: writeDB}
	if err := s.init(); err != nil {
		writeDB.Close()
		return nil, err
	}

	readDB, err := sql.Open("sqlite", dbPath+sqliteDSNOptions)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}
	s.readDB = readDB

	log.Infof("%s SQLite cache initialized at %s", logcolors.LogCacheInit, dbPath)
	return s, nil
}

func (s *SQLiteStore) init() error {
	for _, table := range Tables() {
		_, err := s.writeDB.Exec(fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				key        TEXT PRIMARY KEY,
				value      TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at);
		`, table))
		if err != nil {
			return fmt.Errorf("initializing schema for %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Load(table, key string) (Entry, bool, error) {
	if err := validTable(table); err != nil {
		return Entry{}, false, err
	}

	var (
		value   string
		created int64
	)
	row := s.readDB.QueryRow(fmt.Sprintf(`SELECT value, created_at FROM %s WHERE key = ?`, table), key)
	if err := row.Scan(&value, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("loading %s/%q: %w", table, key, err)
	}
	return Entry{Key: key, Value: value, CreatedAt: time.Unix(0, created)}, true, nil
}

func (s *SQLiteStore) Store(table string, entry Entry) error {
	if err := validTable(table); err != nil {
		return err
	}

	_, err := s.writeDB.Exec(fmt.Sprintf(`
		INSERT INTO %s (key, value, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at
	`, table), entry.Key, entry.Value, entry.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upserting %s/%q: %w", table, entry.Key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteOlderThan(table string, cutoff time.Time) (int, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}

	res, err := s.writeDB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE created_at < ?`, table), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweeping %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) Count(table string) (int, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}

	var n int
	if err := s.readDB.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	return errors.Join(errs...)
}
