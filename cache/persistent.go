package cache

import (
	"encoding/json"
	"fmt"
	"lyrics-bridge-go/logcolors"
	"lyrics-bridge-go/utils"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// BoltStore wraps BoltDB with an in-memory mirror for lock-free reads.
// Each logical table is its own bucket.
type BoltStore struct {
	db                 *bolt.DB
	memCache           sync.Map // memKey(table, key) -> storedEntry
	dbPath             string
	backupPath         string
	compressionEnabled bool
}

// storedEntry is the on-disk representation. Value may be gzip+base64 encoded.
type storedEntry struct {
	Value      string `json:"value"`
	CreatedAt  int64  `json:"createdAt"` // unix nanos
	Compressed bool   `json:"compressed,omitempty"`
}

// NewBoltStore opens (or creates) the bolt file and preloads every table into memory.
func NewBoltStore(dbPath string, backupPath string, compressionEnabled bool) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if backupPath != "" {
		if err := os.MkdirAll(backupPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create backup directory: %w", err)
		}
	}

	if info, err := os.Stat(dbPath); err == nil {
		log.Infof("%s Found existing database file at: %s (size: %d bytes)", logcolors.LogCacheInit, dbPath, info.Size())
	} else {
		log.Infof("%s Creating new database file at: %s", logcolors.LogCacheInit, dbPath)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, table := range Tables() {
			if _, err := tx.CreateBucketIfNotExists([]byte(table)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache buckets: %w", err)
	}

	bs := &BoltStore{
		db:                 db,
		dbPath:             dbPath,
		backupPath:         backupPath,
		compressionEnabled: compressionEnabled,
	}

	if err := bs.loadToMemory(); err != nil {
		log.Warnf("%s Failed to preload cache to memory: %v", logcolors.LogCache, err)
	}

	log.Infof("%s Bolt cache initialized at %s (compression: %v)", logcolors.LogCacheInit, dbPath, compressionEnabled)
	return bs, nil
}

func memKey(table, key string) string {
	return table + "\x00" + key
}

// loadToMemory loads all cache entries from disk to memory
func (bs *BoltStore) loadToMemory() error {
	count := 0
	err := bs.db.View(func(tx *bolt.Tx) error {
		for _, table := range Tables() {
			b := tx.Bucket([]byte(table))
			if b == nil {
				continue
			}
			err := b.ForEach(func(k, v []byte) error {
				var se storedEntry
				if err := json.Unmarshal(v, &se); err != nil {
					log.Warnf("%s Failed to unmarshal entry %s/%s: %v", logcolors.LogCache, table, string(k), err)
					return nil
				}
				bs.memCache.Store(memKey(table, string(k)), se)
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Infof("%s Loaded %d entries from disk to memory", logcolors.LogCache, count)
	return nil
}

func (bs *BoltStore) decode(key string, se storedEntry) (Entry, error) {
	value := se.Value
	if se.Compressed {
		decompressed, err := utils.DecompressString(value)
		if err != nil {
			return Entry{}, fmt.Errorf("decompress %q: %w", key, err)
		}
		value = decompressed
	}
	return Entry{Key: key, Value: value, CreatedAt: time.Unix(0, se.CreatedAt)}, nil
}

// Load retrieves an entry (memory first, then disk).
func (bs *BoltStore) Load(table, key string) (Entry, bool, error) {
	if err := validTable(table); err != nil {
		return Entry{}, false, err
	}

	if v, ok := bs.memCache.Load(memKey(table, key)); ok {
		e, err := bs.decode(key, v.(storedEntry))
		if err != nil {
			return Entry{}, false, err
		}
		return e, true, nil
	}

	var (
		se    storedEntry
		found bool
	)
	err := bs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("bucket %s not found", table)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &se)
	})
	if err != nil || !found {
		return Entry{}, false, err
	}

	bs.memCache.Store(memKey(table, key), se)
	e, err := bs.decode(key, se)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Store upserts an entry in memory and on disk.
func (bs *BoltStore) Store(table string, entry Entry) error {
	if err := validTable(table); err != nil {
		return err
	}

	se := storedEntry{Value: entry.Value, CreatedAt: entry.CreatedAt.UnixNano()}
	if bs.compressionEnabled {
		compressed, err := utils.CompressString(entry.Value)
		if err != nil {
			log.Errorf("%s Error compressing value for key %s: %v", logcolors.LogCache, entry.Key, err)
			return err
		}
		se.Value = compressed
		se.Compressed = true
	}

	data, err := json.Marshal(se)
	if err != nil {
		return err
	}

	err = bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("bucket %s not found", table)
		}
		return b.Put([]byte(entry.Key), data)
	})
	if err != nil {
		return err
	}

	bs.memCache.Store(memKey(table, entry.Key), se)
	return nil
}

// DeleteOlderThan removes entries created before cutoff and returns how many were removed.
func (bs *BoltStore) DeleteOlderThan(table string, cutoff time.Time) (int, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}

	limit := cutoff.UnixNano()
	var deleted []string
	err := bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("bucket %s not found", table)
		}
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var se storedEntry
			if err := json.Unmarshal(v, &se); err != nil || se.CreatedAt < limit {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted = append(deleted, string(k))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, k := range deleted {
		bs.memCache.Delete(memKey(table, k))
	}
	return len(deleted), nil
}

// Count returns the number of rows in a table, expired ones included.
func (bs *BoltStore) Count(table string) (int, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}
	n := 0
	err := bs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Backup writes a consistent snapshot of the database into the backup directory
// and returns the file path.
func (bs *BoltStore) Backup() (string, error) {
	if bs.backupPath == "" {
		return "", fmt.Errorf("backup path not configured")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	backupFilePath := filepath.Join(bs.backupPath, fmt.Sprintf("cache_backup_%s.db", timestamp))

	log.Infof("%s Creating backup at: %s", logcolors.LogCacheBackup, backupFilePath)

	err := bs.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(backupFilePath, 0600)
	})
	if err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	log.Infof("%s Backup created successfully: %s", logcolors.LogCacheBackup, backupFilePath)
	return backupFilePath, nil
}

// Close closes the database connection
func (bs *BoltStore) Close() error {
	if bs.db != nil {
		return bs.db.Close()
	}
	return nil
}
