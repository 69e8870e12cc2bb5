package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Store is a TTL keyed cache. Entries are never proactively evicted;
// staleness is enforced only at read time, and writes are last-write-wins.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

type Result struct {
	Hit   bool
	Value []byte
	Age   time.Duration
	Stale bool
}

// Key builds a cache key scoped by data kind, chain and account. Chain
// identity is part of the key so entries captured on one chain never leak
// into reads after a chain switch.
func Key(kind string, chainID int64, accountID string) string {
	return fmt.Sprintf("%s|eip155:%d|%s", kind, chainID, accountID)
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS cache_entries (key TEXT PRIMARY KEY, value BLOB NOT NULL, captured_at INTEGER NOT NULL, ttl_seconds INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get reports a hit only when the entry is younger than its TTL. An expired
// entry is returned with Stale set so callers can decide whether degraded
// data is acceptable; it is never presented as fresh.
func (s *Store) Get(key string) (Result, error) {
	var value []byte
	var capturedUnix int64
	var ttlSeconds int64
	err := s.db.QueryRow("SELECT value, captured_at, ttl_seconds FROM cache_entries WHERE key = ?", key).Scan(&value, &capturedUnix, &ttlSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{Hit: false}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}

	captured := time.Unix(capturedUnix, 0).UTC()
	age := time.Since(captured)
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlSeconds) * time.Second

	return Result{
		Hit:   true,
		Value: value,
		Age:   age,
		Stale: age >= ttl,
	}, nil
}

// Set replaces any prior entry for the key unconditionally.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	capturedUnix := time.Now().UTC().Unix()
	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO cache_entries (key, value, captured_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			captured_at=excluded.captured_at,
			ttl_seconds=excluded.ttl_seconds
	`, key, value, capturedUnix, ttlSeconds)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Expire backdates an entry's capture time. Test hook for TTL behavior.
func (s *Store) Expire(key string, by time.Duration) error {
	_, err := s.db.Exec("UPDATE cache_entries SET captured_at = captured_at - ? WHERE key = ?", int64(by.Seconds()), key)
	if err != nil {
		return fmt.Errorf("cache expire: %w", err)
	}
	return nil
}
