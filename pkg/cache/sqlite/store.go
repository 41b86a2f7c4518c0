// Package sqlite implements the cache.Store interface on a
// quota-constrained SQLite key-value table.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/archlens/archlens/pkg/cache"
)

// Store is a capacity-bounded string key-value store. WriteString
// reports cache.ErrQuotaExceeded when a write would push the total
// stored bytes past the configured quota, mirroring a browser storage
// quota.
type Store struct {
	db       *sql.DB
	maxBytes int64
}

const createKVTable = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key   TEXT NOT NULL PRIMARY KEY,
	value TEXT NOT NULL
);
`

// New opens (or creates) the store at dbPath with the given byte quota.
// A quota of zero or less means unbounded.
func New(dbPath string, maxBytes int64) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	if _, err := db.Exec(createKVTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}

	return &Store{db: db, maxBytes: maxBytes}, nil
}

// ReadString returns the value stored under key.
func (s *Store) ReadString(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

// WriteString stores value under key, replacing any previous value.
func (s *Store) WriteString(key, value string) error {
	if s.maxBytes > 0 {
		used, err := s.usedBytes()
		if err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		next := used + int64(len(key)+len(value))
		var oldLen sql.NullInt64
		err = s.db.QueryRow(`SELECT length(key) + length(value) FROM kv_entries WHERE key = ?`, key).Scan(&oldLen)
		if err == nil && oldLen.Valid {
			next -= oldLen.Int64
		} else if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("write %s: %w", key, err)
		}
		if next > s.maxBytes {
			return fmt.Errorf("write %s (%d of %d bytes): %w", key, next, s.maxBytes, cache.ErrQuotaExceeded)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO kv_entries (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// RemoveKey deletes key from the store. Absent keys are not an error.
func (s *Store) RemoveKey(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// ListKeys returns every key starting with prefix.
func (s *Store) ListKeys(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT key FROM kv_entries WHERE key LIKE ? || '%' ESCAPE '\'`,
		escapeLike(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// usedBytes returns the total stored size across all namespaces.
func (s *Store) usedBytes() (int64, error) {
	var used sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(length(key) + length(value)) FROM kv_entries`).Scan(&used)
	if err != nil {
		return 0, err
	}
	return used.Int64, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
