package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ghyeongl/warehouse/logging"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    expires_at INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// SQLite keeps entries in a kv table. Deadlines are unix nanoseconds;
// zero means no expiry.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	l := logging.Sub("cache")
	l.Info("opening sqlite cache", "path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("mkdir sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
		l.Debug(pragma)
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	l := logging.Sub("cache")
	var version int
	err := db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		// fresh database
		if _, execErr := db.Exec(sqliteSchema); execErr != nil {
			return fmt.Errorf("create schema: %w", execErr)
		}
		if _, execErr := db.Exec("INSERT INTO meta (key, value) VALUES ('schema_version', ?)", sqliteSchemaVersion); execErr != nil {
			return fmt.Errorf("set schema version: %w", execErr)
		}
		l.Info("sqlite cache schema created", "version", sqliteSchemaVersion)
		return nil
	}
	if version > sqliteSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, sqliteSchemaVersion)
	}
	l.Debug("sqlite cache schema up to date", slog.Int("version", version))
	return nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT value, expires_at FROM kv WHERE key = ?", key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get sqlite entry: %w", err)
	}
	if expiresAt != 0 && nowFunc().UnixNano() >= expiresAt {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ? AND expires_at = ?", key, expiresAt); err != nil {
			return nil, false, fmt.Errorf("purge sqlite entry: %w", err)
		}
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}
	now := nowFunc()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, created_at = excluded.created_at`,
		key, value, unixNano(expiry(now, ttl)), now.UnixNano())
	if err != nil {
		return fmt.Errorf("set sqlite entry: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete sqlite entry: %w", err)
	}
	return nil
}

func (s *SQLite) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *SQLite) Keys(ctx context.Context, pattern string) ([]string, error) {
	now := nowFunc().UnixNano()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE expires_at != 0 AND expires_at <= ?", now); err != nil {
		return nil, fmt.Errorf("purge sqlite entries: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list sqlite entries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan sqlite key: %w", err)
		}
		if Match(pattern, key) {
			out = append(out, key)
		}
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
