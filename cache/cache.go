// Package cache is the key/value store that holds serialized indexes.
// Every backend gives the same answers: expired entries read as absent and
// are dropped when read.
package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrEmptyKey is returned for operations on "".
var ErrEmptyKey = errors.New("empty cache key")

// Store is a key/value store with optional per-entry TTL. It makes no
// transactional promises; read-modify-write races are the caller's.
type Store interface {
	// Get returns the value and true, or nil and false when absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	// Keys lists live keys matching a glob where * is any run of
	// characters and ? is one character. An empty pattern matches all.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// Provider names a backend.
type Provider string

const (
	ProviderMemory Provider = "memory"
	ProviderFile   Provider = "file"
	ProviderBolt   Provider = "bolt"
	ProviderSQLite Provider = "sqlite"
	ProviderRedis  Provider = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Provider Provider `mapstructure:"provider"`
	// Path is the directory for file, or the database file for bolt and sqlite.
	Path string `mapstructure:"path"`
	// RedisURL is a redis:// URL for the redis backend.
	RedisURL string `mapstructure:"redis_url"`
	// MaxEntries caps the memory backend.
	MaxEntries int `mapstructure:"max_entries"`
}

// Open constructs the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Provider {
	case ProviderMemory, "":
		return NewMemory(cfg.MaxEntries), nil
	case ProviderFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("open file cache: path required")
		}
		return NewFileOS(cfg.Path)
	case ProviderBolt:
		if cfg.Path == "" {
			return nil, fmt.Errorf("open bolt cache: path required")
		}
		return OpenBolt(cfg.Path)
	case ProviderSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("open sqlite cache: path required")
		}
		return OpenSQLite(cfg.Path)
	case ProviderRedis:
		return OpenRedis(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("open cache: unknown provider %q", cfg.Provider)
	}
}

// Match reports whether key matches the glob pattern.
func Match(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	return globRegexp(pattern).MatchString(key)
}

func globRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// expiry converts a ttl into an absolute deadline. Zero means none.
func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(now, deadline time.Time) bool {
	return !deadline.IsZero() && !now.Before(deadline)
}

// nowFunc is the clock, replaceable in tests.
var nowFunc = time.Now
