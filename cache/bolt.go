package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/asdine/storm/v3"
	bolt "go.etcd.io/bbolt"
)

const boltBucket = "warehouse"

type boltRecord struct {
	Key       string `storm:"id"`
	Value     []byte
	ExpiresAt time.Time
}

// Bolt keeps entries in a single bbolt file through storm.
type Bolt struct {
	db   *storm.DB
	node storm.Node
}

// OpenBolt opens or creates the database file at path.
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("mkdir bolt dir: %w", err)
	}
	db, err := storm.Open(path, storm.BoltOptions(0640, &bolt.Options{Timeout: 5 * time.Second}))
	if err != nil {
		return nil, fmt.Errorf("open bolt cache: %w", err)
	}
	return &Bolt{db: db, node: db.From(boltBucket)}, nil
}

// one returns (nil, nil) when the key is absent.
func (b *Bolt) one(key string) (*boltRecord, error) {
	var rec boltRecord
	err := b.node.One("Key", key, &rec)
	if errors.Is(err, storm.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bolt entry: %w", err)
	}
	return &rec, nil
}

func (b *Bolt) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	rec, err := b.one(key)
	if err != nil || rec == nil {
		return nil, false, err
	}
	if expired(nowFunc(), rec.ExpiresAt) {
		b.node.DeleteStruct(rec) //nolint:errcheck
		return nil, false, nil
	}
	return rec.Value, true, nil
}

func (b *Bolt) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	rec := boltRecord{Key: key, Value: value, ExpiresAt: expiry(nowFunc(), ttl)}
	if err := b.node.Save(&rec); err != nil {
		return fmt.Errorf("save bolt entry: %w", err)
	}
	return nil
}

func (b *Bolt) Delete(_ context.Context, key string) error {
	err := b.node.DeleteStruct(&boltRecord{Key: key})
	if err != nil && !errors.Is(err, storm.ErrNotFound) {
		return fmt.Errorf("delete bolt entry: %w", err)
	}
	return nil
}

func (b *Bolt) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

func (b *Bolt) Keys(_ context.Context, pattern string) ([]string, error) {
	var recs []boltRecord
	if err := b.node.All(&recs); err != nil {
		return nil, fmt.Errorf("list bolt entries: %w", err)
	}
	now := nowFunc()
	var out []string
	for i := range recs {
		rec := &recs[i]
		if !Match(pattern, rec.Key) {
			continue
		}
		if expired(now, rec.ExpiresAt) {
			b.node.DeleteStruct(rec) //nolint:errcheck
			continue
		}
		out = append(out, rec.Key)
	}
	return out, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
