package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultMaxEntries caps the memory backend when no size is configured.
const DefaultMaxEntries = 1000

// Memory is an in-process store. When full, the least recently used
// entry is evicted.
type Memory struct {
	c *ttlcache.Cache[string, []byte]
}

// NewMemory returns a memory store holding at most maxEntries entries.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := ttlcache.New[string, []byte](
		ttlcache.WithCapacity[string, []byte](uint64(maxEntries)),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go c.Start()
	return &Memory{c: c}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	item := m.c.Get(key)
	if item == nil {
		return nil, false, nil
	}
	if item.IsExpired() {
		m.c.Delete(key)
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	m.c.Set(key, value, ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *Memory) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *Memory) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	for _, k := range m.c.Keys() {
		if !Match(pattern, k) {
			continue
		}
		if ok, _ := m.Has(ctx, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) Close() error {
	m.c.Stop()
	return nil
}
