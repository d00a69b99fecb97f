package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ghyeongl/warehouse/cache"
	"github.com/ghyeongl/warehouse/index"
)

// IndexKeyPrefix namespaces indexes in the key/value store.
const IndexKeyPrefix = "index:"

// IndexKey returns the store key for root.
func IndexKey(root string) string {
	return IndexKeyPrefix + root
}

// IndexStore reads and writes whole indexes as JSON. It never writes a
// partial index.
type IndexStore struct {
	kv  cache.Store
	ttl time.Duration
}

// NewIndexStore wraps kv. ttl <= 0 keeps indexes until deleted.
func NewIndexStore(kv cache.Store, ttl time.Duration) *IndexStore {
	return &IndexStore{kv: kv, ttl: ttl}
}

// Load returns the stored index, or (nil, nil) if there is none.
func (s *IndexStore) Load(ctx context.Context, root string) (*index.Index, error) {
	data, ok, err := s.kv.Get(ctx, IndexKey(root))
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", root, err)
	}
	if !ok {
		return nil, nil
	}
	var idx index.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", root, err)
	}
	idx.Normalize()
	return &idx, nil
}

// Save writes the whole index.
func (s *IndexStore) Save(ctx context.Context, idx *index.Index) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index %s: %w", idx.RootFolderID, err)
	}
	if err := s.kv.Set(ctx, IndexKey(idx.RootFolderID), data, s.ttl); err != nil {
		return fmt.Errorf("save index %s: %w", idx.RootFolderID, err)
	}
	return nil
}

// Delete removes the stored index for root.
func (s *IndexStore) Delete(ctx context.Context, root string) error {
	if err := s.kv.Delete(ctx, IndexKey(root)); err != nil {
		return fmt.Errorf("delete index %s: %w", root, err)
	}
	return nil
}

// Roots lists every root with a stored index.
func (s *IndexStore) Roots(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, IndexKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	roots := make([]string, 0, len(keys))
	for _, k := range keys {
		roots = append(roots, strings.TrimPrefix(k, IndexKeyPrefix))
	}
	return roots, nil
}
