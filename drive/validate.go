package drive

import (
	"context"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is how many remote checks run together.
const DefaultBatchSize = 5

// ValidateFoldersExist checks access to every id in batches. Each batch
// finishes before the next starts. Results follow the order of ids.
func ValidateFoldersExist(ctx context.Context, c Client, ids []string, batchSize int) ([]Access, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make([]Access, 0, len(ids))
	for _, batch := range lo.Chunk(ids, batchSize) {
		results := make([]Access, len(batch))
		var g errgroup.Group
		for i, id := range batch {
			g.Go(func() error {
				if !ValidateID(id) {
					results[i] = Access{ID: id, Reason: ErrInvalidInput.Error()}
					return nil
				}
				a, err := CheckAccess(ctx, c, id)
				results[i] = a
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return out, err
		}
		out = append(out, results...)
	}
	return out, nil
}
