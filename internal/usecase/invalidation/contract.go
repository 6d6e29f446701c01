package invalidation

import "context"

// Cache evicts derived view entries.
type Cache interface {
	EvictIDs(ctx context.Context, ids []string) (int64, error)
	Flush(ctx context.Context) (int64, error)
}
