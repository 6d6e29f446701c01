package pipeline

import (
	"context"

	"github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	"github.com/kailas-cloud/corpusrank/internal/event"
	"github.com/kailas-cloud/corpusrank/internal/usecase/percentile"
	"github.com/kailas-cloud/corpusrank/internal/usecase/projector"
)

// Source reads bills and tombstones from the ingestion store.
type Source interface {
	Get(ctx context.Context, id string) (bill.Bill, error)
	All(ctx context.Context) ([]bill.Bill, error)
	ChangedSince(ctx context.Context, seq int64) ([]bill.Bill, error)
	TombstonesSince(ctx context.Context, seq int64) ([]string, error)
	MaxSeq(ctx context.Context) (int64, error)
}

// Ranker recomputes percentile snapshots.
type Ranker interface {
	Recompute(ctx context.Context, names []metric.Name) (percentile.Result, error)
}

// Projector writes search documents.
type Projector interface {
	UpsertAll(ctx context.Context, bills []bill.Bill) projector.BatchResult
	Delete(ctx context.Context, ids []string) (int64, error)
}

// Invalidator evicts derived cache entries.
type Invalidator interface {
	Invalidate(ctx context.Context, scope event.Scope) error
}

// Cursor persists the indexed sequence between process restarts.
type Cursor interface {
	Load(ctx context.Context) (int64, error)
	Save(ctx context.Context, seq int64) error
}
