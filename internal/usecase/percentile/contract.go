package percentile

import (
	"context"

	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	dompct "github.com/kailas-cloud/corpusrank/internal/domain/percentile"
)

// SampleSource reads raw metric rows from the metric store.
type SampleSource interface {
	Samples(ctx context.Context, names []metric.Name) ([]metric.Sample, error)
}

// SnapshotStore persists snapshots so they survive restarts.
type SnapshotStore interface {
	NextVersion(ctx context.Context) (int64, error)
	Publish(ctx context.Context, snap *dompct.Snapshot) error
	Load(ctx context.Context) (*dompct.Snapshot, error)
	Sweep(ctx context.Context, keep int64) (int64, error)
}

// Runner executes independent units on a bounded pool.
type Runner interface {
	Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error
}
