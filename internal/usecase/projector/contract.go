package projector

import (
	"context"

	dompct "github.com/kailas-cloud/corpusrank/internal/domain/percentile"
	"github.com/kailas-cloud/corpusrank/internal/domain/searchdoc"
)

// Index is the search index collaborator.
type Index interface {
	EnsureIndex(ctx context.Context) (created bool, err error)
	Upsert(ctx context.Context, doc searchdoc.Document) error
	Fingerprints(ctx context.Context, ids []string) ([]string, error)
	Delete(ctx context.Context, ids []string) (int64, error)
}

// SnapshotReader serves the current percentile snapshot.
type SnapshotReader interface {
	Current() *dompct.Snapshot
}

// Runner executes independent units on a bounded pool.
type Runner interface {
	Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error
}
