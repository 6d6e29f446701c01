package chi

import (
	"context"

	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	dompct "github.com/kailas-cloud/corpusrank/internal/domain/percentile"
	"github.com/kailas-cloud/corpusrank/internal/domain/run"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/request"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/corpusrank/internal/usecase/health"
)

// HealthChecker reports backend health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Percentiles serves the current snapshot and metric population stats.
type Percentiles interface {
	Current() *dompct.Snapshot
	Summary(ctx context.Context, m metric.Name) (dompct.Stats, error)
}

// Searcher runs bill searches.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (result.Page, error)
}

// Runs starts pipeline runs and reports on them.
type Runs interface {
	Start(ctx context.Context, opts run.Options) (string, error)
	Last() (run.Report, bool)
	Cancel() bool
}

// Corpus groups bills by categorical fields.
type Corpus interface {
	CountBy(ctx context.Context, field string) (map[string]int64, error)
}
