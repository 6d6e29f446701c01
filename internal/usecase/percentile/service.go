// Package percentile recomputes corpus-relative percentiles and serves the
// current snapshot.
package percentile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	dompct "github.com/kailas-cloud/corpusrank/internal/domain/percentile"
	"github.com/kailas-cloud/corpusrank/internal/event"
	"github.com/kailas-cloud/corpusrank/internal/logger"
	"github.com/kailas-cloud/corpusrank/internal/metrics"
)

// MetricFailure is a metric that could not be recomputed.
type MetricFailure struct {
	Metric string
	Err    error
}

// Result summarizes one recomputation.
type Result struct {
	// Version of the snapshot served after the call. Unchanged when nothing was swapped.
	Version  int64
	Metrics  []metric.Name
	Failures []MetricFailure
	Records  int
	Scope    event.Scope
	Swapped  bool
	Duration time.Duration
}

// Engine owns the current percentile snapshot.
type Engine struct {
	source SampleSource
	store  SnapshotStore
	runner Runner
	events event.Publisher
	logger *zap.Logger
	now    func() time.Time

	// writeMu serializes recomputations so each builds on the latest snapshot.
	writeMu sync.Mutex
	// swapMu guards the pointer and version update only.
	swapMu  sync.Mutex
	current atomic.Pointer[dompct.Snapshot]
}

// New creates an engine serving the empty snapshot. events may be nil.
func New(source SampleSource, store SnapshotStore, runner Runner, events event.Publisher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		source: source,
		store:  store,
		runner: runner,
		events: events,
		logger: logger,
		now:    time.Now,
	}
	e.current.Store(dompct.Empty())
	return e
}

// Current returns the snapshot being served. The value is immutable.
func (e *Engine) Current() *dompct.Snapshot {
	return e.current.Load()
}

// Percentile returns the current percentile of bill for m.
func (e *Engine) Percentile(billID string, m metric.Name) (float64, bool) {
	return e.Current().Get(billID, m)
}

// Load restores the last published snapshot. Nothing published is not an error.
func (e *Engine) Load(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load snapshot: %w", err)
	}
	e.swap(snap)
	e.logger.Info("Percentile snapshot restored",
		zap.Int64("version", snap.Version()),
		zap.Int("records", snap.Len()),
	)
	return nil
}

// Recompute ranks names (every recognized metric when empty) against the
// current metric store and swaps in a snapshot in which those metrics are
// replaced and all others carry over. A malformed metric fails alone.
// Source or snapshot store failures are fatal and leave the served snapshot untouched.
func (e *Engine) Recompute(ctx context.Context, names []metric.Name) (Result, error) {
	start := e.now()
	log := logger.FromContextOr(ctx, e.logger)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	base := e.Current()
	res := Result{Version: base.Version()}

	full := len(names) == 0
	valid, unknown := partition(names)
	for _, n := range unknown {
		res.Failures = append(res.Failures, MetricFailure{
			Metric: string(n),
			Err:    fmt.Errorf("%w: %q", domain.ErrUnknownMetric, n),
		})
	}
	if full {
		valid = metric.All()
	}
	if len(valid) == 0 {
		res.Duration = e.now().Sub(start)
		return res, nil
	}

	samples, err := e.source.Samples(ctx, valid)
	if err != nil {
		if !errors.Is(err, domain.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
		}
		return res, err
	}
	byMetric := make(map[metric.Name][]metric.Sample, len(valid))
	for _, s := range samples {
		byMetric[s.Metric] = append(byMetric[s.Metric], s)
	}

	ranked := make([]map[string]float64, len(valid))
	errs := e.runner.Each(ctx, len(valid), func(_ context.Context, i int) error {
		name := valid[i]
		obs, err := dompct.Observe(name, byMetric[name])
		if err != nil {
			return fmt.Errorf("metric %s: %w", name, err)
		}
		ranks, err := dompct.Rank(obs)
		if err != nil {
			return fmt.Errorf("metric %s: %w: %w", name, domain.ErrMalformedRecord, err)
		}
		ranked[i] = ranks
		return nil
	})
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("recompute: %w", err)
	}

	replaced := dompct.Records{}
	for i, name := range valid {
		if errs[i] != nil {
			res.Failures = append(res.Failures, MetricFailure{Metric: string(name), Err: errs[i]})
			metrics.UnitsTotal.WithLabelValues("rank", "failed").Inc()
			log.Warn("Metric recomputation failed",
				zap.String("metric", string(name)),
				zap.Error(errs[i]),
			)
			continue
		}
		replaced[name] = ranked[i]
		res.Metrics = append(res.Metrics, name)
		metrics.UnitsTotal.WithLabelValues("rank", "ok").Inc()
	}
	if len(res.Metrics) == 0 {
		res.Duration = e.now().Sub(start)
		return res, nil
	}

	version, err := e.store.NextVersion(ctx)
	if err != nil {
		return res, err
	}
	next := base.Replace(version, e.now().UTC(), replaced)
	if err := e.store.Publish(ctx, next); err != nil {
		return res, err
	}
	e.swap(next)

	if removed, err := e.store.Sweep(ctx, version); err != nil {
		log.Warn("Sweeping old snapshot versions failed", zap.Int64("version", version), zap.Error(err))
	} else if removed > 0 {
		log.Debug("Old snapshot versions swept", zap.Int64("keys", removed))
	}

	res.Version = version
	res.Records = next.Len()
	res.Swapped = true
	if full {
		res.Scope = event.Corpus()
	} else {
		res.Scope = event.IDs(base.HoldersOf(res.Metrics)...).Merge(event.IDs(next.HoldersOf(res.Metrics)...))
	}
	res.Duration = e.now().Sub(start)

	e.publish(ctx, event.Event{
		Kind:            event.PercentilesRecomputed,
		Scope:           res.Scope,
		RunID:           event.RunFromContext(ctx),
		SnapshotVersion: version,
		At:              e.now().UTC(),
	})

	log.Info("Percentiles recomputed",
		zap.Int64("version", version),
		zap.Int("metrics", len(res.Metrics)),
		zap.Int("failed", len(res.Failures)),
		zap.Int("records", res.Records),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// Summary returns population statistics for one metric. Malformed values are left out.
func (e *Engine) Summary(ctx context.Context, m metric.Name) (dompct.Stats, error) {
	if !m.Valid() {
		return dompct.Stats{}, fmt.Errorf("%w: %q", domain.ErrUnknownMetric, m)
	}
	samples, err := e.source.Samples(ctx, []metric.Name{m})
	if err != nil {
		return dompct.Stats{}, fmt.Errorf("summary %s: %w", m, err)
	}
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Metric != m {
			continue
		}
		v, err := metric.ParseValue(s.Value)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	return dompct.Summarize(values), nil
}

// swap installs snap unless a newer version is already served.
func (e *Engine) swap(snap *dompct.Snapshot) {
	e.swapMu.Lock()
	defer e.swapMu.Unlock()
	if cur := e.current.Load(); cur != nil && cur.Version() > snap.Version() {
		return
	}
	e.current.Store(snap)
	metrics.SnapshotVersion.Set(float64(snap.Version()))
	metrics.SnapshotRecords.Set(float64(snap.Len()))
}

func (e *Engine) publish(ctx context.Context, ev event.Event) {
	if e.events == nil {
		return
	}
	if !e.events.Publish(ctx, ev) {
		e.logger.Warn("Event not delivered to every subscriber", zap.String("kind", string(ev.Kind)))
	}
}

// partition splits names into recognized (deduplicated, in request order) and unknown.
func partition(names []metric.Name) (valid, unknown []metric.Name) {
	for _, n := range names {
		if !n.Valid() {
			if !slices.Contains(unknown, n) {
				unknown = append(unknown, n)
			}
			continue
		}
		if !slices.Contains(valid, n) {
			valid = append(valid, n)
		}
	}
	return valid, unknown
}
