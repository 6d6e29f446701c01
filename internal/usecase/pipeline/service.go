// Package pipeline coordinates batch runs: load, rank, index, invalidate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	dombatch "github.com/kailas-cloud/corpusrank/internal/domain/batch"
	"github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	"github.com/kailas-cloud/corpusrank/internal/domain/run"
	"github.com/kailas-cloud/corpusrank/internal/event"
	"github.com/kailas-cloud/corpusrank/internal/logger"
	"github.com/kailas-cloud/corpusrank/internal/metrics"
)

// Coordinator drives one pipeline run at a time.
type Coordinator struct {
	source      Source
	ranker      Ranker
	projector   Projector
	invalidator Invalidator
	cursor      Cursor
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string

	active atomic.Bool

	mu         sync.RWMutex
	last       *run.Report
	indexedSeq int64
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a coordinator.
func New(source Source, ranker Ranker, proj Projector, inv Invalidator, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		source:      source,
		ranker:      ranker,
		projector:   proj,
		invalidator: inv,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// WithCursor persists the indexed sequence after every completed run.
func (c *Coordinator) WithCursor(cur Cursor) *Coordinator {
	c.cursor = cur
	return c
}

// Restore loads the persisted indexed sequence. Without a cursor it is a no-op.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c.cursor == nil {
		return nil
	}
	seq, err := c.cursor.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore indexed seq: %w", err)
	}
	c.mu.Lock()
	c.indexedSeq = seq
	c.mu.Unlock()
	c.logger.Info("Indexed sequence restored", zap.Int64("indexed_seq", seq))
	return nil
}

// Execute runs the pipeline synchronously and returns the final report.
// A second run while one is active fails with domain.ErrRunActive.
func (c *Coordinator) Execute(ctx context.Context, opts run.Options) (run.Report, error) {
	r, err := c.admit(opts)
	if err != nil {
		return run.Report{}, err
	}
	ctx, release := c.bind(ctx)
	defer release()
	return c.execute(ctx, r)
}

// Start admits a run and executes it in the background, detached from the
// caller's cancellation. Cancel aborts it. It returns the run id.
func (c *Coordinator) Start(ctx context.Context, opts run.Options) (string, error) {
	r, err := c.admit(opts)
	if err != nil {
		return "", err
	}
	bg, release := c.bind(context.WithoutCancel(ctx))
	go func() {
		defer release()
		_, _ = c.execute(bg, r)
	}()
	return r.ID(), nil
}

// Active reports whether a run holds the coordinator.
func (c *Coordinator) Active() bool { return c.active.Load() }

// Cancel aborts the active run. It reports whether there was one.
func (c *Coordinator) Cancel() bool {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Wait blocks until the active run, if any, has finished or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// bind attaches a cancel handle to the admitted run. The returned release
// frees the coordinator and wakes Wait.
func (c *Coordinator) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel, c.done = cancel, done
	c.mu.Unlock()
	return ctx, func() {
		cancel()
		c.mu.Lock()
		c.cancel, c.done = nil, nil
		c.mu.Unlock()
		c.active.Store(false)
		close(done)
	}
}

// Last returns the report of the most recent run, including one in progress.
func (c *Coordinator) Last() (run.Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return run.Report{}, false
	}
	return *c.last, true
}

// IndexedSeq returns the sequence an incremental run should start from: every
// write up to it is indexed. A failed document holds it below that document's seq.
func (c *Coordinator) IndexedSeq() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexedSeq
}

func (c *Coordinator) admit(opts run.Options) (*run.Run, error) {
	if !c.active.CompareAndSwap(false, true) {
		metrics.RunsTotal.WithLabelValues("rejected").Inc()
		return nil, domain.ErrRunActive
	}
	r := run.New(c.newID(), opts, c.now)
	c.snapshot(r)
	return r, nil
}

// state carries stage outputs through a run.
type state struct {
	bills      []bill.Bill
	tombstones []string
	maxSeq     int64
	rankScope  event.Scope
	written    []string

	// the cursor may not pass a unit that failed to write
	hold int64
	held bool
}

// holdBefore keeps the indexed sequence below seq so the next incremental
// run loads that unit again.
func (s *state) holdBefore(seq int64) {
	if next := max(seq-1, 0); !s.held || next < s.hold {
		s.hold, s.held = next, true
	}
}

func (s *state) indexedSeq() int64 {
	if s.held && s.hold < s.maxSeq {
		return s.hold
	}
	return s.maxSeq
}

func (c *Coordinator) execute(ctx context.Context, r *run.Run) (run.Report, error) {
	log := c.logger.With(zap.String("run_id", r.ID()))
	ctx = logger.ContextWithLogger(event.ContextWithRun(ctx, r.ID()), log)
	opts := r.Report().Options

	log.Info("Pipeline run started", zap.Int64("since", opts.Since), zap.Strings("metrics", opts.Metrics))

	st := &state{}
	stages := []struct {
		to    run.State
		stage run.Stage
		fn    func(context.Context, *run.Run, *state) (run.StageReport, error)
	}{
		{run.StateLoading, run.StageLoad, c.load},
		{run.StateRanking, run.StageRank, c.rank},
		{run.StateIndexing, run.StageIndex, c.index},
		{run.StateInvalidating, run.StageInvalidate, c.invalidate},
	}

	for _, s := range stages {
		if err := c.advance(ctx, r, s.to); err != nil {
			return c.fail(r, log, err)
		}
		start := c.now()
		sr, err := s.fn(ctx, r, st)
		sr.Stage = s.stage
		sr.Duration = c.now().Sub(start)
		metrics.StageDuration.WithLabelValues(string(s.stage)).Observe(sr.Duration.Seconds())
		if err != nil {
			return c.fail(r, log, fmt.Errorf("%s: %w", s.stage, err))
		}
		r.Record(sr)
		c.snapshot(r)
		log.Info("Stage completed",
			zap.String("stage", string(s.stage)),
			zap.Int("processed", sr.Processed),
			zap.Int("unchanged", sr.Unchanged),
			zap.Int("skipped", sr.Skipped),
			zap.Int("failed", sr.Failed),
			zap.Duration("duration", sr.Duration),
		)
	}

	if err := r.Advance(run.StateDone); err != nil {
		return c.fail(r, log, err)
	}

	next := st.indexedSeq()
	c.mu.Lock()
	if opts.Since > c.indexedSeq {
		// (indexedSeq, since] was never loaded
		next = min(next, c.indexedSeq)
	}
	c.indexedSeq = next
	c.mu.Unlock()
	r.SetIndexedSeq(next)
	c.snapshot(r)

	if c.cursor != nil {
		if err := c.cursor.Save(context.WithoutCancel(ctx), next); err != nil {
			log.Warn("Persisting indexed sequence failed", zap.Int64("indexed_seq", next), zap.Error(err))
		}
	}

	metrics.RunsTotal.WithLabelValues("done").Inc()
	rep := r.Report()
	log.Info("Pipeline run done",
		zap.Int64("snapshot_version", rep.SnapshotVersion),
		zap.Int64("indexed_seq", rep.IndexedSeq),
		zap.Strings("failed_metrics", rep.FailedMetrics),
	)
	return rep, nil
}

// advance checks for cancellation at the stage boundary before moving on.
func (c *Coordinator) advance(ctx context.Context, r *run.Run, to run.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Advance(to); err != nil {
		return err
	}
	c.snapshot(r)
	return nil
}

func (c *Coordinator) fail(r *run.Run, log *zap.Logger, err error) (run.Report, error) {
	r.Fail(err)
	c.snapshot(r)
	metrics.RunsTotal.WithLabelValues("failed").Inc()
	log.Error("Pipeline run failed", zap.String("class", domain.Classify(err)), zap.Error(err))
	return r.Report(), err
}

func (c *Coordinator) load(ctx context.Context, r *run.Run, st *state) (run.StageReport, error) {
	since := r.Report().Options.Since

	maxSeq, err := c.source.MaxSeq(ctx)
	if err != nil {
		return run.StageReport{}, err
	}
	st.maxSeq = maxSeq

	if since > 0 {
		st.bills, err = c.source.ChangedSince(ctx, since)
	} else {
		st.bills, err = c.source.All(ctx)
	}
	if err != nil {
		return run.StageReport{}, err
	}
	// a full run replays every tombstone; deleting an absent document is a no-op
	if st.tombstones, err = c.source.TombstonesSince(ctx, since); err != nil {
		return run.StageReport{}, err
	}

	metrics.UnitsTotal.WithLabelValues("load", "ok").Add(float64(len(st.bills) + len(st.tombstones)))
	return run.StageReport{Processed: len(st.bills) + len(st.tombstones)}, nil
}

func (c *Coordinator) rank(ctx context.Context, r *run.Run, st *state) (run.StageReport, error) {
	names := make([]metric.Name, 0, len(r.Report().Options.Metrics))
	for _, m := range r.Report().Options.Metrics {
		names = append(names, metric.Name(m))
	}

	res, err := c.ranker.Recompute(ctx, names)
	if err != nil {
		return run.StageReport{}, err
	}

	sr := run.StageReport{Processed: len(res.Metrics), Failed: len(res.Failures)}
	for _, f := range res.Failures {
		r.AddFailedMetric(f.Metric)
		sr.Failures = append(sr.Failures, run.Failure{
			ID:     f.Metric,
			Class:  domain.Classify(f.Err),
			Reason: f.Err.Error(),
		})
	}
	r.SetSnapshotVersion(res.Version)
	if res.Swapped {
		st.rankScope = res.Scope
	}
	return sr, nil
}

func (c *Coordinator) index(ctx context.Context, r *run.Run, st *state) (run.StageReport, error) {
	since := r.Report().Options.Since
	bills, err := c.withRankScope(ctx, since, st)
	if err != nil {
		return run.StageReport{}, err
	}

	res := c.projector.UpsertAll(ctx, bills)
	seqs := make(map[string]int64, len(bills))
	for i := range bills {
		seqs[bills[i].PackageID()] = bills[i].Seq()
	}
	sr := run.StageReport{
		Processed: res.Counts.OK,
		Unchanged: res.Counts.Unchanged,
		Skipped:   res.Counts.Skipped,
		Failed:    res.Counts.Failed,
	}
	for _, item := range res.Results {
		if item.Status() == dombatch.StatusError {
			st.holdBefore(seqs[item.ID()])
		}
		if item.Status() == dombatch.StatusSkipped || item.Status() == dombatch.StatusError {
			sr.Failures = append(sr.Failures, run.Failure{
				ID:     item.ID(),
				Class:  domain.Classify(item.Err()),
				Reason: item.Err().Error(),
			})
		}
	}
	st.written = dombatch.Written(res.Results)

	if len(st.tombstones) > 0 {
		n, err := c.projector.Delete(ctx, st.tombstones)
		if err != nil {
			st.holdBefore(since + 1)
			sr.Failed += len(st.tombstones)
			for _, id := range st.tombstones {
				sr.Failures = append(sr.Failures, run.Failure{ID: id, Class: domain.Classify(err), Reason: err.Error()})
			}
		} else {
			sr.Processed += int(n)
			st.written = append(st.written, st.tombstones...)
		}
	}

	// a cancelled stage leaves written documents whole, but the run stops here
	if err := ctx.Err(); err != nil {
		return sr, err
	}
	return sr, nil
}

// withRankScope adds to an incremental run the bills whose display percentiles
// changed in the rank stage. Full runs already hold the whole corpus.
func (c *Coordinator) withRankScope(ctx context.Context, since int64, st *state) ([]bill.Bill, error) {
	if since == 0 || st.rankScope.Empty() {
		return st.bills, nil
	}
	if st.rankScope.All() {
		return c.source.All(ctx)
	}

	have := make(map[string]struct{}, len(st.bills))
	for i := range st.bills {
		have[st.bills[i].PackageID()] = struct{}{}
	}
	out := st.bills
	for _, id := range st.rankScope.IDs() {
		if _, ok := have[id]; ok {
			continue
		}
		b, err := c.source.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Coordinator) invalidate(ctx context.Context, _ *run.Run, st *state) (run.StageReport, error) {
	scope := st.rankScope.Merge(event.IDs(st.written...))
	if scope.Empty() {
		return run.StageReport{}, nil
	}

	processed := scope.Len()
	if scope.All() {
		processed = 1
	}
	if err := c.invalidator.Invalidate(ctx, scope); err != nil {
		// cache failures never fail the run
		return run.StageReport{
			Failed:   processed,
			Failures: []run.Failure{{ID: "cache", Class: domain.Classify(err), Reason: err.Error()}},
		}, nil
	}
	return run.StageReport{Processed: processed}, nil
}

// snapshot publishes a copy of the run report for concurrent readers.
func (c *Coordinator) snapshot(r *run.Run) {
	rep := r.Report()
	c.mu.Lock()
	c.last = &rep
	c.mu.Unlock()
}
