// Package projector maps bills into search documents and keeps the search
// index in step with the corpus.
package projector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	dombatch "github.com/kailas-cloud/corpusrank/internal/domain/batch"
	"github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/searchdoc"
	"github.com/kailas-cloud/corpusrank/internal/event"
	"github.com/kailas-cloud/corpusrank/internal/logger"
	"github.com/kailas-cloud/corpusrank/internal/metrics"
)

// DefaultChunkSize bounds how many fingerprints are read per round-trip.
const DefaultChunkSize = 500

// BatchResult is the outcome of projecting a batch of bills.
type BatchResult struct {
	Results  []dombatch.Result
	Counts   dombatch.Counts
	Duration time.Duration
}

// Service projects bills into the search index.
type Service struct {
	index     Index
	snapshots SnapshotReader
	runner    Runner
	events    event.Publisher
	logger    *zap.Logger
	chunkSize int
	now       func() time.Time
}

// New creates a projector. events may be nil.
func New(index Index, snapshots SnapshotReader, runner Runner, events event.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:     index,
		snapshots: snapshots,
		runner:    runner,
		events:    events,
		logger:    logger,
		chunkSize: DefaultChunkSize,
		now:       time.Now,
	}
}

// WithChunkSize configures the fingerprint read chunk.
func (s *Service) WithChunkSize(n int) *Service {
	if n > 0 {
		s.chunkSize = n
	}
	return s
}

// EnsureIndex creates the search index if it is missing.
func (s *Service) EnsureIndex(ctx context.Context) error {
	created, err := s.index.EnsureIndex(ctx)
	if err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	if created {
		s.logger.Info("Search index created")
	}
	return nil
}

// Upsert projects one bill and writes it unless the stored document is identical.
func (s *Service) Upsert(ctx context.Context, b *bill.Bill) dombatch.Result {
	res := s.UpsertAll(ctx, []bill.Bill{*b})
	return res.Results[0]
}

// UpsertAll projects bills independently on the worker pool. Malformed bills
// are skipped, index rejections are reported, unchanged documents are not rewritten.
func (s *Service) UpsertAll(ctx context.Context, bills []bill.Bill) BatchResult {
	start := s.now()
	log := logger.FromContextOr(ctx, s.logger)
	snap := s.snapshots.Current()

	results := make([]dombatch.Result, len(bills))
	docs := make([]searchdoc.Document, len(bills))
	pending := make([]int, 0, len(bills))
	for i := range bills {
		doc, err := searchdoc.Project(&bills[i], snap)
		if err != nil {
			results[i] = dombatch.NewSkipped(bills[i].PackageID(), err)
			log.Warn("Skipping malformed document", zap.String("bill_id", bills[i].PackageID()), zap.Error(err))
			continue
		}
		docs[i] = doc
		pending = append(pending, i)
	}

	stored := s.storedFingerprints(ctx, docs, pending)

	toWrite := make([]int, 0, len(pending))
	for _, i := range pending {
		if fp, ok := stored[docs[i].ID()]; ok && fp == docs[i].Fingerprint() {
			results[i] = dombatch.NewUnchanged(docs[i].ID())
			continue
		}
		toWrite = append(toWrite, i)
	}

	errs := s.runner.Each(ctx, len(toWrite), func(ctx context.Context, k int) error {
		return s.index.Upsert(ctx, docs[toWrite[k]])
	})
	for k, i := range toWrite {
		id := docs[i].ID()
		switch err := errs[k]; {
		case err == nil:
			results[i] = dombatch.NewOK(id)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			results[i] = dombatch.NewError(id, err)
		default:
			if !errors.Is(err, domain.ErrIndexRejected) {
				err = fmt.Errorf("%w: %w", domain.ErrIndexRejected, err)
			}
			results[i] = dombatch.NewError(id, err)
			log.Warn("Index rejected document", zap.String("bill_id", id), zap.Error(err))
		}
	}

	counts := dombatch.Tally(results)
	metrics.UnitsTotal.WithLabelValues("index", "ok").Add(float64(counts.OK))
	metrics.UnitsTotal.WithLabelValues("index", "unchanged").Add(float64(counts.Unchanged))
	metrics.UnitsTotal.WithLabelValues("index", "skipped").Add(float64(counts.Skipped))
	metrics.UnitsTotal.WithLabelValues("index", "failed").Add(float64(counts.Failed))

	if written := dombatch.Written(results); len(written) > 0 {
		s.publish(ctx, event.IDs(written...), snap.Version())
	}

	return BatchResult{Results: results, Counts: counts, Duration: s.now().Sub(start)}
}

// Delete removes tombstoned documents. It is the only path that deletes.
func (s *Service) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.index.Delete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete %d documents: %w", len(ids), err)
	}
	s.publish(ctx, event.IDs(ids...), s.snapshots.Current().Version())
	return n, nil
}

// storedFingerprints reads fingerprints chunk by chunk. A failed read leaves
// the chunk unknown, so its documents are rewritten.
func (s *Service) storedFingerprints(ctx context.Context, docs []searchdoc.Document, idx []int) map[string]string {
	out := make(map[string]string, len(idx))
	for start := 0; start < len(idx); start += s.chunkSize {
		end := min(start+s.chunkSize, len(idx))
		ids := make([]string, 0, end-start)
		for _, i := range idx[start:end] {
			ids = append(ids, docs[i].ID())
		}
		fps, err := s.index.Fingerprints(ctx, ids)
		if err != nil {
			s.logger.Debug("Fingerprint read failed, rewriting chunk", zap.Int("size", len(ids)), zap.Error(err))
			continue
		}
		for j, fp := range fps {
			if fp != "" && j < len(ids) {
				out[ids[j]] = fp
			}
		}
	}
	return out
}

func (s *Service) publish(ctx context.Context, scope event.Scope, version int64) {
	if s.events == nil {
		return
	}
	ev := event.Event{
		Kind:            event.DocumentsIndexed,
		Scope:           scope,
		RunID:           event.RunFromContext(ctx),
		SnapshotVersion: version,
		At:              s.now().UTC(),
	}
	if !s.events.Publish(ctx, ev) {
		s.logger.Warn("Event not delivered to every subscriber", zap.String("kind", string(ev.Kind)))
	}
}
