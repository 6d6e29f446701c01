// Package invalidation evicts derived view cache entries when percentiles or
// indexed documents change.
package invalidation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/event"
	"github.com/kailas-cloud/corpusrank/internal/logger"
	"github.com/kailas-cloud/corpusrank/internal/metrics"
)

// Service invalidates cache entries for a scope.
type Service struct {
	cache  Cache
	logger *zap.Logger
}

// New creates an invalidator.
func New(cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cache: cache, logger: logger}
}

// Invalidate evicts entries referencing scope. A corpus-wide scope flushes
// every derived entry; an empty scope does nothing. Missing keys are not errors.
func (s *Service) Invalidate(ctx context.Context, scope event.Scope) error {
	if scope.Empty() {
		return nil
	}
	log := logger.FromContextOr(ctx, s.logger)

	var (
		n     int64
		err   error
		label = "ids"
	)
	if scope.All() {
		label = "corpus"
		n, err = s.cache.Flush(ctx)
	} else {
		n, err = s.cache.EvictIDs(ctx, scope.IDs())
	}
	if n > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues(label).Add(float64(n))
	}
	if err != nil {
		if !errors.Is(err, domain.ErrCacheUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
		}
		metrics.CacheErrorsTotal.Inc()
		log.Warn("Cache invalidation failed",
			zap.String("scope", label), zap.Int("ids", scope.Len()), zap.Error(err))
		return err
	}

	log.Debug("Cache invalidated", zap.String("scope", label), zap.Int64("evicted", n))
	return nil
}

// Run consumes events until ctx is done or the channel closes. Events produced
// inside a coordinated run are skipped: the coordinator invalidates their
// merged scope itself.
func (s *Service) Run(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.RunID != "" {
				continue
			}
			// errors are logged inside Invalidate
			_ = s.Invalidate(ctx, ev.Scope)
		}
	}
}
