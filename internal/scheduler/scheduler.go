// Package scheduler triggers pipeline runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/run"
)

// Trigger starts pipeline runs.
type Trigger interface {
	Execute(ctx context.Context, opts run.Options) (run.Report, error)
	IndexedSeq() int64
}

// Scheduler runs the pipeline on a cron expression. After the first completed
// run every scheduled run is incremental from the last indexed sequence.
type Scheduler struct {
	cron    *cron.Cron
	trigger Trigger
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entryID cron.EntryID
	started bool
}

// New creates a scheduler for spec (standard five-field cron or a descriptor
// such as "@hourly"). timeout bounds a single run; zero means unbounded.
func New(spec string, loc *time.Location, trigger Trigger, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{trigger: trigger, logger: logger, timeout: timeout}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler, cancels a run in progress and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.cancel()
		<-s.cron.Stop().Done()
		s.started = false
	}
}

// Next returns the next scheduled activation.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) tick() {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_ = s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	opts := run.Options{Since: s.trigger.IndexedSeq()}
	rep, err := s.trigger.Execute(ctx, opts)
	switch {
	case errors.Is(err, domain.ErrRunActive):
		s.logger.Info("Scheduled run skipped, another run is active")
		return err
	case err != nil:
		s.logger.Error("Scheduled run failed", zap.String("run_id", rep.ID), zap.Error(err))
		return err
	}
	s.logger.Info("Scheduled run done",
		zap.String("run_id", rep.ID),
		zap.Int64("since", opts.Since),
		zap.Int64("indexed_seq", rep.IndexedSeq),
	)
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
