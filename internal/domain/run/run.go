// Package run models a pipeline run: its state machine and its report.
package run

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// State is a pipeline run state.
type State string

// Run states in pipeline order.
const (
	StatePending      State = "PENDING"
	StateLoading      State = "LOADING"
	StateRanking      State = "RANKING"
	StateIndexing     State = "INDEXING"
	StateInvalidating State = "INVALIDATING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

var next = map[State]State{
	StatePending:      StateLoading,
	StateLoading:      StateRanking,
	StateRanking:      StateIndexing,
	StateIndexing:     StateInvalidating,
	StateInvalidating: StateDone,
}

// ErrInvalidTransition signals a state change the machine does not allow.
var ErrInvalidTransition = errors.New("invalid run state transition")

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// CanTransition reports whether s may move to to. Runs advance one stage at a
// time; FAILED is reachable from every non-terminal state.
func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return next[s] == to
}

// Stage names a unit-processing step of a run.
type Stage string

// Pipeline stages.
const (
	StageLoad       Stage = "load"
	StageRank       Stage = "rank"
	StageIndex      Stage = "index"
	StageInvalidate Stage = "invalidate"
)

// Failure describes one unit that did not complete.
type Failure struct {
	ID     string `json:"id"`
	Class  string `json:"class"`
	Reason string `json:"reason"`
}

// StageReport summarises one stage.
type StageReport struct {
	Stage     Stage         `json:"stage"`
	Processed int           `json:"processed"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Failures  []Failure     `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// Options selects what a run covers.
type Options struct {
	// Metrics restricts ranking; empty means every recognized metric.
	Metrics []string `json:"metrics,omitempty"`
	// Since projects only bills written after this ingestion sequence.
	// Zero means the whole corpus.
	Since int64 `json:"since,omitempty"`
}

// Report is the externally visible result of a run.
type Report struct {
	ID              string        `json:"id"`
	State           State         `json:"state"`
	Options         Options       `json:"options"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at,omitzero"`
	Stages          []StageReport `json:"stages"`
	FailedMetrics   []string      `json:"failed_metrics,omitempty"`
	SnapshotVersion int64         `json:"snapshot_version"`
	IndexedSeq      int64         `json:"indexed_seq"`
	Error           string        `json:"error,omitempty"`
}

// Stage returns the report of stage s, if recorded.
func (r *Report) Stage(s Stage) (StageReport, bool) {
	for _, sr := range r.Stages {
		if sr.Stage == s {
			return sr, true
		}
	}
	return StageReport{}, false
}

// Run tracks one pipeline execution. It is owned by a single goroutine.
type Run struct {
	report Report
	now    func() time.Time
}

// New starts a run in PENDING.
func New(id string, opts Options, now func() time.Time) *Run {
	if now == nil {
		now = time.Now
	}
	return &Run{
		report: Report{ID: id, State: StatePending, Options: opts, StartedAt: now()},
		now:    now,
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.report.ID }

// State returns the current state.
func (r *Run) State() State { return r.report.State }

// Advance moves the run to to.
func (r *Run) Advance(to State) error {
	from := r.report.State
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	r.report.State = to
	if to.Terminal() {
		r.report.FinishedAt = r.now()
	}
	return nil
}

// Fail moves the run to FAILED and records cause. No-op on terminal runs.
func (r *Run) Fail(cause error) {
	if r.report.State.Terminal() {
		return
	}
	r.report.State = StateFailed
	r.report.FinishedAt = r.now()
	if cause != nil {
		r.report.Error = cause.Error()
	}
}

// Record appends a stage report.
func (r *Run) Record(sr StageReport) {
	r.report.Stages = append(r.report.Stages, sr)
}

// AddFailedMetric records a metric that could not be ranked.
func (r *Run) AddFailedMetric(name string) {
	if !slices.Contains(r.report.FailedMetrics, name) {
		r.report.FailedMetrics = append(r.report.FailedMetrics, name)
	}
}

// SetSnapshotVersion records the published snapshot version.
func (r *Run) SetSnapshotVersion(v int64) { r.report.SnapshotVersion = v }

// SetIndexedSeq records the highest ingestion sequence covered by indexing.
func (r *Run) SetIndexedSeq(seq int64) { r.report.IndexedSeq = seq }

// Report returns a copy of the current report.
func (r *Run) Report() Report {
	out := r.report
	out.Stages = make([]StageReport, len(r.report.Stages))
	for i, s := range r.report.Stages {
		s.Failures = slices.Clone(s.Failures)
		out.Stages[i] = s
	}
	out.FailedMetrics = slices.Clone(r.report.FailedMetrics)
	out.Options.Metrics = slices.Clone(r.report.Options.Metrics)
	return out
}
