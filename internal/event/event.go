// Package event carries pipeline completion events between components.
package event

import (
	"context"
	"slices"
	"time"
)

// Kind identifies what completed.
type Kind string

// Event kinds.
const (
	PercentilesRecomputed Kind = "percentiles_recomputed"
	DocumentsIndexed      Kind = "documents_indexed"
)

// Scope is the set of bills an event affects: either the whole corpus or a finite id set.
type Scope struct {
	all bool
	ids []string
}

// Corpus returns the corpus-wide scope.
func Corpus() Scope { return Scope{all: true} }

// IDs returns a finite scope over ids (sorted, deduplicated).
func IDs(ids ...string) Scope {
	cp := slices.Clone(ids)
	slices.Sort(cp)
	return Scope{ids: slices.Compact(cp)}
}

// All reports whether the scope covers the whole corpus.
func (s Scope) All() bool { return s.all }

// IDs returns the finite id set; nil for corpus-wide scope.
func (s Scope) IDs() []string {
	if s.all {
		return nil
	}
	return slices.Clone(s.ids)
}

// Empty reports whether the scope affects nothing.
func (s Scope) Empty() bool { return !s.all && len(s.ids) == 0 }

// Len returns the number of ids, or -1 for corpus-wide scope.
func (s Scope) Len() int {
	if s.all {
		return -1
	}
	return len(s.ids)
}

// Merge returns the union of two scopes.
func (s Scope) Merge(o Scope) Scope {
	if s.all || o.all {
		return Corpus()
	}
	return IDs(append(slices.Clone(s.ids), o.ids...)...)
}

// Event reports a completed unit of work.
type Event struct {
	Kind  Kind
	Scope Scope
	// RunID is set when the event was produced inside a coordinated pipeline run.
	RunID           string
	SnapshotVersion int64
	At              time.Time
}

// Publisher accepts events. Publish must not block.
type Publisher interface {
	Publish(ctx context.Context, e Event) bool
}

type runKey struct{}

// ContextWithRun tags ctx with a pipeline run id.
func ContextWithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runID)
}

// RunFromContext returns the pipeline run id carried by ctx, if any.
func RunFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runKey{}).(string)
	return id
}
