package percentile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	dompct "github.com/kailas-cloud/corpusrank/internal/domain/percentile"
	"github.com/kailas-cloud/corpusrank/internal/event"
	"github.com/kailas-cloud/corpusrank/internal/workpool"
)

// mockSource implements SampleSource for tests.
type mockSource struct {
	mu        sync.Mutex
	samples   []metric.Sample
	samplesFn func(ctx context.Context, names []metric.Name) ([]metric.Sample, error)
}

func (m *mockSource) Samples(ctx context.Context, names []metric.Name) ([]metric.Sample, error) {
	if m.samplesFn != nil {
		return m.samplesFn(ctx, names)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []metric.Sample
	for _, s := range m.samples {
		for _, n := range names {
			if s.Metric == n {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *mockSource) set(samples ...metric.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = samples
}

// memSnapshots implements SnapshotStore in memory.
type memSnapshots struct {
	mu         sync.Mutex
	seq        int64
	published  *dompct.Snapshot
	publishErr error
	nextErr    error
	sweeps     []int64
}

func (m *memSnapshots) NextVersion(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextErr != nil {
		return 0, m.nextErr
	}
	m.seq++
	return m.seq, nil
}

func (m *memSnapshots) Publish(_ context.Context, snap *dompct.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = snap
	return nil
}

func (m *memSnapshots) Load(context.Context) (*dompct.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.published == nil {
		return nil, domain.ErrNotFound
	}
	return m.published, nil
}

func (m *memSnapshots) Sweep(_ context.Context, keep int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps = append(m.sweeps, keep)
	return 0, nil
}

// recorder implements event.Publisher.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, e event.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return true
}

func (r *recorder) all() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

type fixture struct {
	engine *Engine
	source *mockSource
	store  *memSnapshots
	events *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool, err := workpool.New(4, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pool.Release(time.Second) })

	f := &fixture{source: &mockSource{}, store: &memSnapshots{}, events: &recorder{}}
	f.engine = New(f.source, f.store, pool, f.events, nil)
	f.engine.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func sample(id string, m metric.Name, v string) metric.Sample {
	return metric.Sample{BillID: id, Metric: m, Value: v}
}
