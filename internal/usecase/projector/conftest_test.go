package projector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	dompct "github.com/kailas-cloud/corpusrank/internal/domain/percentile"
	"github.com/kailas-cloud/corpusrank/internal/domain/searchdoc"
	"github.com/kailas-cloud/corpusrank/internal/event"
	"github.com/kailas-cloud/corpusrank/internal/workpool"
)

// memIndex implements Index in memory.
type memIndex struct {
	mu         sync.Mutex
	docs       map[string]searchdoc.Document
	upserts    int
	reject     map[string]bool
	fpErr      error
	ensureFn   func(ctx context.Context) (bool, error)
	beforeEach func(id string)
}

func newMemIndex() *memIndex {
	return &memIndex{docs: map[string]searchdoc.Document{}, reject: map[string]bool{}}
}

func (m *memIndex) EnsureIndex(ctx context.Context) (bool, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx)
	}
	return false, nil
}

func (m *memIndex) Upsert(_ context.Context, doc searchdoc.Document) error {
	if m.beforeEach != nil {
		m.beforeEach(doc.ID())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject[doc.ID()] {
		return errors.New("document too large")
	}
	m.docs[doc.ID()] = doc
	m.upserts++
	return nil
}

func (m *memIndex) Fingerprints(_ context.Context, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fpErr != nil {
		return nil, m.fpErr
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if d, ok := m.docs[id]; ok {
			out[i] = d.Fingerprint()
		}
	}
	return out, nil
}

func (m *memIndex) Delete(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.docs[id]; ok {
			delete(m.docs, id)
			n++
		}
	}
	return n, nil
}

type staticSnapshots struct {
	snap *dompct.Snapshot
}

func (s *staticSnapshots) Current() *dompct.Snapshot { return s.snap }

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
	svc    *Service
	index  *memIndex
	snaps  *staticSnapshots
	events *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool, err := workpool.New(4, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pool.Release(time.Second) })

	f := &fixture{index: newMemIndex(), events: &recorder{}}
	f.snaps = &staticSnapshots{snap: dompct.NewSnapshot(1, time.Time{}, dompct.Records{
		metric.NumPages: {"A": 25, "B": 75},
	})}
	f.svc = New(f.index, f.snaps, pool, f.events, nil)
	return f
}

func testBill(t *testing.T, id, title string) bill.Bill {
	t.Helper()
	b, err := bill.New(bill.Params{
		PackageID: id,
		Title:     title,
		LegisNum:  "H.R. 1",
		Date:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Metrics:   metric.Values{metric.NumPages: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}
