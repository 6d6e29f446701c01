package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	dompct "github.com/kailas-cloud/corpusrank/internal/domain/percentile"
	"github.com/kailas-cloud/corpusrank/internal/domain/searchdoc"
	billrepo "github.com/kailas-cloud/corpusrank/internal/repository/bill"
	"github.com/kailas-cloud/corpusrank/internal/usecase/invalidation"
	"github.com/kailas-cloud/corpusrank/internal/usecase/percentile"
	"github.com/kailas-cloud/corpusrank/internal/usecase/projector"
	"github.com/kailas-cloud/corpusrank/internal/workpool"
)

// memSnapshots implements percentile.SnapshotStore in memory.
type memSnapshots struct {
	mu        sync.Mutex
	seq       int64
	published *dompct.Snapshot
}

func (m *memSnapshots) NextVersion(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *memSnapshots) Publish(_ context.Context, snap *dompct.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memSnapshots) Sweep(context.Context, int64) (int64, error) { return 0, nil }

// memIndex implements projector.Index in memory.
type memIndex struct {
	mu     sync.Mutex
	docs   map[string]searchdoc.Document
	reject map[string]bool
	delErr error
}

func (m *memIndex) EnsureIndex(context.Context) (bool, error) { return false, nil }

func (m *memIndex) Upsert(_ context.Context, doc searchdoc.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject[doc.ID()] {
		return errors.New("document exceeds size limit")
	}
	m.docs[doc.ID()] = doc
	return nil
}

func (m *memIndex) Fingerprints(_ context.Context, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	if m.delErr != nil {
		return 0, m.delErr
	}
	var n int64
	for _, id := range ids {
		if _, ok := m.docs[id]; ok {
			delete(m.docs, id)
			n++
		}
	}
	return n, nil
}

func (m *memIndex) doc(id string) (searchdoc.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	return d, ok
}

// memCache implements invalidation.Cache over "view:{id}:{fragment}" keys.
type memCache struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (m *memCache) put(id, fragment string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys["view:"+id+":"+fragment] = true
}

func (m *memCache) has(id, fragment string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys["view:"+id+":"+fragment]
}

func (m *memCache) EvictIDs(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for k := range m.keys {
		for _, id := range ids {
			if strings.HasPrefix(k, "view:"+id+":") {
				delete(m.keys, k)
				n++
			}
		}
	}
	return n, nil
}

func (m *memCache) Flush(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := int64(len(m.keys))
	m.keys = map[string]bool{}
	return n, nil
}

// memCursor implements Cursor in memory.
type memCursor struct {
	mu    sync.Mutex
	seq   int64
	saves int
}

func (m *memCursor) Load(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq, nil
}

func (m *memCursor) Save(_ context.Context, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq = seq
	m.saves++
	return nil
}

// flakySource fails Get while getErr is set.
type flakySource struct {
	Source
	getErr error
}

func (s *flakySource) Get(ctx context.Context, id string) (bill.Bill, error) {
	if s.getErr != nil {
		return bill.Bill{}, s.getErr
	}
	return s.Source.Get(ctx, id)
}

// gatedRanker blocks Recompute until release is closed.
type gatedRanker struct {
	next    Ranker
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedRanker) Recompute(ctx context.Context, names []metric.Name) (percentile.Result, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.next.Recompute(ctx, names)
}

type fixture struct {
	db     *gorm.DB
	source *billrepo.Repo
	engine *percentile.Engine
	index  *memIndex
	cache  *memCache
	coord  *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	source := billrepo.New(db)
	if err := source.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := workpool.New(4, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pool.Release(time.Second) })

	f := &fixture{
		db:     db,
		source: source,
		index:  &memIndex{docs: map[string]searchdoc.Document{}, reject: map[string]bool{}},
		cache:  &memCache{keys: map[string]bool{}},
	}
	f.engine = percentile.New(source, &memSnapshots{}, pool, nil, nil)
	proj := projector.New(f.index, f.engine, pool, nil, nil)
	f.coord = New(source, f.engine, proj, invalidation.New(f.cache, nil), nil)
	return f
}

func (f *fixture) save(t *testing.T, id, title string, values metric.Values) {
	t.Helper()
	b, err := bill.New(bill.Params{
		PackageID: id,
		Title:     title,
		LegisNum:  "H.R. 1",
		Date:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Metrics:   values,
	})
	if err != nil {
		t.Fatalf("new bill: %v", err)
	}
	if _, err := f.source.Save(context.Background(), &b); err != nil {
		t.Fatalf("save %s: %v", id, err)
	}
}

// corrupt rewrites a stored metric value with non-numeric text.
func (f *fixture) corrupt(t *testing.T, id string, m metric.Name) {
	t.Helper()
	err := f.db.Exec("UPDATE bill_metrics SET value = ? WHERE bill_id = ? AND name = ?", "n/a", id, string(m)).Error
	if err != nil {
		t.Fatal(err)
	}
}
