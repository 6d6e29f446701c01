package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	dompct "github.com/kailas-cloud/corpusrank/internal/domain/percentile"
	"github.com/kailas-cloud/corpusrank/internal/domain/run"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/request"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/corpusrank/internal/usecase/health"
)

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type mockPercentiles struct {
	snap      *dompct.Snapshot
	summaryFn func(ctx context.Context, m metric.Name) (dompct.Stats, error)
}

func (m *mockPercentiles) Current() *dompct.Snapshot { return m.snap }

func (m *mockPercentiles) Summary(ctx context.Context, n metric.Name) (dompct.Stats, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, n)
	}
	return dompct.Stats{}, nil
}

type mockSearcher struct {
	searchFn func(ctx context.Context, req *request.Request) (result.Page, error)
}

func (m *mockSearcher) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	return m.searchFn(ctx, req)
}

type mockRuns struct {
	startFn  func(ctx context.Context, opts run.Options) (string, error)
	last     *run.Report
	active   bool
	canceled int
}

func (m *mockRuns) Start(ctx context.Context, opts run.Options) (string, error) {
	return m.startFn(ctx, opts)
}

func (m *mockRuns) Cancel() bool {
	if !m.active {
		return false
	}
	m.canceled++
	return true
}

func (m *mockRuns) Last() (run.Report, bool) {
	if m.last == nil {
		return run.Report{}, false
	}
	return *m.last, true
}

type mockCorpus struct {
	countFn func(ctx context.Context, field string) (map[string]int64, error)
}

func (m *mockCorpus) CountBy(ctx context.Context, field string) (map[string]int64, error) {
	return m.countFn(ctx, field)
}

type fixture struct {
	health      *mockHealth
	percentiles *mockPercentiles
	search      *mockSearcher
	runs        *mockRuns
	corpus      *mockCorpus
	router      chi.Router
}

func newFixture(t *testing.T, apiKeys ...string) *fixture {
	t.Helper()
	f := &fixture{
		health: &mockHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
		}},
		percentiles: &mockPercentiles{snap: dompct.NewSnapshot(7, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), dompct.Records{
			metric.NumTokens: {"A": 16.67, "B": 66.67},
			metric.NumPages:  {"A": 50},
		})},
		search: &mockSearcher{searchFn: func(context.Context, *request.Request) (result.Page, error) {
			return result.Page{Hits: []result.Hit{}}, nil
		}},
		runs: &mockRuns{startFn: func(context.Context, run.Options) (string, error) { return "run-1", nil }},
		corpus: &mockCorpus{countFn: func(context.Context, string) (map[string]int64, error) {
			return map[string]int64{"hr": 2}, nil
		}},
	}
	srv := NewServer(f.health, f.percentiles, f.search, f.runs, f.corpus, nil)
	f.router = chi.NewRouter()
	srv.Register(f.router, apiKeys)
	return f
}

func (f *fixture) do(method, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}
