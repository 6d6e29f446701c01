// Package chi serves the corpusrank HTTP API on a chi router.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	"github.com/kailas-cloud/corpusrank/internal/domain/run"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/request"
	"github.com/kailas-cloud/corpusrank/internal/domain/searchdoc"
	"github.com/kailas-cloud/corpusrank/internal/logger"
	"github.com/kailas-cloud/corpusrank/internal/metrics"
	healthuc "github.com/kailas-cloud/corpusrank/internal/usecase/health"
)

// dateLayout is the accepted format of date_from and date_to.
const dateLayout = "2006-01-02"

// CountFields are the categorical fields GET /stats groups by.
var CountFields = []string{"bill_type", "current_chamber", "bill_version", "congress"}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements the HTTP API.
type Server struct {
	health        HealthChecker
	percentiles   Percentiles
	search        Searcher
	runs          Runs
	corpus        Corpus
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	health HealthChecker,
	percentiles Percentiles,
	search Searcher,
	runs Runs,
	corpus Corpus,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		health:      health,
		percentiles: percentiles,
		search:      search,
		runs:        runs,
		corpus:      corpus,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrUnknownMetric, http.StatusBadRequest, CodeUnknownMetric),
		sentinelHandler(domain.ErrRunActive, http.StatusConflict, CodeRunActive),
		sentinelHandler(domain.ErrSourceUnavailable, http.StatusServiceUnavailable, CodeUnavailable),
	}
	return s
}

// Register mounts the API routes on r. Mutating routes require one of apiKeys
// when any are configured.
func (s *Server) Register(r chi.Router, apiKeys []string) {
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, metrics.MetricsPath, promhttp.Handler())
	r.Get("/bills/{id}/percentiles", s.BillPercentiles)
	r.Get("/search", s.Search)
	r.Get("/stats", s.Stats)
	r.Get("/runs/last", s.LastRun)
	r.With(BearerAuthMiddleware(apiKeys)).Post("/runs", s.StartRun)
	r.With(BearerAuthMiddleware(apiKeys)).Delete("/runs/active", s.CancelRun)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// BillPercentiles handles GET /bills/{id}/percentiles.
func (s *Server) BillPercentiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := s.percentiles.Current()

	values := snap.ForBill(id)
	if len(values) == 0 {
		writeError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("no percentiles for bill %q", id))
		return
	}
	out := make(map[string]float64, len(values))
	for m, v := range values {
		out[string(m)] = v
	}
	writeJSON(w, http.StatusOK, PercentilesResponse{
		BillID:          id,
		SnapshotVersion: snap.Version(),
		Percentiles:     out,
	})
}

// Search handles GET /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	req, err := searchRequestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	page, err := s.search.Search(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]SearchHit, len(page.Hits))
	for i := range page.Hits {
		items[i] = hitToDTO(&page.Hits[i])
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Items:  items,
		Total:  page.Total,
		Limit:  req.Limit(),
		Offset: req.Offset(),
	})
}

// StartRun handles POST /runs. The run executes in the background.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var opts run.Options
	if v := q.Get("since"); v != "" {
		since, err := strconv.ParseInt(v, 10, 64)
		if err != nil || since < 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "since must be a non-negative integer")
			return
		}
		opts.Since = since
	}
	if v := q.Get("metrics"); v != "" {
		names, err := metric.ParseList(v)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		for _, n := range names {
			opts.Metrics = append(opts.Metrics, string(n))
		}
	}

	id, err := s.runs.Start(r.Context(), opts)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/runs/last")
	writeJSON(w, http.StatusAccepted, RunAccepted{ID: id})
}

// CancelRun handles DELETE /runs/active. The run stops at its next unit
// boundary and ends FAILED.
func (s *Server) CancelRun(w http.ResponseWriter, _ *http.Request) {
	if !s.runs.Cancel() {
		writeError(w, http.StatusNotFound, CodeNotFound, "no active run")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// LastRun handles GET /runs/last.
func (s *Server) LastRun(w http.ResponseWriter, _ *http.Request) {
	rep, ok := s.runs.Last()
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "no run yet")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Stats handles GET /stats?by=bill_type,congress&metrics=num_pages.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	by := CountFields
	if v := q.Get("by"); v != "" {
		by = strings.Split(v, ",")
		for _, f := range by {
			if !slices.Contains(CountFields, f) {
				writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("cannot group by %q", f))
				return
			}
		}
	}
	var names []metric.Name
	if v := q.Get("metrics"); v != "" {
		var err error
		if names, err = metric.ParseList(v); err != nil {
			s.handleDomainError(w, r, err)
			return
		}
	}

	resp := StatsResponse{Counts: make(map[string]map[string]int64, len(by))}
	for _, f := range by {
		counts, err := s.corpus.CountBy(r.Context(), f)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		resp.Counts[f] = counts
	}
	if len(names) > 0 {
		resp.Metrics = make(map[string]MetricStats, len(names))
		for _, n := range names {
			st, err := s.percentiles.Summary(r.Context(), n)
			if err != nil {
				s.handleDomainError(w, r, err)
				return
			}
			resp.Metrics[string(n)] = statsToDTO(st)
		}
	}

	snap := s.percentiles.Current()
	resp.SnapshotVersion = snap.Version()
	if at := snap.CreatedAt(); !at.IsZero() {
		resp.SnapshotAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

func searchRequestFromQuery(r *http.Request) (request.Request, error) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		return request.Request{}, err
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		return request.Request{}, err
	}
	from, err := dateParam(q.Get("date_from"), "date_from")
	if err != nil {
		return request.Request{}, err
	}
	to, err := dateParam(q.Get("date_to"), "date_to")
	if err != nil {
		return request.Request{}, err
	}

	var filters []request.Filter
	for _, field := range slices.Concat(searchdoc.TagFields, searchdoc.FacetFields) {
		for _, v := range q[field] {
			filters = append(filters, request.Filter{Field: field, Value: v})
		}
	}

	req, err := request.New(q.Get("q"), filters, from, to, limit, offset)
	if err != nil {
		return request.Request{}, fmt.Errorf("build search request: %w", err)
	}
	return req, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func dateParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrUnknownMetric,
		domain.ErrRunActive,
		domain.ErrSourceUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
