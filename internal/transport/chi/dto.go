package chi

import (
	"time"

	dompct "github.com/kailas-cloud/corpusrank/internal/domain/percentile"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/result"
)

// ErrorCode is a machine-readable error kind.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest    ErrorCode = "bad_request"
	CodeUnauthorized  ErrorCode = "unauthorized"
	CodeNotFound      ErrorCode = "not_found"
	CodeUnknownMetric ErrorCode = "unknown_metric"
	CodeRunActive     ErrorCode = "run_active"
	CodeUnavailable   ErrorCode = "source_unavailable"
	CodeInternalError ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// PercentilesResponse is the body of GET /bills/{id}/percentiles.
type PercentilesResponse struct {
	BillID          string             `json:"bill_id"`
	SnapshotVersion int64              `json:"snapshot_version"`
	Percentiles     map[string]float64 `json:"percentiles"`
}

// SearchHit is one search result.
type SearchHit struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Title    string  `json:"title,omitempty"`
	Date     string  `json:"date,omitempty"`
	LegisNum string  `json:"legis_num,omitempty"`
	Slug     string  `json:"slug,omitempty"`
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Items  []SearchHit `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// RunAccepted is the body of POST /runs.
type RunAccepted struct {
	ID string `json:"id"`
}

// MetricStats is population stats for one metric.
type MetricStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Counts          map[string]map[string]int64 `json:"counts,omitempty"`
	Metrics         map[string]MetricStats      `json:"metrics,omitempty"`
	SnapshotVersion int64                       `json:"snapshot_version"`
	SnapshotAt      *time.Time                  `json:"snapshot_at,omitempty"`
}

func hitToDTO(h *result.Hit) SearchHit {
	return SearchHit{
		ID:       h.ID(),
		Score:    h.Score(),
		Title:    h.Title(),
		Date:     h.Date(),
		LegisNum: h.LegisNum(),
		Slug:     h.Slug(),
	}
}

func statsToDTO(s dompct.Stats) MetricStats {
	return MetricStats{Count: s.Count, Min: s.Min, Max: s.Max, Mean: s.Mean, P25: s.P25, P50: s.P50, P75: s.P75}
}
