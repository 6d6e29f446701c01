package request

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kailas-cloud/corpusrank/internal/domain/searchdoc"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 20
	MaxLimit       = 100
	MaxFilters     = 16
)

// Filter is an exact match on a tag or facet field.
type Filter struct {
	Field string
	Value string
}

// Request is a validated bill search query.
type Request struct {
	query    string
	fields   []string
	filters  []Filter
	dateFrom *time.Time
	dateTo   *time.Time
	limit    int
	offset   int
}

// New validates and normalizes search parameters.
// An empty query matches every document. Limit defaults to 20 and is capped at 100.
func New(query string, filters []Filter, dateFrom, dateTo *time.Time, limit, offset int) (Request, error) {
	query = strings.TrimSpace(query)
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if len(filters) > MaxFilters {
		return Request{}, fmt.Errorf("too many filters (max %d)", MaxFilters)
	}
	for _, f := range filters {
		if !filterable(f.Field) {
			return Request{}, fmt.Errorf("field %q is not filterable", f.Field)
		}
		if f.Value == "" {
			return Request{}, fmt.Errorf("filter value is required for field %q", f.Field)
		}
	}
	if dateFrom != nil && dateTo != nil && dateTo.Before(*dateFrom) {
		return Request{}, fmt.Errorf("date range end precedes start")
	}
	if offset < 0 {
		return Request{}, fmt.Errorf("offset must not be negative")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Request{
		query:    query,
		fields:   slices.Clone(searchdoc.DefaultQueryFields),
		filters:  slices.Clone(filters),
		dateFrom: dateFrom,
		dateTo:   dateTo,
		limit:    limit,
		offset:   offset,
	}, nil
}

func filterable(field string) bool {
	return slices.Contains(searchdoc.TagFields, field) || slices.Contains(searchdoc.FacetFields, field)
}

// Query returns the search text, possibly empty.
func (r *Request) Query() string { return r.query }

// Fields returns the text fields the query is matched against.
func (r *Request) Fields() []string { return r.fields }

// Filters returns the exact-match filters.
func (r *Request) Filters() []Filter { return r.filters }

// DateFrom returns the inclusive lower date bound, nil when unbounded.
func (r *Request) DateFrom() *time.Time { return r.dateFrom }

// DateTo returns the inclusive upper date bound, nil when unbounded.
func (r *Request) DateTo() *time.Time { return r.dateTo }

// Limit returns the page size.
func (r *Request) Limit() int { return r.limit }

// Offset returns the number of hits to skip.
func (r *Request) Offset() int { return r.offset }
