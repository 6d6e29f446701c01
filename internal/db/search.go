package db

// TagFilter restricts results to documents whose TAG field holds Value.
type TagFilter struct {
	Field string
	Value string
}

// RangeFilter restricts a NUMERIC field to [Min, Max]; nil bounds are open.
type RangeFilter struct {
	Field string
	Min   *float64
	Max   *float64
}

// TextQuery is the input for a scored full-text search.
type TextQuery struct {
	IndexName string
	// Query is the raw user text; empty means match all.
	Query string
	// Fields restricts term matching to these TEXT fields; empty means all.
	Fields       []string
	Tags         []TagFilter
	Ranges       []RangeFilter
	Offset       int
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
