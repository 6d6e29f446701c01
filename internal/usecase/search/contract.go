package search

import (
	"context"

	"github.com/kailas-cloud/corpusrank/internal/domain/search/request"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/result"
)

// Index runs full-text queries against the search index.
type Index interface {
	Search(ctx context.Context, req *request.Request) (result.Page, error)
}
