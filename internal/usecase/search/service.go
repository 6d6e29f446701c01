// Package search serves full-text queries over projected bills.
package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/request"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/result"
)

// Service handles bill search.
type Service struct {
	index  Index
	logger *zap.Logger
}

// New creates a search service.
func New(index Index, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, logger: logger}
}

// Search runs req. An empty query matches every document. A missing index
// (nothing projected yet) yields an empty page.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	page, err := s.index.Search(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug("Search index missing, returning empty page", zap.Error(err))
			return result.Page{Hits: []result.Hit{}}, nil
		}
		return result.Page{}, fmt.Errorf("search: %w", err)
	}
	if page.Hits == nil {
		page.Hits = []result.Hit{}
	}
	return page, nil
}
