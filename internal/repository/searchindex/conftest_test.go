package searchindex

import (
	"context"
	"testing"

	"github.com/kailas-cloud/corpusrank/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	replaceHashFn    func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn        func(ctx context.Context, key string) (map[string]string, error)
	hgetFieldMultiFn func(ctx context.Context, keys []string, field string) ([]string, error)
	delMultiFn       func(ctx context.Context, keys []string) (int64, error)
	createIndexFn    func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn    func(ctx context.Context, name string) (bool, error)
	searchTextFn     func(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

func (m *mockStore) ReplaceHash(ctx context.Context, key string, fields map[string]string) error {
	if m.replaceHashFn != nil {
		return m.replaceHashFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetFieldMulti(ctx context.Context, keys []string, field string) ([]string, error) {
	if m.hgetFieldMultiFn != nil {
		return m.hgetFieldMultiFn(ctx, keys, field)
	}
	return make([]string, len(keys)), nil
}

func (m *mockStore) DelMulti(ctx context.Context, keys []string) (int64, error) {
	if m.delMultiFn != nil {
		return m.delMultiFn(ctx, keys)
	}
	return int64(len(keys)), nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if m.searchTextFn != nil {
		return m.searchTextFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, Config{}), ms
}
