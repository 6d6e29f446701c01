// Package searchindex stores search documents as Redis hashes under a FT index.
package searchindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/corpusrank/internal/db"
	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/request"
	"github.com/kailas-cloud/corpusrank/internal/domain/search/result"
	"github.com/kailas-cloud/corpusrank/internal/domain/searchdoc"
)

// Defaults.
const (
	DefaultIndexName = "bills:idx"
	DefaultKeyPrefix = "bill:"
)

var hitFields = []string{
	searchdoc.FieldTitle,
	searchdoc.FieldDateISO,
	searchdoc.FieldLegisNum,
	searchdoc.FieldSlug,
}

// store is the consumer interface for the search index (ISP).
type store interface {
	ReplaceHash(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetFieldMulti(ctx context.Context, keys []string, field string) ([]string, error)
	DelMulti(ctx context.Context, keys []string) (int64, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

// Config names the index and its key space.
type Config struct {
	IndexName string
	KeyPrefix string
	// Weights overrides the default boost of a text field.
	Weights map[string]float64
}

// Repo implements usecase/projector.Index and usecase/search.Index.
type Repo struct {
	store store
	cfg   Config
}

// New creates a search index repository.
func New(s store, cfg Config) *Repo {
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Repo{store: s, cfg: cfg}
}

// EnsureIndex creates the FT index when it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", r.cfg.IndexName, err)
	}
	if exists {
		return false, nil
	}

	def, err := buildIndex(r.cfg.IndexName, r.cfg.KeyPrefix, r.cfg.Weights)
	if err != nil {
		return false, fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return false, nil
		}
		return false, fmt.Errorf("create index %s: %w", r.cfg.IndexName, err)
	}
	return true, nil
}

// Upsert atomically replaces the stored document.
func (r *Repo) Upsert(ctx context.Context, doc searchdoc.Document) error {
	if err := r.store.ReplaceHash(ctx, r.key(doc.ID()), doc.Fields()); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrIndexRejected, doc.ID(), err)
	}
	return nil
}

// Fingerprints returns the stored fingerprint for each id, "" when absent.
func (r *Repo) Fingerprints(ctx context.Context, ids []string) ([]string, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	fps, err := r.store.HGetFieldMulti(ctx, keys, searchdoc.FieldFingerprint)
	if err != nil {
		return nil, fmt.Errorf("read fingerprints: %w", err)
	}
	return fps, nil
}

// Get returns the stored document.
func (r *Repo) Get(ctx context.Context, id string) (searchdoc.Document, error) {
	fields, err := r.store.HGetAll(ctx, r.key(id))
	if err != nil {
		return searchdoc.Document{}, fmt.Errorf("hgetall %s: %w", id, err)
	}
	if len(fields) == 0 {
		return searchdoc.Document{}, domain.ErrNotFound
	}
	return searchdoc.Reconstruct(id, fields), nil
}

// Delete removes documents and returns how many existed.
func (r *Repo) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	n, err := r.store.DelMulti(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("%w: delete documents: %w", domain.ErrIndexRejected, err)
	}
	return n, nil
}

// Search runs a scored full-text query. An empty query matches every document.
func (r *Repo) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	q := &db.TextQuery{
		IndexName:    r.cfg.IndexName,
		Query:        req.Query(),
		Fields:       req.Fields(),
		Offset:       req.Offset(),
		Limit:        req.Limit(),
		ReturnFields: hitFields,
	}
	for _, f := range req.Filters() {
		q.Tags = append(q.Tags, db.TagFilter{Field: f.Field, Value: f.Value})
	}
	if req.DateFrom() != nil || req.DateTo() != nil {
		rf := db.RangeFilter{Field: searchdoc.FieldDate}
		if req.DateFrom() != nil {
			v := float64(req.DateFrom().Unix())
			rf.Min = &v
		}
		if req.DateTo() != nil {
			v := float64(req.DateTo().Unix())
			rf.Max = &v
		}
		q.Ranges = append(q.Ranges, rf)
	}

	sr, err := r.store.SearchText(ctx, q)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return result.Page{}, fmt.Errorf("index %s: %w", r.cfg.IndexName, domain.ErrNotFound)
		}
		return result.Page{}, fmt.Errorf("search %s: %w", r.cfg.IndexName, err)
	}
	return r.toPage(sr), nil
}

func (r *Repo) toPage(sr *db.SearchResult) result.Page {
	if sr == nil || sr.Total == 0 {
		return result.Page{Hits: []result.Hit{}}
	}
	hits := make([]result.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		hits = append(hits, result.New(
			strings.TrimPrefix(e.Key, r.cfg.KeyPrefix),
			e.Score,
			e.Fields[searchdoc.FieldTitle],
			e.Fields[searchdoc.FieldDateISO],
			e.Fields[searchdoc.FieldLegisNum],
			e.Fields[searchdoc.FieldSlug],
		))
	}
	return result.Page{Total: sr.Total, Hits: hits}
}

// IndexName returns the FT index name.
func (r *Repo) IndexName() string { return r.cfg.IndexName }

func (r *Repo) key(id string) string { return r.cfg.KeyPrefix + id }
