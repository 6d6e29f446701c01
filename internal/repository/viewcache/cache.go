// Package viewcache stores rendered per-bill fragments in Redis under
// {prefix}{package_id}:{fragment}. Fragments never contain ':', so the id is
// everything between the prefix and the last ':'.
package viewcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/corpusrank/internal/db"
	"github.com/kailas-cloud/corpusrank/internal/domain"
)

// Defaults.
const (
	DefaultPrefix = "view:"
	DefaultTTL    = 24 * time.Hour

	delChunk = 500
)

// store is the consumer interface for the view cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	DelMulti(ctx context.Context, keys []string) (int64, error)
}

// Cache implements usecase/invalidation.Cache.
type Cache struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a view cache. Zero values fall back to the defaults.
func New(s store, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: s, prefix: prefix, ttl: ttl}
}

// Put stores a rendered fragment for a bill.
func (c *Cache) Put(ctx context.Context, billID, fragment string, value []byte) error {
	if billID == "" || fragment == "" || strings.Contains(fragment, ":") {
		return fmt.Errorf("%w: fragment key %q/%q", domain.ErrMalformedRecord, billID, fragment)
	}
	if err := c.store.SetWithTTL(ctx, c.key(billID, fragment), value, c.ttl); err != nil {
		return fmt.Errorf("%w: put %s: %w", domain.ErrCacheUnavailable, billID, err)
	}
	return nil
}

// Get returns a cached fragment. A miss returns domain.ErrNotFound.
func (c *Cache) Get(ctx context.Context, billID, fragment string) ([]byte, error) {
	v, err := c.store.Get(ctx, c.key(billID, fragment))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrCacheUnavailable, billID, err)
	}
	return v, nil
}

// EvictIDs removes every fragment of the given bills and returns the number of keys evicted.
func (c *Cache) EvictIDs(ctx context.Context, ids []string) (int64, error) {
	var keys []string
	for _, id := range ids {
		found, err := c.store.Scan(ctx, globEscaper.Replace(c.prefix+id)+":*")
		if err != nil {
			return 0, fmt.Errorf("%w: scan %s: %w", domain.ErrCacheUnavailable, id, err)
		}
		// "A:*" also matches fragments of a bill named "A:x"
		for _, k := range found {
			if c.billOf(k) == id {
				keys = append(keys, k)
			}
		}
	}
	return c.del(ctx, keys)
}

// Flush removes every derived entry.
func (c *Cache) Flush(ctx context.Context) (int64, error) {
	keys, err := c.store.Scan(ctx, globEscaper.Replace(c.prefix)+"*")
	if err != nil {
		return 0, fmt.Errorf("%w: scan: %w", domain.ErrCacheUnavailable, err)
	}
	return c.del(ctx, keys)
}

func (c *Cache) del(ctx context.Context, keys []string) (int64, error) {
	var removed int64
	for start := 0; start < len(keys); start += delChunk {
		end := min(start+delChunk, len(keys))
		n, err := c.store.DelMulti(ctx, keys[start:end])
		if err != nil {
			return removed, fmt.Errorf("%w: delete: %w", domain.ErrCacheUnavailable, err)
		}
		removed += n
	}
	return removed, nil
}

func (c *Cache) key(billID, fragment string) string {
	return c.prefix + billID + ":" + fragment
}

func (c *Cache) billOf(key string) string {
	rest := strings.TrimPrefix(key, c.prefix)
	if i := strings.LastIndexByte(rest, ':'); i >= 0 {
		return rest[:i]
	}
	return ""
}

// globEscaper quotes SCAN MATCH metacharacters.
var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)
