// Package snapshot persists percentile snapshots in Redis.
//
// Layout: pct:{version}:{bill_id} is a hash of metric -> percentile,
// pctmeta:{version} carries the creation time, pct:version names the
// published version and pct:seq allocates new ones. A version is published
// by writing every hash first and the version key last.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/corpusrank/internal/db"
	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	"github.com/kailas-cloud/corpusrank/internal/domain/percentile"
)

const (
	keyPrefix  = "pct:"
	metaPrefix = "pctmeta:"
	versionKey = "pct:version"
	seqKey     = "pct:seq"

	fieldCreatedAt = "created_at"
	fieldMetrics   = "metrics"

	delChunk = 500
)

// store is the consumer interface for snapshot persistence (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	DelMulti(ctx context.Context, keys []string) (int64, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
}

// Repo implements usecase/percentile.SnapshotStore.
type Repo struct {
	store store
}

// New creates a snapshot repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// NextVersion allocates a fresh, strictly increasing version number.
func (r *Repo) NextVersion(ctx context.Context) (int64, error) {
	v, err := r.store.IncrBy(ctx, seqKey, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: allocate version: %w", domain.ErrSnapshotStore, err)
	}
	return v, nil
}

// Publish writes every record of snap under its version and then points
// pct:version at it. Nothing is visible to Load until the last write.
func (r *Repo) Publish(ctx context.Context, snap *percentile.Snapshot) error {
	v := snap.Version()

	items := make([]db.HashSetItem, 0, snap.Len()+1)
	items = append(items, db.HashSetItem{
		Key: metaKey(v),
		Fields: map[string]string{
			fieldCreatedAt: strconv.FormatInt(snap.CreatedAt().UnixMilli(), 10),
			fieldMetrics:   joinMetrics(snap.Metrics()),
		},
	})
	for _, id := range snap.Bills() {
		vals := snap.ForBill(id)
		fields := make(map[string]string, len(vals))
		for name, p := range vals {
			fields[string(name)] = metric.FormatValue(p)
		}
		items = append(items, db.HashSetItem{Key: recordKey(v, id), Fields: fields})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("%w: write version %d: %w", domain.ErrSnapshotStore, v, err)
	}
	if err := r.store.Set(ctx, versionKey, []byte(strconv.FormatInt(v, 10))); err != nil {
		return fmt.Errorf("%w: publish version %d: %w", domain.ErrSnapshotStore, v, err)
	}
	return nil
}

// Current returns the published version, 0 when nothing was published.
func (r *Repo) Current(ctx context.Context) (int64, error) {
	raw, err := r.store.Get(ctx, versionKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: read version: %w", domain.ErrSnapshotStore, err)
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse version %q: %w", domain.ErrSnapshotStore, raw, err)
	}
	return v, nil
}

// Load reads the published snapshot. Returns domain.ErrNotFound when no
// version was ever published.
func (r *Repo) Load(ctx context.Context) (*percentile.Snapshot, error) {
	v, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	if v == 0 {
		return nil, domain.ErrNotFound
	}

	meta, err := r.store.HGetAll(ctx, metaKey(v))
	if err != nil {
		return nil, fmt.Errorf("%w: read meta %d: %w", domain.ErrSnapshotStore, v, err)
	}
	var createdAt time.Time
	if ms, err := strconv.ParseInt(meta[fieldCreatedAt], 10, 64); err == nil {
		createdAt = time.UnixMilli(ms).UTC()
	}

	prefix := versionPrefix(v)
	keys, err := r.store.Scan(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("%w: scan version %d: %w", domain.ErrSnapshotStore, v, err)
	}
	sort.Strings(keys)

	records := percentile.Records{}
	if len(keys) > 0 {
		hashes, err := r.store.HGetAllMulti(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("%w: read version %d: %w", domain.ErrSnapshotStore, v, err)
		}
		for i, h := range hashes {
			id := strings.TrimPrefix(keys[i], prefix)
			for field, raw := range h {
				name := metric.Name(field)
				if !name.Valid() {
					continue
				}
				p, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: %s field %s: %w", domain.ErrSnapshotStore, keys[i], field, err)
				}
				if records[name] == nil {
					records[name] = map[string]float64{}
				}
				records[name][id] = p
			}
		}
	}

	return percentile.NewSnapshot(v, createdAt, records), nil
}

// Sweep deletes every persisted version older than keep and returns the
// number of keys removed.
func (r *Repo) Sweep(ctx context.Context, keep int64) (int64, error) {
	var stale []string
	for _, pattern := range []string{keyPrefix + "*", metaPrefix + "*"} {
		keys, err := r.store.Scan(ctx, pattern)
		if err != nil {
			return 0, fmt.Errorf("%w: scan %s: %w", domain.ErrSnapshotStore, pattern, err)
		}
		for _, k := range keys {
			if v, ok := parseVersion(k); ok && v < keep {
				stale = append(stale, k)
			}
		}
	}

	var removed int64
	for start := 0; start < len(stale); start += delChunk {
		end := min(start+delChunk, len(stale))
		n, err := r.store.DelMulti(ctx, stale[start:end])
		if err != nil {
			return removed, fmt.Errorf("%w: delete stale versions: %w", domain.ErrSnapshotStore, err)
		}
		removed += n
	}
	return removed, nil
}

func recordKey(v int64, billID string) string { return versionPrefix(v) + billID }

func versionPrefix(v int64) string { return keyPrefix + strconv.FormatInt(v, 10) + ":" }

func metaKey(v int64) string { return metaPrefix + strconv.FormatInt(v, 10) }

// parseVersion extracts the version from pct:{v}:{id} or pctmeta:{v}.
// pct:version and pct:seq are not versioned keys.
func parseVersion(key string) (int64, bool) {
	var rest string
	switch {
	case strings.HasPrefix(key, metaPrefix):
		rest = strings.TrimPrefix(key, metaPrefix)
	case strings.HasPrefix(key, keyPrefix):
		rest, _, _ = strings.Cut(strings.TrimPrefix(key, keyPrefix), ":")
	default:
		return 0, false
	}
	v, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func joinMetrics(names []metric.Name) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ",")
}
