// Package cursor persists the highest ingestion sequence the pipeline has
// fully indexed, so incremental runs resume across restarts.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/corpusrank/internal/db"
)

// DefaultKey sits next to the snapshot keys.
const DefaultKey = "pipeline:indexed_seq"

// store is the consumer interface for cursor persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo implements usecase/pipeline.Cursor.
type Repo struct {
	store store
	key   string
}

// New creates a cursor repository. An empty key means DefaultKey.
func New(s store, key string) *Repo {
	if key == "" {
		key = DefaultKey
	}
	return &Repo{store: s, key: key}
}

// Load returns the saved sequence, 0 when none was saved.
func (r *Repo) Load(ctx context.Context) (int64, error) {
	raw, err := r.store.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("parse cursor %q: invalid sequence", raw)
	}
	return seq, nil
}

// Save overwrites the saved sequence.
func (r *Repo) Save(ctx context.Context, seq int64) error {
	if seq < 0 {
		return fmt.Errorf("save cursor: negative sequence %d", seq)
	}
	if err := r.store.Set(ctx, r.key, []byte(strconv.FormatInt(seq, 10))); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}
