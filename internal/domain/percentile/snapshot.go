package percentile

import (
	"slices"
	"time"

	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
)

// Records maps metric -> bill id -> percentile.
type Records map[metric.Name]map[string]float64

// Snapshot is an immutable, version-stamped set of percentile records.
// Readers hold a *Snapshot for as long as they need a consistent view.
type Snapshot struct {
	version   int64
	createdAt time.Time
	records   Records
}

// NewSnapshot copies records into a new snapshot. Empty metrics are dropped.
func NewSnapshot(version int64, createdAt time.Time, records Records) *Snapshot {
	cp := make(Records, len(records))
	for m, byBill := range records {
		if len(byBill) == 0 {
			continue
		}
		inner := make(map[string]float64, len(byBill))
		for id, p := range byBill {
			inner[id] = p
		}
		cp[m] = inner
	}
	return &Snapshot{version: version, createdAt: createdAt, records: cp}
}

// Empty returns the version-0 snapshot with no records.
func Empty() *Snapshot {
	return &Snapshot{records: Records{}}
}

// Version returns the snapshot version. Versions increase with every publish.
func (s *Snapshot) Version() int64 { return s.version }

// CreatedAt returns when the snapshot was computed.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// Get returns the percentile of bill for m, and whether a record exists.
func (s *Snapshot) Get(billID string, m metric.Name) (float64, bool) {
	p, ok := s.records[m][billID]
	return p, ok
}

// ForBill returns every percentile recorded for a bill.
func (s *Snapshot) ForBill(billID string) metric.Values {
	out := metric.Values{}
	for m, byBill := range s.records {
		if p, ok := byBill[billID]; ok {
			out[m] = p
		}
	}
	return out
}

// Metrics returns the metrics present in the snapshot, in canonical order.
func (s *Snapshot) Metrics() []metric.Name {
	var out []metric.Name
	for _, m := range metric.All() {
		if _, ok := s.records[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of (bill, metric) records.
func (s *Snapshot) Len() int {
	n := 0
	for _, byBill := range s.records {
		n += len(byBill)
	}
	return n
}

// Bills returns the sorted ids of bills holding at least one record.
func (s *Snapshot) Bills() []string {
	return s.HoldersOf(nil)
}

// HoldersOf returns the sorted ids of bills holding any of names; nil means any metric.
func (s *Snapshot) HoldersOf(names []metric.Name) []string {
	seen := map[string]struct{}{}
	for m, byBill := range s.records {
		if names != nil && !slices.Contains(names, m) {
			continue
		}
		for id := range byBill {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Records returns a deep copy of the snapshot contents.
func (s *Snapshot) Records() Records {
	return NewSnapshot(s.version, s.createdAt, s.records).records
}

// Replace returns a new snapshot in which every metric in replaced takes the
// given records (an empty map removes it) and all other metrics carry over.
func (s *Snapshot) Replace(version int64, createdAt time.Time, replaced Records) *Snapshot {
	merged := make(Records, len(s.records)+len(replaced))
	for m, byBill := range s.records {
		if _, ok := replaced[m]; !ok {
			merged[m] = byBill
		}
	}
	for m, byBill := range replaced {
		merged[m] = byBill
	}
	return NewSnapshot(version, createdAt, merged)
}
