// Package percentile computes corpus-relative percentile ranks and holds
// immutable, versioned snapshots of them.
package percentile

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
)

// Observation is one bill's value for a single metric.
type Observation struct {
	BillID string
	Value  float64
}

// Rank assigns every observation its mean-rank percentile:
//
//	100 * (count_below + 0.5 * count_equal) / total
//
// Equal values share a percentile, so a lone holder scores 50. Duplicate bill
// ids are rejected because each bill holds a metric at most once.
func Rank(obs []Observation) (map[string]float64, error) {
	out := make(map[string]float64, len(obs))
	if len(obs) == 0 {
		return out, nil
	}

	sorted := slices.Clone(obs)
	slices.SortFunc(sorted, func(a, b Observation) int {
		switch {
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		}
		return 0
	})

	total := float64(len(sorted))
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end].Value == sorted[start].Value {
			end++
		}
		pct := 100 * (float64(start) + 0.5*float64(end-start)) / total
		for _, o := range sorted[start:end] {
			if _, dup := out[o.BillID]; dup {
				return nil, fmt.Errorf("duplicate observation for bill %s", o.BillID)
			}
			out[o.BillID] = pct
		}
		start = end
	}
	return out, nil
}

// Observe parses raw samples for one metric into observations.
// The first unparsable value fails the whole metric.
func Observe(name metric.Name, samples []metric.Sample) ([]Observation, error) {
	obs := make([]Observation, 0, len(samples))
	for _, s := range samples {
		if s.Metric != name {
			continue
		}
		v, err := metric.ParseValue(s.Value)
		if err != nil {
			return nil, fmt.Errorf("bill %s: %w", s.BillID, err)
		}
		obs = append(obs, Observation{BillID: s.BillID, Value: v})
	}
	return obs, nil
}
