// Package metric defines the fixed set of per-bill numeric metrics.
package metric

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/corpusrank/internal/domain"
)

// Name identifies a metric.
type Name string

// Recognized metrics.
const (
	NumPages          Name = "num_pages"
	NumSections       Name = "num_sections"
	NumTokens         Name = "num_tokens"
	NumSentences      Name = "num_sentences"
	NumCharacters     Name = "num_characters"
	NumNouns          Name = "num_nouns"
	NumVerbs          Name = "num_verbs"
	NumAdjectives     Name = "num_adjectives"
	NumAdverbs        Name = "num_adverbs"
	NumPunctuations   Name = "num_punctuations"
	NumNumbers        Name = "num_numbers"
	NumEntities       Name = "num_entities"
	AvgTokenLength    Name = "avg_token_length"
	AvgSentenceLength Name = "avg_sentence_length"
	TokenEntropy      Name = "token_entropy"
	ARIRaw            Name = "ari_raw"
)

var all = []Name{
	NumPages, NumSections, NumTokens, NumSentences, NumCharacters,
	NumNouns, NumVerbs, NumAdjectives, NumAdverbs, NumPunctuations,
	NumNumbers, NumEntities, AvgTokenLength, AvgSentenceLength,
	TokenEntropy, ARIRaw,
}

var known = func() map[Name]struct{} {
	m := make(map[Name]struct{}, len(all))
	for _, n := range all {
		m[n] = struct{}{}
	}
	return m
}()

// All returns every recognized metric in canonical order.
func All() []Name {
	out := make([]Name, len(all))
	copy(out, all)
	return out
}

// Valid reports whether n is a recognized metric.
func (n Name) Valid() bool {
	_, ok := known[n]
	return ok
}

func (n Name) String() string { return string(n) }

// Parse validates a metric name.
func Parse(s string) (Name, error) {
	n := Name(strings.TrimSpace(s))
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownMetric, s)
	}
	return n, nil
}

// ParseList splits a comma-separated metric list. Empty input yields nil.
func ParseList(s string) ([]Name, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]Name, 0, len(parts))
	for _, p := range parts {
		n, err := Parse(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Values is a sparse metric map. A missing key means the metric is absent, never zero.
type Values map[Name]float64

// Get returns the value and whether the metric is present.
func (v Values) Get(n Name) (float64, bool) {
	x, ok := v[n]
	return x, ok
}

// Sample is a raw metric row as read from the metric store.
// Value stays textual until ranking so malformed rows fail only their metric.
type Sample struct {
	BillID string
	Metric Name
	Value  string
}

// ParseValue converts a stored value into a finite float64.
func ParseValue(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", domain.ErrMalformedRecord, s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", domain.ErrMalformedRecord, s)
	}
	return f, nil
}

// FormatValue renders a value the way the metric store keeps it.
func FormatValue(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
