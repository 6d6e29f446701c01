package searchindex

import (
	"github.com/kailas-cloud/corpusrank/internal/db"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	"github.com/kailas-cloud/corpusrank/internal/domain/searchdoc"
)

// buildIndex declares the FT schema for bill documents. Text weights are
// static and applied at index build time.
func buildIndex(name, prefix string, weights map[string]float64) (*db.IndexDefinition, error) {
	b := db.NewIndex(name).Prefix(prefix)

	for _, f := range searchdoc.BoostedFields {
		w := f.Weight
		if override, ok := weights[f.Name]; ok && override > 0 {
			w = override
		}
		b.WeightedText(f.Name, w)
	}
	b.Text(searchdoc.FieldMoneyCommentary)

	b.SortableNumeric(searchdoc.FieldDate)
	for _, f := range searchdoc.TagFields {
		b.Tag(f)
	}
	for _, f := range searchdoc.FacetFields {
		b.TagWithOpts(f, searchdoc.TagSeparator, false)
	}
	for _, m := range metric.All() {
		b.Numeric(searchdoc.ValueField(m))
		b.Numeric(searchdoc.PercentileField(m))
	}

	return b.Build()
}
