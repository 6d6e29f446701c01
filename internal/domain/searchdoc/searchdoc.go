// Package searchdoc projects bills into flat search documents.
package searchdoc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	"github.com/kailas-cloud/corpusrank/internal/domain/percentile"
)

// Document field names.
const (
	FieldPackageID       = "package_id"
	FieldSlug            = "slug"
	FieldTitle           = "title"
	FieldLegisNum        = "legis_num"
	FieldText            = "text"
	FieldSummary         = "summary"
	FieldELI5            = "eli5"
	FieldCommentary      = "commentary"
	FieldPublisher       = "publisher"
	FieldDate            = "date"
	FieldDateISO         = "date_iso"
	FieldCongress        = "congress"
	FieldSession         = "session"
	FieldChamber         = "current_chamber"
	FieldBillType        = "bill_type"
	FieldBillVersion     = "bill_version"
	FieldAppropriation   = "is_appropriation"
	FieldEntities        = "entities"
	FieldKeywords        = "keywords"
	FieldIssues          = "issues"
	FieldShortTitles     = "short_titles"
	FieldMoneyCommentary = "money_commentary"
	FieldMoneySentences  = "money_sentences"
	FieldHasMoney        = "has_money"
	FieldLLMModelID      = "llm_model_id"
	FieldFingerprint     = "fingerprint"
)

// TagSeparator joins multi-valued facets inside a single hash field.
const TagSeparator = "|"

// ISODateLayout matches the date format the public search surface has always used.
const ISODateLayout = "2006-01-02T00:00:00Z"

// BoostedFields lists the TEXT fields with their static relevance weights.
var BoostedFields = []struct {
	Name   string
	Weight float64
}{
	{FieldTitle, 10},
	{FieldLegisNum, 8},
	{FieldSummary, 4},
	{FieldELI5, 3},
	{FieldCommentary, 2},
	{FieldText, 1},
}

// DefaultQueryFields are matched when a query names no fields.
var DefaultQueryFields = []string{FieldTitle, FieldText, FieldSummary, FieldELI5}

// TagFields are exact-match filter fields.
var TagFields = []string{
	FieldCongress, FieldSession, FieldChamber, FieldBillType,
	FieldBillVersion, FieldAppropriation, FieldHasMoney, FieldPublisher,
}

// FacetFields are multi-valued TAG fields joined with TagSeparator.
var FacetFields = []string{FieldEntities, FieldKeywords, FieldIssues, FieldShortTitles}

// ValueField names the hash field holding a raw metric value.
func ValueField(m metric.Name) string { return "m_" + string(m) }

// PercentileField names the hash field holding a metric's percentile.
func PercentileField(m metric.Name) string { return "p_" + string(m) }

// Document is a flat, deterministic projection of a bill.
type Document struct {
	id     string
	fields map[string]string
}

// Project builds the search document for b, taking display percentiles from snap.
// Identical inputs always produce identical fields and fingerprint.
func Project(b *bill.Bill, snap *percentile.Snapshot) (Document, error) {
	id := b.PackageID()
	if strings.TrimSpace(id) == "" {
		return Document{}, fmt.Errorf("%w: missing package_id", domain.ErrMalformedRecord)
	}
	if snap == nil {
		snap = percentile.Empty()
	}

	f := map[string]string{FieldPackageID: id}
	put := func(k, v string) {
		if v != "" {
			f[k] = v
		}
	}

	put(FieldSlug, b.Slug())
	put(FieldTitle, b.Title())
	put(FieldLegisNum, b.LegisNum())
	put(FieldText, b.Text())
	put(FieldSummary, b.Summary())
	put(FieldELI5, b.ELI5())
	put(FieldCommentary, b.Commentary())
	put(FieldPublisher, b.Publisher())
	put(FieldCongress, b.Congress())
	put(FieldSession, b.Session())
	put(FieldChamber, b.CurrentChamber())
	put(FieldBillType, b.BillType())
	put(FieldBillVersion, b.BillVersion())
	put(FieldLLMModelID, b.LLMModelID())
	f[FieldAppropriation] = strconv.FormatBool(b.IsAppropriation())

	if d := b.Date(); !d.IsZero() {
		f[FieldDate] = strconv.FormatInt(d.UTC().Unix(), 10)
		f[FieldDateISO] = d.UTC().Format(ISODateLayout)
	}

	put(FieldEntities, joinFacet(b.Entities()))
	put(FieldKeywords, joinFacet(b.Keywords()))
	put(FieldIssues, joinFacet(b.Issues()))
	put(FieldShortTitles, joinFacet(b.ShortTitles()))

	if mc := strings.TrimSpace(b.MoneyCommentary()); mc != "" {
		f[FieldMoneyCommentary] = mc
		f[FieldHasMoney] = "true"
		put(FieldMoneySentences, strings.Join(b.MoneySentences(), "\n"))
	}

	for _, m := range metric.All() {
		if v, ok := b.Metrics().Get(m); ok {
			f[ValueField(m)] = formatNumber(v)
		}
		if p, ok := snap.Get(id, m); ok {
			f[PercentileField(m)] = formatNumber(p)
		}
	}

	f[FieldFingerprint] = fingerprint(f)
	return Document{id: id, fields: f}, nil
}

// Reconstruct rebuilds a Document from stored fields.
func Reconstruct(id string, fields map[string]string) Document {
	return Document{id: id, fields: fields}
}

// ID returns the package id.
func (d *Document) ID() string { return d.id }

// Fields returns a copy of the hash fields, fingerprint included.
func (d *Document) Fields() map[string]string {
	out := make(map[string]string, len(d.fields))
	for k, v := range d.fields {
		out[k] = v
	}
	return out
}

// Field returns a single field value.
func (d *Document) Field(name string) (string, bool) {
	v, ok := d.fields[name]
	return v, ok
}

// Fingerprint returns the SHA-256 content hash over every other field.
func (d *Document) Fingerprint() string { return d.fields[FieldFingerprint] }

// Encode renders the document deterministically as sorted "key=value" lines.
func (d *Document) Encode() []byte {
	return encode(d.fields, "")
}

func fingerprint(fields map[string]string) string {
	sum := sha256.Sum256(encode(fields, FieldFingerprint))
	return hex.EncodeToString(sum[:])
}

func encode(fields map[string]string, skip string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != skip {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(fields[k]))
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// joinFacet trims, dedupes and sorts values so facet encoding is order-independent.
func joinFacet(values []string) string {
	if len(values) == 0 {
		return ""
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(strings.ReplaceAll(v, TagSeparator, " "))
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return strings.Join(slices.Compact(out), TagSeparator)
}

// SplitFacet is the inverse of the facet encoding.
func SplitFacet(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, TagSeparator)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
