package searchdoc

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	"github.com/kailas-cloud/corpusrank/internal/domain/percentile"
)

func sampleBill(t *testing.T, mutate func(p *bill.Params)) bill.Bill {
	t.Helper()
	p := bill.Params{
		PackageID:       "BILLS-118hr1ih",
		Title:           "Lower Energy Costs Act",
		LegisNum:        "H.R. 1",
		Date:            time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC),
		Congress:        "118",
		Session:         "1",
		CurrentChamber:  "HOUSE",
		BillType:        "hr",
		BillVersion:     "ih",
		IsAppropriation: false,
		Text:            "Be it enacted...",
		Summary:         "Energy bill.",
		Keywords:        []string{"energy", "oil", "energy"},
		Entities:        []string{"Congress", "EPA"},
		Metrics:         metric.Values{metric.NumPages: 120, metric.TokenEntropy: 9.5},
		MoneyCommentary: "Authorizes $5B.",
		MoneySentences:  []string{"There is authorized $5,000,000,000."},
	}
	if mutate != nil {
		mutate(&p)
	}
	b, err := bill.New(p)
	if err != nil {
		t.Fatalf("bill.New: %v", err)
	}
	return b
}

func TestProject_Idempotent(t *testing.T) {
	b := sampleBill(t, nil)
	snap := percentile.NewSnapshot(4, time.Now(), percentile.Records{metric.NumPages: {"BILLS-118hr1ih": 62.5}})

	d1, err := Project(&b, snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d2, _ := Project(&b, snap)
	if !bytes.Equal(d1.Encode(), d2.Encode()) {
		t.Error("projection not byte-identical")
	}
	if d1.Fingerprint() == "" || d1.Fingerprint() != d2.Fingerprint() {
		t.Errorf("fingerprints differ: %q vs %q", d1.Fingerprint(), d2.Fingerprint())
	}
}

func TestProject_Fields(t *testing.T) {
	b := sampleBill(t, nil)
	snap := percentile.NewSnapshot(4, time.Now(), percentile.Records{metric.NumPages: {"BILLS-118hr1ih": 62.5}})
	d, _ := Project(&b, snap)

	want := map[string]string{
		FieldPackageID:                   "BILLS-118hr1ih",
		FieldTitle:                       "Lower Energy Costs Act",
		FieldDate:                        "1678752000",
		FieldDateISO:                     "2023-03-14T00:00:00Z",
		FieldChamber:                     "HOUSE",
		FieldAppropriation:               "false",
		FieldKeywords:                    "energy|oil",
		FieldEntities:                    "Congress|EPA",
		FieldHasMoney:                    "true",
		ValueField(metric.NumPages):      "120",
		PercentileField(metric.NumPages): "62.5",
		ValueField(metric.TokenEntropy):  "9.5",
	}
	for k, v := range want {
		if got, _ := d.Field(k); got != v {
			t.Errorf("field %s = %q, want %q", k, got, v)
		}
	}
	if _, ok := d.Field(PercentileField(metric.TokenEntropy)); ok {
		t.Error("percentile present for unranked metric")
	}
	if _, ok := d.Field(ValueField(metric.NumTokens)); ok {
		t.Error("absent metric projected")
	}
}

func TestProject_OmitsMoneyFacetWhenCommentaryEmpty(t *testing.T) {
	b := sampleBill(t, func(p *bill.Params) { p.MoneyCommentary = "  " })
	d, err := Project(&b, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, k := range []string{FieldMoneyCommentary, FieldHasMoney, FieldMoneySentences} {
		if _, ok := d.Field(k); ok {
			t.Errorf("field %s present, want omitted", k)
		}
	}
	if got, _ := d.Field(FieldTitle); got != "Lower Energy Costs Act" {
		t.Errorf("other fields affected: title = %q", got)
	}
}

func TestProject_MissingIdentifier(t *testing.T) {
	b := bill.Reconstruct(bill.Params{Title: "no id"}, 1)
	_, err := Project(&b, nil)
	if !errors.Is(err, domain.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestProject_FingerprintTracksContentAndPercentiles(t *testing.T) {
	b := sampleBill(t, nil)
	base, _ := Project(&b, nil)

	changed := sampleBill(t, func(p *bill.Params) { p.Summary = "Revised." })
	d, _ := Project(&changed, nil)
	if d.Fingerprint() == base.Fingerprint() {
		t.Error("fingerprint unchanged after summary edit")
	}

	snap := percentile.NewSnapshot(2, time.Now(), percentile.Records{metric.NumPages: {"BILLS-118hr1ih": 50}})
	d, _ = Project(&b, snap)
	if d.Fingerprint() == base.Fingerprint() {
		t.Error("fingerprint unchanged after percentile change")
	}
}

func TestProject_FacetOrderIndependent(t *testing.T) {
	a := sampleBill(t, func(p *bill.Params) { p.Keywords = []string{"b", "a"} })
	b := sampleBill(t, func(p *bill.Params) { p.Keywords = []string{"a", "b", "a"} })
	da, _ := Project(&a, nil)
	db, _ := Project(&b, nil)
	if da.Fingerprint() != db.Fingerprint() {
		t.Error("facet ordering changed the fingerprint")
	}
}

func TestFieldsReturnsCopy(t *testing.T) {
	b := sampleBill(t, nil)
	d, _ := Project(&b, nil)
	f := d.Fields()
	f[FieldTitle] = "mutated"
	if got, _ := d.Field(FieldTitle); got == "mutated" {
		t.Error("Fields() exposed internal map")
	}
}

func TestSplitFacet(t *testing.T) {
	if got := SplitFacet("a|b"); len(got) != 2 || got[1] != "b" {
		t.Errorf("SplitFacet = %v", got)
	}
	if SplitFacet("") != nil {
		t.Error("SplitFacet(\"\") should be nil")
	}
	if got := joinFacet([]string{"x|y", " ", "z"}); got != "x y|z" {
		t.Errorf("joinFacet = %q", got)
	}
}
