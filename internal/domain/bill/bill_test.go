package bill

import (
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
)

func TestNew_Valid(t *testing.T) {
	b, err := New(Params{
		PackageID: "BILLS-118hr1234ih",
		Title:     "Clean Water Act",
		LegisNum:  "H.R. 1234",
		Metrics:   metric.Values{metric.NumPages: 12},
		Keywords:  []string{"water"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.PackageID() != "BILLS-118hr1234ih" {
		t.Errorf("PackageID() = %q", b.PackageID())
	}
	if v, ok := b.Metrics().Get(metric.NumPages); !ok || v != 12 {
		t.Errorf("num_pages = %v, %v", v, ok)
	}
	if b.Slug() != "h-r-1234-clean-water-act" {
		t.Errorf("Slug() = %q", b.Slug())
	}
	if b.Seq() != 0 {
		t.Errorf("Seq() = %d, want 0", b.Seq())
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		want error
	}{
		{"missing id", Params{Title: "x"}, domain.ErrMalformedRecord},
		{"bad id", Params{PackageID: "has space"}, domain.ErrMalformedRecord},
		{"unknown metric", Params{PackageID: "b1", Metrics: metric.Values{"num_widgets": 1}}, domain.ErrUnknownMetric},
		{"nan metric", Params{PackageID: "b1", Metrics: metric.Values{metric.ARIRaw: math.NaN()}}, domain.ErrMalformedRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.p)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	kw := []string{"a"}
	m := metric.Values{metric.NumTokens: 5}
	b, err := New(Params{PackageID: "b1", Keywords: kw, Metrics: m})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	kw[0] = "mutated"
	m[metric.NumTokens] = 99
	if b.Keywords()[0] != "a" {
		t.Error("keywords aliased caller slice")
	}
	if v, _ := b.Metrics().Get(metric.NumTokens); v != 5 {
		t.Error("metrics aliased caller map")
	}
}

func TestReconstruct_KeepsSeq(t *testing.T) {
	b := Reconstruct(Params{PackageID: "b1", Slug: "s"}, 42)
	if b.Seq() != 42 || b.Slug() != "s" {
		t.Errorf("got seq=%d slug=%q", b.Seq(), b.Slug())
	}
}

func TestDefaultSlug(t *testing.T) {
	tests := []struct {
		legis, title, version, want string
	}{
		{"H.R. 1", "A Bill", "ih", "h-r-1-a-bill-ih"},
		{"S. 22", "  Spaces   and -- dashes!! ", "enr", "s-22-spaces-and-dashes-enr"},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		if got := DefaultSlug(tt.legis, tt.title, tt.version); got != tt.want {
			t.Errorf("DefaultSlug(%q,%q,%q) = %q, want %q", tt.legis, tt.title, tt.version, got, tt.want)
		}
	}
}
