// Package bill holds the Bill aggregate as supplied by the ingestion collaborator.
package bill

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"time"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
)

var packageIDRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// MaxPackageIDLength bounds package identifiers.
const MaxPackageIDLength = 256

// Section is one ordered section of a bill.
type Section struct {
	Enum           string
	Header         string
	Summary        string
	MoneySentences []string
}

// Params carries every field of a Bill for construction.
type Params struct {
	PackageID       string
	Slug            string
	Title           string
	Publisher       string
	Date            time.Time
	Congress        string
	Session         string
	LegisNum        string
	CurrentChamber  string
	BillType        string
	BillVersion     string
	IsAppropriation bool

	Text    string
	Metrics metric.Values

	Keywords       []string
	Entities       []string
	Issues         []string
	ShortTitles    []string
	MoneySentences []string

	Summary         string
	ELI5            string
	Commentary      string
	MoneyCommentary string
	LLMModelID      string

	Sections []Section
}

// Bill is an immutable legislative document with its sparse metrics.
type Bill struct {
	p   Params
	seq int64
}

// New validates and creates a Bill. Failures wrap domain.ErrMalformedRecord.
func New(p Params) (Bill, error) {
	if p.PackageID == "" {
		return Bill{}, fmt.Errorf("%w: package_id is required", domain.ErrMalformedRecord)
	}
	if len(p.PackageID) > MaxPackageIDLength {
		return Bill{}, fmt.Errorf("%w: package_id too long (max %d)", domain.ErrMalformedRecord, MaxPackageIDLength)
	}
	if !packageIDRegex.MatchString(p.PackageID) {
		return Bill{}, fmt.Errorf("%w: package_id %q has invalid characters", domain.ErrMalformedRecord, p.PackageID)
	}
	for name, v := range p.Metrics {
		if !name.Valid() {
			return Bill{}, fmt.Errorf("%w: %q", domain.ErrUnknownMetric, name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Bill{}, &domain.MalformedValueError{BillID: p.PackageID, Metric: string(name), Value: metric.FormatValue(v)}
		}
	}
	if p.Slug == "" {
		p.Slug = DefaultSlug(p.LegisNum, p.Title, p.BillVersion)
	}
	return Bill{p: clone(p)}, nil
}

// Reconstruct creates a Bill without validation (storage hydration).
func Reconstruct(p Params, seq int64) Bill {
	return Bill{p: p, seq: seq}
}

// PackageID returns the opaque, immutable corpus identifier.
func (b *Bill) PackageID() string { return b.p.PackageID }

// Slug returns the URL slug.
func (b *Bill) Slug() string { return b.p.Slug }

// Title returns the bill title.
func (b *Bill) Title() string { return b.p.Title }

// Publisher returns the publishing office.
func (b *Bill) Publisher() string { return b.p.Publisher }

// Date returns the publication date.
func (b *Bill) Date() time.Time { return b.p.Date }

// Congress returns the congress number.
func (b *Bill) Congress() string { return b.p.Congress }

// Session returns the session number.
func (b *Bill) Session() string { return b.p.Session }

// LegisNum returns the legislation number, e.g. "H.R. 1234".
func (b *Bill) LegisNum() string { return b.p.LegisNum }

// CurrentChamber returns the chamber currently holding the bill.
func (b *Bill) CurrentChamber() string { return b.p.CurrentChamber }

// BillType returns the bill type code.
func (b *Bill) BillType() string { return b.p.BillType }

// BillVersion returns the version code.
func (b *Bill) BillVersion() string { return b.p.BillVersion }

// IsAppropriation reports whether the bill appropriates funds.
func (b *Bill) IsAppropriation() bool { return b.p.IsAppropriation }

// Text returns the full text.
func (b *Bill) Text() string { return b.p.Text }

// Metrics returns the sparse metric map.
func (b *Bill) Metrics() metric.Values { return b.p.Metrics }

// Keywords returns LLM keywords.
func (b *Bill) Keywords() []string { return b.p.Keywords }

// Entities returns named entities.
func (b *Bill) Entities() []string { return b.p.Entities }

// Issues returns LLM issue labels.
func (b *Bill) Issues() []string { return b.p.Issues }

// ShortTitles returns short titles.
func (b *Bill) ShortTitles() []string { return b.p.ShortTitles }

// MoneySentences returns sentences mentioning money.
func (b *Bill) MoneySentences() []string { return b.p.MoneySentences }

// Summary returns the LLM summary.
func (b *Bill) Summary() string { return b.p.Summary }

// ELI5 returns the plain-language explanation.
func (b *Bill) ELI5() string { return b.p.ELI5 }

// Commentary returns the LLM commentary.
func (b *Bill) Commentary() string { return b.p.Commentary }

// MoneyCommentary returns the LLM commentary on spending, possibly empty.
func (b *Bill) MoneyCommentary() string { return b.p.MoneyCommentary }

// LLMModelID returns the model that produced the narrative fields.
func (b *Bill) LLMModelID() string { return b.p.LLMModelID }

// Sections returns the ordered sections.
func (b *Bill) Sections() []Section { return b.p.Sections }

// Seq returns the ingestion sequence of the last write, 0 for unsaved bills.
func (b *Bill) Seq() int64 { return b.seq }

// Params returns a copy of the bill's fields.
func (b *Bill) Params() Params { return clone(b.p) }

func clone(p Params) Params {
	out := p
	if p.Metrics != nil {
		out.Metrics = make(metric.Values, len(p.Metrics))
		for k, v := range p.Metrics {
			out.Metrics[k] = v
		}
	}
	out.Keywords = slices.Clone(p.Keywords)
	out.Entities = slices.Clone(p.Entities)
	out.Issues = slices.Clone(p.Issues)
	out.ShortTitles = slices.Clone(p.ShortTitles)
	out.MoneySentences = slices.Clone(p.MoneySentences)
	if p.Sections != nil {
		out.Sections = make([]Section, len(p.Sections))
		for i, s := range p.Sections {
			s.MoneySentences = slices.Clone(s.MoneySentences)
			out.Sections[i] = s
		}
	}
	return out
}
