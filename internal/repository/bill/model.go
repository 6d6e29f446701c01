package bill

import (
	"sort"
	"time"

	dombill "github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
)

// seqName is the single row of ingest_sequence shared by all writes.
const seqName = "ingest"

type billRow struct {
	PackageID       string    `gorm:"primaryKey;size:256"`
	Slug            string    `gorm:"size:512"`
	Title           string    `gorm:"type:text"`
	Publisher       string    `gorm:"size:255"`
	Date            time.Time `gorm:"index"`
	Congress        string    `gorm:"size:16;index"`
	Session         string    `gorm:"size:16"`
	LegisNum        string    `gorm:"size:64"`
	CurrentChamber  string    `gorm:"size:32;index"`
	BillType        string    `gorm:"size:16;index"`
	BillVersion     string    `gorm:"size:16;index"`
	IsAppropriation bool
	Text            string   `gorm:"type:text"`
	Keywords        []string `gorm:"type:text;serializer:json"`
	Entities        []string `gorm:"type:text;serializer:json"`
	Issues          []string `gorm:"type:text;serializer:json"`
	ShortTitles     []string `gorm:"type:text;serializer:json"`
	MoneySentences  []string `gorm:"type:text;serializer:json"`
	Summary         string   `gorm:"type:text"`
	ELI5            string   `gorm:"column:eli5;type:text"`
	Commentary      string   `gorm:"type:text"`
	MoneyCommentary string   `gorm:"type:text"`
	LLMModelID      string   `gorm:"column:llm_model_id;size:128"`
	Seq             int64    `gorm:"not null;index"`
	UpdatedAt       time.Time
}

func (billRow) TableName() string { return "bills" }

type sectionRow struct {
	ID             uint64   `gorm:"primaryKey;autoIncrement"`
	BillID         string   `gorm:"size:256;not null;index:idx_section_bill_pos,priority:1"`
	Position       int      `gorm:"not null;index:idx_section_bill_pos,priority:2"`
	Enum           string   `gorm:"size:64"`
	Header         string   `gorm:"type:text"`
	Summary        string   `gorm:"type:text"`
	MoneySentences []string `gorm:"type:text;serializer:json"`
}

func (sectionRow) TableName() string { return "bill_sections" }

// metricRow keeps the value as text; parsing happens at ranking time.
type metricRow struct {
	BillID string `gorm:"primaryKey;size:256"`
	Name   string `gorm:"primaryKey;size:64;index"`
	Value  string `gorm:"size:64;not null"`
}

func (metricRow) TableName() string { return "bill_metrics" }

type tombstoneRow struct {
	PackageID string `gorm:"primaryKey;size:256"`
	Seq       int64  `gorm:"not null;index"`
	DeletedAt time.Time
}

func (tombstoneRow) TableName() string { return "bill_tombstones" }

type sequenceRow struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value int64  `gorm:"not null"`
}

func (sequenceRow) TableName() string { return "ingest_sequence" }

func toRows(b *dombill.Bill) (billRow, []sectionRow, []metricRow) {
	p := b.Params()
	row := billRow{
		PackageID:       p.PackageID,
		Slug:            p.Slug,
		Title:           p.Title,
		Publisher:       p.Publisher,
		Date:            p.Date.UTC(),
		Congress:        p.Congress,
		Session:         p.Session,
		LegisNum:        p.LegisNum,
		CurrentChamber:  p.CurrentChamber,
		BillType:        p.BillType,
		BillVersion:     p.BillVersion,
		IsAppropriation: p.IsAppropriation,
		Text:            p.Text,
		Keywords:        p.Keywords,
		Entities:        p.Entities,
		Issues:          p.Issues,
		ShortTitles:     p.ShortTitles,
		MoneySentences:  p.MoneySentences,
		Summary:         p.Summary,
		ELI5:            p.ELI5,
		Commentary:      p.Commentary,
		MoneyCommentary: p.MoneyCommentary,
		LLMModelID:      p.LLMModelID,
	}

	sections := make([]sectionRow, 0, len(p.Sections))
	for i, s := range p.Sections {
		sections = append(sections, sectionRow{
			BillID:         p.PackageID,
			Position:       i,
			Enum:           s.Enum,
			Header:         s.Header,
			Summary:        s.Summary,
			MoneySentences: s.MoneySentences,
		})
	}

	metrics := make([]metricRow, 0, len(p.Metrics))
	for name, v := range p.Metrics {
		metrics = append(metrics, metricRow{
			BillID: p.PackageID,
			Name:   string(name),
			Value:  metric.FormatValue(v),
		})
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })

	return row, sections, metrics
}

// fromRows hydrates a bill. Unparseable metric values are left out; they
// surface as malformed samples when the metric is ranked.
func fromRows(row billRow, sections []sectionRow, metrics []metricRow) dombill.Bill {
	p := dombill.Params{
		PackageID:       row.PackageID,
		Slug:            row.Slug,
		Title:           row.Title,
		Publisher:       row.Publisher,
		Date:            row.Date.UTC(),
		Congress:        row.Congress,
		Session:         row.Session,
		LegisNum:        row.LegisNum,
		CurrentChamber:  row.CurrentChamber,
		BillType:        row.BillType,
		BillVersion:     row.BillVersion,
		IsAppropriation: row.IsAppropriation,
		Text:            row.Text,
		Keywords:        row.Keywords,
		Entities:        row.Entities,
		Issues:          row.Issues,
		ShortTitles:     row.ShortTitles,
		MoneySentences:  row.MoneySentences,
		Summary:         row.Summary,
		ELI5:            row.ELI5,
		Commentary:      row.Commentary,
		MoneyCommentary: row.MoneyCommentary,
		LLMModelID:      row.LLMModelID,
	}

	if len(metrics) > 0 {
		p.Metrics = make(metric.Values, len(metrics))
		for _, m := range metrics {
			name := metric.Name(m.Name)
			if !name.Valid() {
				continue
			}
			v, err := metric.ParseValue(m.Value)
			if err != nil {
				continue
			}
			p.Metrics[name] = v
		}
	}

	if len(sections) > 0 {
		p.Sections = make([]dombill.Section, 0, len(sections))
		for _, s := range sections {
			p.Sections = append(p.Sections, dombill.Section{
				Enum:           s.Enum,
				Header:         s.Header,
				Summary:        s.Summary,
				MoneySentences: s.MoneySentences,
			})
		}
	}

	return dombill.Reconstruct(p, row.Seq)
}
