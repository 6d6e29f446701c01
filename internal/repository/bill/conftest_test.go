package bill

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	dombill "github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// every pooled connection to :memory: would be a fresh database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := New(db)
	repo.now = func() time.Time { return testNow }
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func testBill(t *testing.T, id string, metrics metric.Values) dombill.Bill {
	t.Helper()
	b, err := dombill.New(dombill.Params{
		PackageID:      id,
		Title:          "An Act " + id,
		Date:           time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Congress:       "118",
		Session:        "2",
		LegisNum:       "H.R. 1",
		CurrentChamber: "HOUSE",
		BillType:       "hr",
		BillVersion:    "ih",
		Text:           "Be it enacted.",
		Metrics:        metrics,
		Keywords:       []string{"tax", "energy"},
		Summary:        "Summary of " + id,
		Sections: []dombill.Section{
			{Enum: "1", Header: "Short title", Summary: "Names the act."},
			{Enum: "2", Header: "Funding", MoneySentences: []string{"$5 is appropriated."}},
		},
	})
	if err != nil {
		t.Fatalf("new bill: %v", err)
	}
	return b
}

func mustSave(t *testing.T, r *Repo, b dombill.Bill) int64 {
	t.Helper()
	seq, err := r.Save(context.Background(), &b)
	if err != nil {
		t.Fatalf("save %s: %v", b.PackageID(), err)
	}
	return seq
}
