package projector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	dombatch "github.com/kailas-cloud/corpusrank/internal/domain/batch"
	"github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
	dompct "github.com/kailas-cloud/corpusrank/internal/domain/percentile"
	"github.com/kailas-cloud/corpusrank/internal/domain/searchdoc"
	"github.com/kailas-cloud/corpusrank/internal/event"
)

func TestUpsert_WritesDocumentWithPercentiles(t *testing.T) {
	f := newFixture(t)
	b := testBill(t, "A", "Energy Act")

	res := f.svc.Upsert(context.Background(), &b)
	if res.Status() != dombatch.StatusOK {
		t.Fatalf("status = %s, err = %v", res.Status(), res.Err())
	}
	doc := f.index.docs["A"]
	if v, _ := doc.Field(searchdoc.PercentileField(metric.NumPages)); v != "25" {
		t.Errorf("percentile field = %q", v)
	}
}

func TestUpsert_UnchangedIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := testBill(t, "A", "Energy Act")

	f.svc.Upsert(ctx, &b)
	res := f.svc.Upsert(ctx, &b)
	if res.Status() != dombatch.StatusUnchanged {
		t.Fatalf("status = %s", res.Status())
	}
	if f.index.upserts != 1 {
		t.Errorf("upserts = %d, want 1", f.index.upserts)
	}
	if len(f.events.all()) != 1 {
		t.Errorf("unchanged documents must not emit events: %v", f.events.all())
	}
}

func TestUpsert_ChangedTitleRewrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b1 := testBill(t, "A", "Energy Act")
	b2 := testBill(t, "A", "Energy Act of 2024")

	f.svc.Upsert(ctx, &b1)
	if res := f.svc.Upsert(ctx, &b2); res.Status() != dombatch.StatusOK {
		t.Fatalf("status = %s", res.Status())
	}
	doc := f.index.docs["A"]
	if v, _ := doc.Field(searchdoc.FieldTitle); v != "Energy Act of 2024" {
		t.Errorf("title = %q", v)
	}
}

func TestUpsert_SnapshotChangeRewrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := testBill(t, "A", "Energy Act")
	f.svc.Upsert(ctx, &b)

	f.snaps.snap = dompct.NewSnapshot(2, time.Time{}, dompct.Records{metric.NumPages: {"A": 50}})
	if res := f.svc.Upsert(ctx, &b); res.Status() != dombatch.StatusOK {
		t.Fatalf("status = %s", res.Status())
	}
}

func TestUpsertAll_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.index.reject["C"] = true
	bills := []bill.Bill{
		testBill(t, "A", "One"),
		bill.Reconstruct(bill.Params{Title: "no id"}, 0),
		testBill(t, "C", "Three"),
		testBill(t, "D", "Four"),
	}

	res := f.svc.UpsertAll(context.Background(), bills)
	if res.Counts.OK != 2 || res.Counts.Skipped != 1 || res.Counts.Failed != 1 {
		t.Fatalf("counts = %+v", res.Counts)
	}
	if !errors.Is(res.Results[1].Err(), domain.ErrMalformedRecord) {
		t.Errorf("skipped err = %v", res.Results[1].Err())
	}
	if !errors.Is(res.Results[2].Err(), domain.ErrIndexRejected) {
		t.Errorf("rejected err = %v", res.Results[2].Err())
	}

	evs := f.events.all()
	if len(evs) != 1 || evs[0].Kind != event.DocumentsIndexed {
		t.Fatalf("events = %v", evs)
	}
	if ids := evs[0].Scope.IDs(); len(ids) != 2 || ids[0] != "A" || ids[1] != "D" {
		t.Errorf("event ids = %v", ids)
	}
}

func TestUpsertAll_FingerprintReadFailureRewrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := testBill(t, "A", "One")
	f.svc.Upsert(ctx, &b)

	f.index.fpErr = errors.New("timeout")
	res := f.svc.UpsertAll(ctx, []bill.Bill{b})
	if res.Counts.OK != 1 {
		t.Errorf("counts = %+v", res.Counts)
	}
}

func TestUpsertAll_ChunkedFingerprints(t *testing.T) {
	f := newFixture(t)
	f.svc.WithChunkSize(2)
	ctx := context.Background()
	bills := []bill.Bill{testBill(t, "A", "1"), testBill(t, "B", "2"), testBill(t, "C", "3")}

	f.svc.UpsertAll(ctx, bills)
	res := f.svc.UpsertAll(ctx, bills)
	if res.Counts.Unchanged != 3 {
		t.Errorf("counts = %+v", res.Counts)
	}
}

func TestUpsertAll_CanceledLeavesNoHalfWrites(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.index.beforeEach = func(id string) {
		if id == "A" {
			cancel()
		}
	}
	bills := make([]bill.Bill, 0, 50)
	for _, id := range []string{"A", "B", "C", "D", "E", "F", "G", "H"} {
		bills = append(bills, testBill(t, id, id))
	}

	res := f.svc.UpsertAll(ctx, bills)
	if res.Counts.Total() != len(bills) {
		t.Fatalf("every bill needs a result: %+v", res.Counts)
	}
	for _, r := range res.Results {
		_, stored := f.index.docs[r.ID()]
		if (r.Status() == dombatch.StatusOK) != stored {
			t.Errorf("%s: status %s but stored=%v", r.ID(), r.Status(), stored)
		}
	}
}

func TestDelete_OnlyExplicit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := testBill(t, "A", "1"), testBill(t, "B", "2")
	f.svc.UpsertAll(ctx, []bill.Bill{a, b})

	// projecting a subset never removes the others
	f.svc.UpsertAll(ctx, []bill.Bill{a})
	if len(f.index.docs) != 2 {
		t.Fatalf("implicit delete: %d docs", len(f.index.docs))
	}

	n, err := f.svc.Delete(ctx, []string{"B", "missing"})
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v", n, err)
	}
	if _, ok := f.index.docs["B"]; ok {
		t.Error("B not deleted")
	}
	evs := f.events.all()
	last := evs[len(evs)-1]
	if last.Kind != event.DocumentsIndexed || last.Scope.Len() != 2 {
		t.Errorf("delete event = %+v", last)
	}
}

func TestEnsureIndex(t *testing.T) {
	f := newFixture(t)
	f.index.ensureFn = func(context.Context) (bool, error) { return false, errors.New("ERR unknown command") }
	if err := f.svc.EnsureIndex(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	f.index.ensureFn = func(context.Context) (bool, error) { return true, nil }
	if err := f.svc.EnsureIndex(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestUpsert_FieldsByteIdentical(t *testing.T) {
	f := newFixture(t)
	b := testBill(t, "A", "Energy Act")
	d1, err := searchdoc.Project(&b, f.snaps.snap)
	if err != nil {
		t.Fatal(err)
	}
	d2, _ := searchdoc.Project(&b, f.snaps.snap)
	if string(d1.Encode()) != string(d2.Encode()) {
		t.Error("projection is not deterministic")
	}
}
