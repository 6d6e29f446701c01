// Package bill reads and writes the bill corpus in the relational source.
// Every write bumps the shared ingestion sequence.
package bill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kailas-cloud/corpusrank/internal/domain"
	dombill "github.com/kailas-cloud/corpusrank/internal/domain/bill"
	"github.com/kailas-cloud/corpusrank/internal/domain/metric"
)

// Count fields accepted by CountBy.
const (
	CountByType     = "bill_type"
	CountByChamber  = "current_chamber"
	CountByVersion  = "bill_version"
	CountByCongress = "congress"
)

var countFields = map[string]bool{
	CountByType:     true,
	CountByChamber:  true,
	CountByVersion:  true,
	CountByCongress: true,
}

// Repo implements the ingestion collaborator on top of GORM.
type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates a bill repository.
func New(db *gorm.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

// Migrate creates the tables and seeds the ingestion sequence.
func (r *Repo) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(&billRow{}, &sectionRow{}, &metricRow{}, &tombstoneRow{}, &sequenceRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	seq := sequenceRow{Name: seqName}
	if err := db.Where(sequenceRow{Name: seqName}).FirstOrCreate(&seq).Error; err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}
	return nil
}

// Ping checks the source connection.
func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Save inserts or replaces a bill with its sections and metrics and returns
// the ingestion sequence stamped on it. Deleted ids cannot be reused.
func (r *Repo) Save(ctx context.Context, b *dombill.Bill) (int64, error) {
	row, sections, metrics := toRows(b)
	row.UpdatedAt = r.now().UTC()

	var seq int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&tombstoneRow{}).Where("package_id = ?", row.PackageID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: package_id %q was deleted and cannot be reused", domain.ErrMalformedRecord, row.PackageID)
		}

		next, err := nextSeq(tx)
		if err != nil {
			return err
		}
		row.Seq = next

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "package_id"}},
			UpdateAll: true,
		}).Create(&row).Error; err != nil {
			return err
		}
		if err := replaceChildren(tx, row.PackageID, sections, metrics); err != nil {
			return err
		}
		seq = next
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrMalformedRecord) {
			return 0, err
		}
		return 0, unavailable("save "+row.PackageID, err)
	}
	return seq, nil
}

// Delete removes a bill and leaves a tombstone carrying the new sequence.
func (r *Repo) Delete(ctx context.Context, id string) (int64, error) {
	var seq int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("package_id = ?", id).Delete(&billRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		if err := replaceChildren(tx, id, nil, nil); err != nil {
			return err
		}

		next, err := nextSeq(tx)
		if err != nil {
			return err
		}
		if err := tx.Create(&tombstoneRow{PackageID: id, Seq: next, DeletedAt: r.now().UTC()}).Error; err != nil {
			return err
		}
		seq = next
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
		return 0, unavailable("delete "+id, err)
	}
	return seq, nil
}

// Samples returns the raw metric rows, restricted to names when non-empty,
// ordered by metric then bill.
func (r *Repo) Samples(ctx context.Context, names []metric.Name) ([]metric.Sample, error) {
	q := r.db.WithContext(ctx).Model(&metricRow{})
	if len(names) > 0 {
		raw := make([]string, len(names))
		for i, n := range names {
			raw[i] = string(n)
		}
		q = q.Where("name IN ?", raw)
	}

	var rows []metricRow
	if err := q.Order("name").Order("bill_id").Find(&rows).Error; err != nil {
		return nil, unavailable("load samples", err)
	}

	samples := make([]metric.Sample, len(rows))
	for i, row := range rows {
		samples[i] = metric.Sample{BillID: row.BillID, Metric: metric.Name(row.Name), Value: row.Value}
	}
	return samples, nil
}

// Get loads one bill.
func (r *Repo) Get(ctx context.Context, id string) (dombill.Bill, error) {
	db := r.db.WithContext(ctx)

	var row billRow
	if err := db.Where("package_id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dombill.Bill{}, domain.ErrNotFound
		}
		return dombill.Bill{}, unavailable("get "+id, err)
	}

	bills, err := r.hydrate(db, []billRow{row})
	if err != nil {
		return dombill.Bill{}, err
	}
	return bills[0], nil
}

// All loads the whole corpus ordered by package_id.
func (r *Repo) All(ctx context.Context) ([]dombill.Bill, error) {
	db := r.db.WithContext(ctx)

	var rows []billRow
	if err := db.Order("package_id").Find(&rows).Error; err != nil {
		return nil, unavailable("load corpus", err)
	}
	return r.hydrate(db, rows)
}

// ChangedSince loads bills written after seq, oldest first.
func (r *Repo) ChangedSince(ctx context.Context, seq int64) ([]dombill.Bill, error) {
	db := r.db.WithContext(ctx)

	var rows []billRow
	if err := db.Where("seq > ?", seq).Order("seq").Find(&rows).Error; err != nil {
		return nil, unavailable("load changed bills", err)
	}
	return r.hydrate(db, rows)
}

// TombstonesSince returns ids deleted after seq, oldest first.
func (r *Repo) TombstonesSince(ctx context.Context, seq int64) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&tombstoneRow{}).
		Where("seq > ?", seq).Order("seq").Pluck("package_id", &ids).Error
	if err != nil {
		return nil, unavailable("load tombstones", err)
	}
	return ids, nil
}

// MaxSeq returns the highest sequence stamped so far.
func (r *Repo) MaxSeq(ctx context.Context) (int64, error) {
	var row sequenceRow
	if err := r.db.WithContext(ctx).Where("name = ?", seqName).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, unavailable("read sequence", err)
	}
	return row.Value, nil
}

// CountBy groups the corpus by one categorical column.
func (r *Repo) CountBy(ctx context.Context, field string) (map[string]int64, error) {
	if !countFields[field] {
		return nil, fmt.Errorf("unsupported count field %q", field)
	}

	var rows []struct {
		Bucket string
		N      int64
	}
	err := r.db.WithContext(ctx).Model(&billRow{}).
		Select(field + " AS bucket, COUNT(*) AS n").
		Group(field).
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable("count by "+field, err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Bucket] = row.N
	}
	return out, nil
}

func (r *Repo) hydrate(db *gorm.DB, rows []billRow) ([]dombill.Bill, error) {
	if len(rows) == 0 {
		return []dombill.Bill{}, nil
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.PackageID
	}

	var sections []sectionRow
	if err := db.Where("bill_id IN ?", ids).Order("bill_id").Order("position").Find(&sections).Error; err != nil {
		return nil, unavailable("load sections", err)
	}
	var metrics []metricRow
	if err := db.Where("bill_id IN ?", ids).Find(&metrics).Error; err != nil {
		return nil, unavailable("load metrics", err)
	}

	sectionsBy := make(map[string][]sectionRow, len(rows))
	for _, s := range sections {
		sectionsBy[s.BillID] = append(sectionsBy[s.BillID], s)
	}
	metricsBy := make(map[string][]metricRow, len(rows))
	for _, m := range metrics {
		metricsBy[m.BillID] = append(metricsBy[m.BillID], m)
	}

	bills := make([]dombill.Bill, len(rows))
	for i, row := range rows {
		bills[i] = fromRows(row, sectionsBy[row.PackageID], metricsBy[row.PackageID])
	}
	return bills, nil
}

func replaceChildren(tx *gorm.DB, id string, sections []sectionRow, metrics []metricRow) error {
	if err := tx.Where("bill_id = ?", id).Delete(&sectionRow{}).Error; err != nil {
		return err
	}
	if err := tx.Where("bill_id = ?", id).Delete(&metricRow{}).Error; err != nil {
		return err
	}
	if len(sections) > 0 {
		if err := tx.Create(&sections).Error; err != nil {
			return err
		}
	}
	if len(metrics) > 0 {
		if err := tx.Create(&metrics).Error; err != nil {
			return err
		}
	}
	return nil
}

func nextSeq(tx *gorm.DB) (int64, error) {
	res := tx.Model(&sequenceRow{}).Where("name = ?", seqName).Update("value", gorm.Expr("value + ?", 1))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if err := tx.Create(&sequenceRow{Name: seqName, Value: 1}).Error; err != nil {
			return 0, err
		}
		return 1, nil
	}
	var row sequenceRow
	if err := tx.Where("name = ?", seqName).First(&row).Error; err != nil {
		return 0, err
	}
	return row.Value, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrSourceUnavailable, op, err)
}
