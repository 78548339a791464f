package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"funnelmetrics/internal/department"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
)

// MetricRecord is the stored row for one entity and day.
type MetricRecord struct {
	ID               uint                  `gorm:"primaryKey;autoIncrement"`
	EntityType       entities.Type         `gorm:"not null;uniqueIndex:idx_metric_records_key,priority:1"`
	EntityID         uint                  `gorm:"not null;uniqueIndex:idx_metric_records_key,priority:2"`
	PeriodStart      time.Time             `gorm:"not null;uniqueIndex:idx_metric_records_key,priority:3"`
	PeriodEnd        time.Time             `gorm:"not null;uniqueIndex:idx_metric_records_key,priority:4"`
	Reach            int64                 `gorm:"not null;default:0"`
	Impressions      int64                 `gorm:"not null;default:0"`
	Clicks           int64                 `gorm:"not null;default:0"`
	PageViews        int64                 `gorm:"not null;default:0"`
	Leads            int64                 `gorm:"not null;default:0"`
	Checkouts        int64                 `gorm:"not null;default:0"`
	Sales            int64                 `gorm:"not null;default:0"`
	Spend            decimal.Decimal       `gorm:"type:decimal(14,2);not null;default:0"`
	Revenue          decimal.Decimal       `gorm:"type:decimal(14,2);not null;default:0"`
	ROAS             float64               `gorm:"column:roas;not null;default:0"`
	CTR              float64               `gorm:"column:ctr;not null;default:0"`
	CPM              float64               `gorm:"column:cpm;not null;default:0"`
	CPC              float64               `gorm:"column:cpc;not null;default:0"`
	CPL              float64               `gorm:"column:cpl;not null;default:0"`
	ConversionRate   float64               `gorm:"not null;default:0"`
	Department       department.Department `gorm:"not null;default:'';index"`
	DepartmentDetail string                `gorm:"type:text"`
	CreatedAt        time.Time             `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt        time.Time             `gorm:"not null;autoUpdateTime:milli"`
}

// Record converts the row to its domain form. Derived metrics are always
// recomputed from the stored counters.
func (m MetricRecord) Record() (Record, error) {
	counters := metrics.Counters{
		Reach:       m.Reach,
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		PageViews:   m.PageViews,
		Leads:       m.Leads,
		Checkouts:   m.Checkouts,
		Sales:       m.Sales,
		Spend:       m.Spend,
		Revenue:     m.Revenue,
	}
	detail, err := department.Decode(m.Department, []byte(m.DepartmentDetail))
	if err != nil {
		return Record{}, err
	}
	return Record{
		Key: Key{
			EntityType:  m.EntityType,
			EntityID:    m.EntityID,
			PeriodStart: period.Date(m.PeriodStart),
			PeriodEnd:   period.Date(m.PeriodEnd),
		},
		Counters: counters,
		Derived:  metrics.Derive(counters),
		Detail:   detail,
	}, nil
}

// GormStore keeps metric records in the metric_records table.
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewGormStore returns a store over db.
func NewGormStore(db *gorm.DB, logger *slog.Logger) *GormStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GormStore{db: db, logger: logger}
}

func (s *GormStore) FindRecord(ctx context.Context, key Key) (*Record, error) {
	var row MetricRecord
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND period_start = ? AND period_end = ?",
			key.EntityType, key.EntityID, period.Date(key.PeriodStart), period.Date(key.PeriodEnd)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, &StoreError{Op: "find", Key: key, Err: err}
	}

	rec, err := row.Record()
	if err != nil {
		return nil, &StoreError{Op: "find", Key: key, Err: err}
	}
	return &rec, nil
}

var counterColumns = []string{
	"reach", "impressions", "clicks", "page_views", "leads", "checkouts", "sales",
	"spend", "revenue", "roas", "ctr", "cpm", "cpc", "cpl", "conversion_rate",
}

// UpsertRecord writes rec with a single INSERT ... ON CONFLICT statement that
// replaces every field of an existing row. A record without detail clears the
// department columns. When the table lacks those columns there is nothing to
// clear and the write goes ahead without them.
func (s *GormStore) UpsertRecord(ctx context.Context, rec Record) error {
	key := rec.Key
	key.PeriodStart = period.Date(key.PeriodStart)
	key.PeriodEnd = period.Date(key.PeriodEnd)

	c := rec.Counters.Normalize()
	d := metrics.Derive(c)

	columns := append([]string{"entity_type", "entity_id", "period_start", "period_end"}, counterColumns...)
	args := []any{
		key.EntityType, key.EntityID, key.PeriodStart, key.PeriodEnd,
		c.Reach, c.Impressions, c.Clicks, c.PageViews, c.Leads, c.Checkouts, c.Sales,
		c.Spend.StringFixed(2), c.Revenue.StringFixed(2),
		d.ROAS, d.CTR, d.CPM, d.CPC, d.CPL, d.ConversionRate,
	}

	deptColumns := []string{"department", "department_detail"}
	if rec.Detail != nil {
		dept, raw, err := department.Encode(rec.Detail)
		if err != nil {
			return err
		}
		return s.upsert(ctx, key, columns, args, deptColumns, []any{dept, string(raw)})
	}

	deptArgs := []any{department.None, nil}
	for n := len(deptColumns); ; n-- {
		err := s.upsert(ctx, key, columns, args, deptColumns[:n], deptArgs[:n])
		if n == 0 || !errors.Is(err, ErrSchemaMismatch) {
			return err
		}
		s.logger.Debug("Department column missing, clearing fewer columns",
			slog.String("key", key.String()),
			slog.String("column", deptColumns[n-1]))
	}
}

func (s *GormStore) upsert(ctx context.Context, key Key, columns []string, args []any, extraColumns []string, extraArgs []any) error {
	now := time.Now().UTC()

	cols := append(append(append([]string{}, columns...), extraColumns...), "created_at", "updated_at")
	vals := append(append(append([]any{}, args...), extraArgs...), now, now)
	updates := append(append(append([]string{}, counterColumns...), extraColumns...), "updated_at")

	set := make([]string, len(updates))
	for i, col := range updates {
		set[i] = fmt.Sprintf("%s = excluded.%s", col, col)
	}

	query := fmt.Sprintf(`
		INSERT INTO metric_records (%s)
		VALUES (%s)
		ON CONFLICT (entity_type, entity_id, period_start, period_end) DO UPDATE SET
			%s
	`, strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(set, ",\n\t\t\t"))

	err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Exec(query, vals...).Error
	})
	if err != nil {
		if isSchemaMismatch(err) {
			return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
		}
		return &StoreError{Op: "upsert", Key: key, Err: err}
	}
	return nil
}

func (s *GormStore) QueryRecords(ctx context.Context, ref entities.Ref, p period.Period, dept department.Department) ([]Record, error) {
	query := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", ref.Type, ref.ID).
		Where("period_start >= ? AND period_end <= ?", period.Date(p.Start), period.Date(p.End))
	if dept != department.None {
		query = query.Where("department = ?", dept)
	}

	var rows []MetricRecord
	if err := query.Order("period_start ASC").Find(&rows).Error; err != nil {
		return nil, &StoreError{Op: "query", Key: Key{EntityType: ref.Type, EntityID: ref.ID, PeriodStart: p.Start, PeriodEnd: p.End}, Err: err}
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.Record()
		if err != nil {
			return nil, &StoreError{Op: "query", Key: Key{EntityType: row.EntityType, EntityID: row.EntityID, PeriodStart: row.PeriodStart, PeriodEnd: row.PeriodEnd}, Err: err}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&MetricRecord{}).Count(&n).Error
	return n, err
}

// HasRecords reports whether any record is stored for ref.
func (s *GormStore) HasRecords(ctx context.Context, ref entities.Ref) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&MetricRecord{}).
		Where("entity_type = ? AND entity_id = ?", ref.Type, ref.ID).
		Limit(1).Count(&n).Error
	if err != nil {
		return false, &StoreError{Op: "query", Key: Key{EntityType: ref.Type, EntityID: ref.ID}, Err: err}
	}
	return n > 0, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isSchemaMismatch(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "has no column named")
}
