// Package records persists one metric record per entity and day, keyed by
// (entity type, entity id, period start, period end).
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"funnelmetrics/internal/department"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
)

var (
	// ErrStoreUnavailable is matched by every *StoreError.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSchemaMismatch marks a write the store rejected because it cannot
	// hold the department detail columns.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrDegradedWrite is matched by the warning returned when counters were
	// saved without their department detail.
	ErrDegradedWrite = errors.New("degraded write")
)

// Key is the natural key of a metric record.
type Key struct {
	EntityType  entities.Type `json:"entity_type"`
	EntityID    uint          `json:"entity_id"`
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
}

// DayKey is the key of ref's record for a single day.
func DayKey(ref entities.Ref, day time.Time) Key {
	d := period.Date(day)
	return Key{EntityType: ref.Type, EntityID: ref.ID, PeriodStart: d, PeriodEnd: d}
}

// Ref returns the entity the key belongs to.
func (k Key) Ref() entities.Ref {
	return entities.Ref{Type: k.EntityType, ID: k.EntityID}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%s:%s", k.EntityType, k.EntityID,
		k.PeriodStart.Format(period.DateLayout), k.PeriodEnd.Format(period.DateLayout))
}

// Record is a metric record in domain form.
type Record struct {
	Key
	Counters metrics.Counters
	Derived  metrics.Derived
	Detail   department.Detail
}

// Validate checks the key and every counter.
func (r Record) Validate() error {
	if r.EntityID == 0 || r.EntityType == "" {
		return fmt.Errorf("record key requires an entity, got %s", r.Key)
	}
	if err := (period.Period{Start: r.PeriodStart, End: r.PeriodEnd}).Validate(); err != nil {
		return err
	}
	if err := r.Counters.Validate(); err != nil {
		return err
	}
	return department.Validate(r.Detail)
}

// StoreError wraps a failed store call with the key needed to retry it.
type StoreError struct {
	Op  string
	Key Key
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store unavailable: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DegradedWriteError is the warning attached to an upsert whose department
// detail could not be stored.
type DegradedWriteError struct {
	Key        Key
	Department department.Department
	Err        error
}

func (e *DegradedWriteError) Error() string {
	return fmt.Sprintf("%s detail for %s was not saved: %v", e.Department, e.Key, e.Err)
}

func (e *DegradedWriteError) Is(target error) bool {
	return target == ErrDegradedWrite
}

func (e *DegradedWriteError) Unwrap() error {
	return e.Err
}

// Store is the persistence contract used by the upsert adapter and rollup.
type Store interface {
	// FindRecord returns nil and no error when no record has the key.
	FindRecord(ctx context.Context, key Key) (*Record, error)
	// UpsertRecord inserts or replaces the record for rec.Key in one step.
	UpsertRecord(ctx context.Context, rec Record) error
	// QueryRecords returns ref's records that fall inside p, optionally
	// restricted to one department.
	QueryRecords(ctx context.Context, ref entities.Ref, p period.Period, dept department.Department) ([]Record, error)
}

// Sum adds up the counters of recs.
func Sum(recs []Record) metrics.Counters {
	total := metrics.Counters{Spend: decimal.Zero, Revenue: decimal.Zero}
	for _, r := range recs {
		total = total.Add(r.Counters)
	}
	return total
}
