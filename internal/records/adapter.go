package records

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"funnelmetrics/internal/pkg/keylock"
)

// UpsertResult describes what a single upsert did.
type UpsertResult struct {
	Key      Key
	Created  bool
	Degraded bool
	Warnings []error
}

// Adapter writes records idempotently: one lock per natural key around a
// lookup and a single-statement upsert.
type Adapter struct {
	Store  Store
	Locker keylock.Locker
	Logger *slog.Logger
	// LockWait bounds how long Upsert waits for a busy key. Zero waits
	// until ctx is done.
	LockWait time.Duration
}

// NewAdapter wires a store with a locker. A nil locker keeps locks in-process.
func NewAdapter(store Store, locker keylock.Locker, logger *slog.Logger) *Adapter {
	if locker == nil {
		locker = keylock.NewLocalLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{Store: store, Locker: locker, Logger: logger}
}

// Upsert inserts rec or replaces the record with the same key. When the
// store cannot keep the department detail the counters are written alone and
// the result carries a DegradedWriteError warning.
func (a *Adapter) Upsert(ctx context.Context, rec Record) (UpsertResult, error) {
	rec.Key = normalize(rec.Key)
	result := UpsertResult{Key: rec.Key}

	if err := rec.Validate(); err != nil {
		return result, err
	}

	lockCtx := ctx
	if a.LockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, a.LockWait)
		defer cancel()
	}

	unlock, err := a.Locker.Lock(lockCtx, "metric_record:"+rec.Key.String())
	if err != nil {
		return result, &StoreError{Op: "lock", Key: rec.Key, Err: err}
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			a.Logger.Warn("Failed to release record lock", slog.String("key", rec.Key.String()), slog.Any("error", err))
		}
	}()

	existing, err := a.Store.FindRecord(ctx, rec.Key)
	if err != nil {
		return result, err
	}
	result.Created = existing == nil

	err = a.Store.UpsertRecord(ctx, rec)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, ErrSchemaMismatch) || rec.Detail == nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return result, err
		}
		return result, &StoreError{Op: "upsert", Key: rec.Key, Err: err}
	}

	dept := rec.Detail.Department()
	a.Logger.Warn("Department detail rejected by store, retrying with counters only",
		slog.String("key", rec.Key.String()),
		slog.String("department", string(dept)),
		slog.Any("error", err))

	reduced := rec
	reduced.Detail = nil
	if retryErr := a.Store.UpsertRecord(ctx, reduced); retryErr != nil {
		if errors.Is(retryErr, ErrStoreUnavailable) {
			return result, retryErr
		}
		return result, &StoreError{Op: "upsert", Key: rec.Key, Err: retryErr}
	}

	result.Degraded = true
	result.Warnings = append(result.Warnings, &DegradedWriteError{Key: rec.Key, Department: dept, Err: err})
	return result, nil
}
