package dashboard

import (
	"log/slog"

	"gorm.io/gorm"

	"funnelmetrics/internal/comparison"
	"funnelmetrics/internal/config"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/period"
	"funnelmetrics/internal/pkg/keylock"
	"funnelmetrics/internal/records"
	"funnelmetrics/internal/rollup"
	"funnelmetrics/internal/settings"
)

// FloorSource returns merged per-metric floors.
type FloorSource interface {
	Floors() (map[string]float64, error)
}

// StoredFloors reads per-metric floors from src on every call and falls back
// to def for metrics without one.
func StoredFloors(src FloorSource, def float64) FloorsFunc {
	return func() (comparison.Floors, error) {
		perMetric, err := src.Floors()
		if err != nil {
			return comparison.Floors{}, err
		}
		return comparison.Floors{Default: def, PerMetric: perMetric}, nil
	}
}

// New assembles a service over the database. The locker must be shared by
// every service writing to the same store.
func New(db *gorm.DB, logger *slog.Logger, cfg *config.Config, locker keylock.Locker, clock period.TimeProvider) (*Service, *settings.FloorStore) {
	if logger == nil {
		logger = slog.Default()
	}

	store := records.NewGormStore(db, logger)
	adapter := records.NewAdapter(store, locker, logger)
	adapter.LockWait = cfg.GetLockWait()

	dir := entities.NewDirectory(db)
	floorStore := settings.NewFloorStore(db, logger, cfg.SignificanceFloors)

	resolver := period.NewResolver(clock, period.WeekConvention{
		StartDay:      cfg.GetWeekStart(),
		EndOffsetDays: cfg.WeekEndOffsetDays,
	})

	svc := NewService(resolver, adapter, rollup.NewAggregator(dir, store), dir, StoredFloors(floorStore, cfg.DefaultFloor), logger)
	return svc, floorStore
}
