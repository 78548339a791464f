package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	DBStatus   string    `json:"db_status"`
	LockStatus string    `json:"lock_status"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthIndexAction handles the health check endpoint
func (h *Handlers) HealthIndexAction(ctx *cartridge.Context) error {
	dbStatus := "ok"

	// Check database connectivity
	db := ctx.DBManager.GetConnection()
	if db == nil {
		dbStatus = "error"
		ctx.Logger.Error("Database connection unavailable")
	} else {
		sqlDB, err := db.DB()
		if err != nil {
			dbStatus = "error"
			ctx.Logger.Error("Database connection error", slog.Any("error", err))
		} else if err := sqlDB.Ping(); err != nil {
			dbStatus = "error"
			ctx.Logger.Error("Database ping failed", slog.Any("error", err))
		}
	}

	// Only a shared lock backend can be down.
	lockStatus := "local"
	if p, ok := h.Locker.(pinger); ok {
		lockStatus = "ok"
		pingCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			lockStatus = "error"
			ctx.Logger.Error("Lock backend ping failed", slog.Any("error", err))
		}
	}

	health := HealthStatus{
		Status:     "ok",
		Timestamp:  time.Now(),
		DBStatus:   dbStatus,
		LockStatus: lockStatus,
	}

	if dbStatus != "ok" || lockStatus == "error" {
		health.Status = "degraded"
	}

	return ctx.JSON(health)
}
