package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"funnelmetrics/internal/dashboard"
	"funnelmetrics/internal/http/middleware"
	"funnelmetrics/internal/period"
)

// PeriodResponse is a resolved period with its comparison window.
type PeriodResponse struct {
	Mode     period.Mode   `json:"mode"`
	Period   period.Period `json:"period"`
	Previous period.Period `json:"previous_period"`
	Days     []string      `json:"days"`
}

// PeriodsShowAction resolves a mode and anchor into a concrete period.
func (h *Handlers) PeriodsShowAction(ctx *cartridge.Context) error {
	req, err := periodQuery(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	p, err := h.Service.Resolver.Resolve(req)
	if err != nil {
		return respondError(ctx, err)
	}
	prev, err := period.Previous(p)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.JSON(PeriodResponse{
		Mode:     req.Mode,
		Period:   p,
		Previous: prev,
		Days:     formatDays(p.Days()),
	})
}

// HierarchyShowAction returns the rollup tree of an entity for a period,
// compared with the previous period of equal length.
func (h *Handlers) HierarchyShowAction(ctx *cartridge.Context) error {
	ref, err := entityRef(ctx)
	if err != nil {
		return invalid(ctx, KindInvalidRequest, err.Error())
	}

	req, err := periodQuery(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	childIDs, err := idList(ctx.Query("children"))
	if err != nil {
		return invalid(ctx, KindInvalidRequest, err.Error())
	}

	start := time.Now()
	report, err := h.Service.Hierarchy(ctx.UserContext(), dashboard.HierarchyInput{
		Root:       ref,
		Period:     req,
		Department: middleware.SelectedDepartment(ctx.Ctx),
		ChildIDs:   childIDs,
	})
	if err != nil {
		return respondError(ctx, err)
	}

	ctx.Logger.Debug("Hierarchy built",
		slog.String("root", ref.String()),
		slog.String("period", report.Period.String()),
		slog.Duration("elapsed", time.Since(start)))

	return ctx.Status(fiber.StatusOK).JSON(report)
}

func formatDays(days []time.Time) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.Format(period.DateLayout)
	}
	return out
}
