package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

// FloorsResponse lists the significance floors in effect.
type FloorsResponse struct {
	Floors    map[string]float64 `json:"floors"`
	Overrides map[string]float64 `json:"overrides"`
}

type updateFloorsRequest struct {
	Floors map[string]float64 `json:"floors"`
}

// SignificanceFloorsShowAction returns the merged floors and the saved overrides.
func (h *Handlers) SignificanceFloorsShowAction(ctx *cartridge.Context) error {
	return h.renderFloors(ctx)
}

// SignificanceFloorsUpdateAction replaces the saved floor overrides.
func (h *Handlers) SignificanceFloorsUpdateAction(ctx *cartridge.Context) error {
	var req updateFloorsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return invalid(ctx, KindInvalidRequest, "invalid request body")
	}

	if err := h.Floors.Save(req.Floors); err != nil {
		ctx.Logger.Warn("Rejected significance floors", slog.Any("error", err))
		return invalid(ctx, KindInvalidRequest, err.Error())
	}

	ctx.Logger.Info("Significance floors updated", slog.Int("overrides", len(req.Floors)))
	return h.renderFloors(ctx)
}

func (h *Handlers) renderFloors(ctx *cartridge.Context) error {
	overrides, err := h.Floors.Overrides()
	if err != nil {
		return respondError(ctx, err)
	}
	floors, err := h.Floors.Floors()
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.Status(fiber.StatusOK).JSON(FloorsResponse{Floors: floors, Overrides: overrides})
}
