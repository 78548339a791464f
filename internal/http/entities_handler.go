package http

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/records"
)

type createEntityRequest struct {
	Name string `json:"name"`
}

// FunnelsIndexAction lists every funnel.
func FunnelsIndexAction(ctx *cartridge.Context) error {
	funnels, err := entities.ListFunnels(ctx.DB())
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(fiber.Map{"funnels": funnels})
}

// FunnelsCreateAction creates a funnel.
func FunnelsCreateAction(ctx *cartridge.Context) error {
	var req createEntityRequest
	if err := ctx.BodyParser(&req); err != nil {
		return invalid(ctx, KindInvalidRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Name) == "" {
		return invalid(ctx, KindInvalidRequest, "name is required")
	}

	funnel, err := entities.Create(ctx.DB(), entities.Funnel, nil, req.Name)
	if err != nil {
		return respondError(ctx, err)
	}

	ctx.Logger.Info("Funnel created", slog.Uint64("id", uint64(funnel.ID)), slog.String("name", funnel.Name))
	return ctx.Status(fiber.StatusCreated).JSON(funnel)
}

// ChildrenIndexAction lists the direct children of an entity in creation order.
func ChildrenIndexAction(ctx *cartridge.Context) error {
	ref, err := entityRef(ctx)
	if err != nil {
		return invalid(ctx, KindInvalidRequest, err.Error())
	}

	db := ctx.DB()
	if _, err := entities.Get(db, ref); err != nil {
		return respondError(ctx, err)
	}

	children, err := entities.Children(db, ref)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(fiber.Map{"parent": ref.String(), "children": children})
}

// ChildrenCreateAction creates an entity one level below the parent in the route.
func ChildrenCreateAction(ctx *cartridge.Context) error {
	parent, err := entityRef(ctx)
	if err != nil {
		return invalid(ctx, KindInvalidRequest, err.Error())
	}

	childType, ok := parent.Type.ChildType()
	if !ok {
		return invalid(ctx, KindInvalidParent, string(parent.Type)+" cannot have children")
	}

	var req createEntityRequest
	if err := ctx.BodyParser(&req); err != nil {
		return invalid(ctx, KindInvalidRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return invalid(ctx, KindInvalidRequest, "name is required")
	}

	db := ctx.DB()
	// Records of a node that gains children drop out of every rollup.
	held, err := records.NewGormStore(db, nil).HasRecords(ctx.UserContext(), parent)
	if err != nil {
		return respondError(ctx, err)
	}
	if held {
		return respondError(ctx, fmt.Errorf("%w: %s already holds metric records", entities.ErrInvalidParent, parent))
	}

	child, err := entities.Create(db, childType, &parent.ID, req.Name)
	if err != nil {
		return respondError(ctx, err)
	}

	ctx.Logger.Info("Entity created",
		slog.String("type", string(child.Type)),
		slog.Uint64("id", uint64(child.ID)),
		slog.String("parent", parent.String()))
	return ctx.Status(fiber.StatusCreated).JSON(child)
}
