package http

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"funnelmetrics/internal/dashboard"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
	"funnelmetrics/internal/pkg/keylock"
	"funnelmetrics/internal/records"
	"funnelmetrics/internal/settings"
)

// Handlers holds the state shared by the API actions.
type Handlers struct {
	Service *dashboard.Service
	Floors  *settings.FloorStore
	Locker  keylock.Locker
}

// NewHandlers returns the API actions over svc.
func NewHandlers(svc *dashboard.Service, floors *settings.FloorStore, locker keylock.Locker) *Handlers {
	return &Handlers{Service: svc, Floors: floors, Locker: locker}
}

// Error kinds reported in API error bodies.
const (
	KindInvalidRequest   = "invalid_request"
	KindInvalidPeriod    = "invalid_period"
	KindNegativeCounter  = "negative_counter"
	KindInvalidParent    = "invalid_parent"
	KindNotLeaf          = "not_a_leaf"
	KindNotFound         = "not_found"
	KindStoreUnavailable = "store_unavailable"
	KindInternal         = "internal_error"
)

// invalid reports a 422 with the given kind.
func invalid(ctx *cartridge.Context, kind, message string) error {
	return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"error": message,
		"kind":  kind,
	})
}

// respondError maps engine errors to a status code and a JSON body that names
// what failed.
func respondError(ctx *cartridge.Context, err error) error {
	body := fiber.Map{"error": err.Error()}

	var counterErr *metrics.CounterError
	var periodErr *period.InvalidPeriodError
	var submitErr *dashboard.SubmitError

	switch {
	case errors.As(err, &counterErr):
		body["kind"] = KindNegativeCounter
		body["field"] = counterErr.Field
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(body)

	case errors.As(err, &periodErr):
		body["kind"] = KindInvalidPeriod
		if !periodErr.Start.IsZero() {
			body["period"] = fiber.Map{
				"start": periodErr.Start.Format(period.DateLayout),
				"end":   periodErr.End.Format(period.DateLayout),
			}
		}
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(body)

	case errors.Is(err, entities.ErrInvalidParent):
		body["kind"] = KindInvalidParent
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(body)

	case errors.Is(err, entities.ErrNotLeaf):
		body["kind"] = KindNotLeaf
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(body)

	case errors.Is(err, entities.ErrNotFound):
		body["kind"] = KindNotFound
		return ctx.Status(fiber.StatusNotFound).JSON(body)

	case errors.Is(err, records.ErrStoreUnavailable):
		body["kind"] = KindStoreUnavailable
		if errors.As(err, &submitErr) {
			body["entity"] = submitErr.Entity.String()
			body["period"] = fiber.Map{
				"start": submitErr.Period.Start.Format(period.DateLayout),
				"end":   submitErr.Period.End.Format(period.DateLayout),
			}
			body["failed_day"] = submitErr.Day.PeriodStart.Format(period.DateLayout)
		}
		ctx.Logger.Error("Store unavailable", slog.Any("error", err))
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(body)
	}

	ctx.Logger.Error("Unexpected API error", slog.Any("error", err))
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal server error",
		"kind":  KindInternal,
	})
}

// entityRef reads the :type and :id route params.
func entityRef(ctx *cartridge.Context) (entities.Ref, error) {
	t, err := entities.ParseType(ctx.Params("type"))
	if err != nil {
		return entities.Ref{}, err
	}
	id, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return entities.Ref{}, errors.New("invalid entity id")
	}
	return entities.Ref{Type: t, ID: uint(id)}, nil
}

// periodQuery reads mode, anchor, from and to from the query string.
func periodQuery(ctx *cartridge.Context) (period.Request, error) {
	return period.ParseRequest(ctx.Query("mode"), ctx.Query("anchor"), ctx.Query("from"), ctx.Query("to"))
}

// idList parses a comma separated list of ids.
func idList(raw string) ([]uint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, errors.New("children must be a comma separated list of ids")
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
