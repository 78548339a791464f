package http

import (
	"encoding/json"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"funnelmetrics/internal/dashboard"
	"funnelmetrics/internal/department"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
)

// SubmitMetricsRequest is a period total for one entity.
type SubmitMetricsRequest struct {
	EntityType string           `json:"entity_type"`
	EntityID   uint             `json:"entity_id"`
	Mode       string           `json:"mode"`
	Anchor     string           `json:"anchor"`
	From       string           `json:"from"`
	To         string           `json:"to"`
	Counters   metrics.Counters `json:"counters"`
	Department string           `json:"department"`
	Detail     json.RawMessage  `json:"detail"`
}

// SubmitMetricsResponse reports the written days and any warnings.
type SubmitMetricsResponse struct {
	*dashboard.SubmitResult
	Warnings []string `json:"warnings"`
}

// SubmitMetricsAction distributes a period total into daily records.
func (h *Handlers) SubmitMetricsAction(ctx *cartridge.Context) error {
	var req SubmitMetricsRequest
	if err := ctx.BodyParser(&req); err != nil {
		ctx.Logger.Warn("Invalid metrics payload", slog.Any("error", err))
		return invalid(ctx, KindInvalidRequest, "invalid request body")
	}

	in, err := req.input()
	if err != nil {
		return invalid(ctx, KindInvalidRequest, err.Error())
	}

	periodReq, err := period.ParseRequest(req.Mode, req.Anchor, req.From, req.To)
	if err != nil {
		return respondError(ctx, err)
	}
	in.Period = periodReq

	result, err := h.Service.Submit(ctx.UserContext(), in)
	if err != nil {
		return respondError(ctx, err)
	}

	for _, w := range result.Warnings {
		ctx.Logger.Warn("Degraded metrics write", slog.Any("warning", w))
	}

	return ctx.JSON(SubmitMetricsResponse{
		SubmitResult: result,
		Warnings:     result.WarningMessages(),
	})
}

func (r SubmitMetricsRequest) input() (dashboard.SubmitInput, error) {
	t, err := entities.ParseType(r.EntityType)
	if err != nil {
		return dashboard.SubmitInput{}, err
	}

	dept, err := department.Parse(r.Department)
	if err != nil {
		return dashboard.SubmitInput{}, err
	}
	detail, err := department.Payload{Department: dept, Detail: r.Detail}.Decode()
	if err != nil {
		return dashboard.SubmitInput{}, err
	}

	return dashboard.SubmitInput{
		Entity:   entities.Ref{Type: t, ID: r.EntityID},
		Counters: r.Counters,
		Detail:   detail,
	}, nil
}
