package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/services"
	"github.com/ispanel/backend/internal/store"
)

type SubscriberHandler struct {
	svc      *services.SubscriberService
	settings store.SettingsStore
	log      *zap.Logger
}

func NewSubscriberHandler(svc *services.SubscriberService, settings store.SettingsStore, log *zap.Logger) *SubscriberHandler {
	return &SubscriberHandler{svc: svc, settings: settings, log: log}
}

// List returns subscribers with their live online status.
// Query: search, sort_by, sort_order (asc|desc), page, limit, online (all|online|offline).
func (h *SubscriberHandler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))

	res, err := h.svc.List(c.UserContext(), services.ListQuery{
		Search:   c.Query("search"),
		SortBy:   c.Query("sort_by", "id"),
		SortDesc: c.Query("sort_order") == "desc",
		Page:     page,
		Limit:    limit,
		Online:   c.Query("online", "all"),
	})
	if err != nil {
		return handleError(c, h.log, err)
	}
	body := fiber.Map{
		"success":      true,
		"data":         res.Subscribers,
		"online_known": res.OnlineKnown,
		"meta": fiber.Map{
			"page":        res.Page,
			"limit":       res.Limit,
			"total":       res.Total,
			"total_pages": (res.Total + int64(res.Limit) - 1) / int64(res.Limit),
		},
	}
	if res.Warning != "" {
		body["warning"] = res.Warning
	}
	return c.JSON(body)
}

// Get returns one subscriber with live metrics and the NAS it connects through.
func (h *SubscriberHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return handleError(c, h.log, err)
	}
	detail, err := h.svc.Get(c.UserContext(), id)
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, fiber.Map{
		"subscriber":    detail.Subscriber,
		"metrics":       detail.Metrics,
		"connected_nas": h.nasHost(c.UserContext()),
	}, detail.Metrics.Warning)
}

func (h *SubscriberHandler) nasHost(ctx context.Context) string {
	st, err := h.settings.GetSettings(ctx)
	if err != nil {
		return ""
	}
	return st.MikrotikHost
}

func (h *SubscriberHandler) Create(c *fiber.Ctx) error {
	var req services.CreateSubscriberInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	res, err := h.svc.Create(c.UserContext(), req)
	if err != nil {
		return handleError(c, h.log, err)
	}
	c.Status(fiber.StatusCreated)
	return respondMessage(c, "Subscriber created", res.Subscriber, res.Warning)
}

func (h *SubscriberHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return handleError(c, h.log, err)
	}
	var req services.UpdateSubscriberInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	res, err := h.svc.Update(c.UserContext(), id, req)
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respondMessage(c, "Subscriber updated", res.Subscriber, res.Warning)
}

func (h *SubscriberHandler) Delete(c *fiber.Ctx) error {
	return h.transition(c, h.svc.Delete, "Subscriber deleted")
}

func (h *SubscriberHandler) Enable(c *fiber.Ctx) error {
	return h.transition(c, h.svc.Enable, "Subscriber enabled")
}

func (h *SubscriberHandler) Disable(c *fiber.Ctx) error {
	return h.transition(c, h.svc.Disable, "Subscriber disabled")
}

func (h *SubscriberHandler) Renew(c *fiber.Ctx) error {
	return h.transition(c, h.svc.Renew, "Subscriber renewed")
}

func (h *SubscriberHandler) transition(c *fiber.Ctx, op func(context.Context, uint) (*services.Result, error), message string) error {
	id, err := parseID(c)
	if err != nil {
		return handleError(c, h.log, err)
	}
	res, err := op(c.UserContext(), id)
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respondMessage(c, message, res.Subscriber, res.Warning)
}
