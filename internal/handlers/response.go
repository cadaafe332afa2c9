package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/services"
	"github.com/ispanel/backend/internal/store"
)

// Response is the JSON envelope every endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Warning string      `json:"warning,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respond(c *fiber.Ctx, data interface{}, warning string) error {
	return c.JSON(Response{Success: true, Data: data, Warning: warning})
}

func respondMessage(c *fiber.Ctx, message string, data interface{}, warning string) error {
	return c.JSON(Response{Success: true, Message: message, Data: data, Warning: warning})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(Response{Success: false, Message: message})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case services.IsValidation(err):
		return fiber.StatusBadRequest
	case store.IsNotFound(err):
		return fiber.StatusNotFound
	case store.IsConflict(err):
		return fiber.StatusConflict
	case errors.Is(err, mikrotik.ErrNotConfigured), mikrotik.IsUnavailable(err):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// handleError writes err in the envelope. Internal errors are logged and
// replaced with a generic message.
func handleError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	message := err.Error()
	switch {
	case status == fiber.StatusInternalServerError:
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		message = "Internal server error"
	case errors.Is(err, mikrotik.ErrNotConfigured):
		message = "Router is not configured"
	case store.IsNotFound(err):
		message = "Not found"
	}
	return fail(c, status, message)
}

// ErrorHandler is the fiber.Config ErrorHandler for errors that escape handlers.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return handleError(c, log, err)
	}
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &services.ValidationError{Field: "id", Message: "invalid id"}
	}
	return uint(id), nil
}
