package api

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/agent-ledger-indexer/internal/errors"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	err := c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return err
}

// errorResponse maps a service error onto a problem response. Only
// not-found, bad input and ledger outages are expected; anything else is
// logged and reported without detail.
func errorResponse(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	switch {
	case perrors.Is(err, perrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", err.Error())
	case perrors.Is(err, perrors.ErrInvalidInput):
		return problemResponse(c, fiber.StatusBadRequest, "invalid_input", "Bad Request", err.Error())
	case perrors.Is(err, perrors.ErrUnavailable),
		perrors.Is(err, context.DeadlineExceeded),
		perrors.Is(err, context.Canceled):
		return problemResponse(c, fiber.StatusServiceUnavailable, "ledger_unavailable", "Service Unavailable",
			"The ledger could not be read. Please try again later.")
	}
	logger.Error().Err(err).Str("path", c.Path()).Msg("unexpected handler error")
	return problemResponse(c, fiber.StatusInternalServerError, "internal_error", "Internal Server Error",
		"An internal error occurred")
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("unhandled error")
			detail = "An internal error occurred"
		}

		return problemResponse(c, code, "http_error", http.StatusText(code), detail)
	}
}
