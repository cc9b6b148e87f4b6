package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/pkg/response"
)

// writeQueueError maps domain errors onto the HTTP envelope
func writeQueueError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		return response.Conflict(c, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return response.TooManyRequests(c, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return response.Unauthorized(c, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return response.ServiceUnavailable(c, "request timed out")
	default:
		zerolog.Ctx(c.UserContext()).Error().Err(err).Str("path", c.Path()).Msg(fallback)
		return response.InternalServerError(c, fallback)
	}
}

// paramID parses a positive numeric route parameter
func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// currentUser returns the authenticated caller's id
func currentUser(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("userID").(uint)
	return id, ok && id != 0
}
