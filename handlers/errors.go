package handlers

import (
	"log"

	"school-game-platform/services"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// respondError maps service errors onto HTTP statuses. Anything unexpected is
// handed to the app's ErrorHandler as a 500.
func respondError(c *fiber.Ctx, err error) error {
	var verr *services.ValidationError
	var nf *services.NotFoundError

	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.As(err, &nf):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": nf.Error(),
		})
	case errors.Is(err, services.ErrForbidden):
		return forbidden(c)
	}

	log.Printf("❌ [HTTP] %s %s failed (request %v): %v", c.Method(), c.Path(), c.Locals("requestid"), err)
	return fiber.NewError(fiber.StatusInternalServerError, errors.Cause(err).Error())
}

// ErrorHandler renders errors that escape a route. In production the text of
// a 500 is replaced with a generic message.
func ErrorHandler(production bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := err.Error()

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		// Don't expose internal errors in production
		if production && code == fiber.StatusInternalServerError {
			message = "An error occurred. Please try again later."
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   message,
		})
	}
}

func forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": "you do not have access to this resource",
	})
}
