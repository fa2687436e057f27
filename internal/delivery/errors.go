package delivery

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"marketlive-ws/internal/domain"
	"marketlive-ws/internal/logging"
)

// ErrorHandler renders every handler error as the standard failure
// envelope. Classified errors keep their message; anything else is logged
// and reported as a generic server error.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal server error"
	code := "internal"

	var de *domain.Error
	var fe *fiber.Error
	switch {
	case errors.As(err, &de):
		code = de.Kind.String()
		switch de.Kind {
		case domain.KindUnauthenticated:
			status, message = fiber.StatusUnauthorized, de.Message
		case domain.KindForbidden:
			status, message = fiber.StatusForbidden, de.Message
		case domain.KindValidation:
			status, message = fiber.StatusBadRequest, de.Message
		case domain.KindNotFound:
			status, message = fiber.StatusNotFound, de.Message
		}
	case errors.As(err, &fe):
		status, message, code = fe.Code, fe.Message, "http"
	}

	if status >= fiber.StatusInternalServerError {
		logging.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("Request failed")
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
		"error":   code,
	})
}

func success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}
