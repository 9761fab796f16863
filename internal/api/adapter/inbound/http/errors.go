package http_handler

import (
	"errors"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	sdklogger "github.com/anthanhphan/gosdk/logger"
	"github.com/gofiber/fiber/v2"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedType):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrAlreadyExists):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func messageFor(status int, err error) string {
	switch status {
	case fiber.StatusNotFound:
		return "File not found"
	case fiber.StatusUnsupportedMediaType:
		return "Invalid file type"
	case fiber.StatusRequestEntityTooLarge:
		return "File too large"
	default:
		return err.Error()
	}
}

func (s *Server) sendJSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// sendStoreError maps a store error onto its HTTP status and logs server-side failures.
func (s *Server) sendStoreError(c *fiber.Ctx, op string, err error, keysAndValues ...any) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		sdklogger.Errorw(op+" failed", append(keysAndValues, "error", err.Error())...)
	} else {
		sdklogger.Warnw(op+" rejected", append(keysAndValues, "status", status, "error", err.Error())...)
	}
	return s.sendJSONError(c, status, messageFor(status, err))
}
