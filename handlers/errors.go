// handlers/errors.go
package handlers

import (
	"errors"
	"strconv"

	"lvlup-backend/apperr"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// respondError writes err with the status its kind maps to. Expected business
// outcomes are not logged as faults.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	body := fiber.Map{
		"error":   apperr.CodeOf(err),
		"message": err.Error(),
	}

	var pne *apperr.PeriodNotEndedError
	if errors.As(err, &pne) {
		body["remaining_seconds"] = int64(pne.Remaining.Seconds())
	}

	if apperr.IsExpected(err) {
		log.Debug("request rejected", zap.String("path", c.Path()), zap.String("code", apperr.CodeOf(err)))
	} else {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		if status == fiber.StatusInternalServerError {
			body["message"] = "internal error"
		}
	}
	return c.Status(status).JSON(body)
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindConflict:
		return fiber.StatusConflict
	case apperr.KindPrecondition:
		return fiber.StatusPreconditionFailed
	}
	if apperr.IsRetryable(err) {
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Newf(apperr.ErrInvalidInput, "invalid request body")
	}
	return nil
}

func periodParam(c *fiber.Ctx) (int, error) {
	id, err := strconv.Atoi(c.Params("period"))
	if err != nil {
		return 0, apperr.Newf(apperr.ErrInvalidPeriod, "period %q is not a number", c.Params("period"))
	}
	return id, nil
}
