package middleware

import (
	"time"

	"lvlup-backend/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// Metrics records request count and latency per matched route. The method is
// copied because fiber reuses the request buffer that c.Method points into.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		metrics.RecordHTTPRequest(utils.CopyString(c.Method()), c.Route().Path, status, time.Since(start))
		return err
	}
}
