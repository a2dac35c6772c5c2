// handlers/system.go
package handlers

import (
	"context"
	"time"

	"lvlup-backend/logger"
	"lvlup-backend/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

func SetupSystemRoutes(app *fiber.App, db Pinger, signerAddress string, log *zap.Logger) {
	log = logger.OrNop(log).Named("http.system")

	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			log.Warn("health check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":   "degraded",
				"database": "unreachable",
			})
		}
		return c.JSON(fiber.Map{
			"status":         "ok",
			"database":       "ok",
			"signer_address": signerAddress,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}
