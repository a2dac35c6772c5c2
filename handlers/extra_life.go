// handlers/extra_life.go
package handlers

import (
	"lvlup-backend/logger"
	"lvlup-backend/middleware"
	"lvlup-backend/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupExtraLifeRoutes(app *fiber.App, arbiter *services.ExtraLifeArbiter, log *zap.Logger) {
	log = logger.OrNop(log).Named("http.extra_life")
	extraLife := app.Group("/extra-life", middleware.UserContextMiddleware(log))

	extraLife.Post("/use", func(c *fiber.Ctx) error {
		record, err := arbiter.Invoke(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(record)
	})

	extraLife.Get("/history", func(c *fiber.Ctx) error {
		records, err := arbiter.History(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"records": records})
	})

	extraLife.Get("/status", func(c *fiber.Ctx) error {
		status, err := arbiter.Status(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(status)
	})
}
