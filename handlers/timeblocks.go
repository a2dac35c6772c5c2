// handlers/timeblocks.go
package handlers

import (
	"lvlup-backend/logger"
	"lvlup-backend/middleware"
	"lvlup-backend/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetupTimeblockRoutes exposes the planner: activity items and the visible
// hour range.
func SetupTimeblockRoutes(app *fiber.App, activityService *services.ActivityService, plannerService *services.PlannerService, log *zap.Logger) {
	log = logger.OrNop(log).Named("http.timeblocks")
	userCtx := middleware.UserContextMiddleware(log)

	blocks := app.Group("/timeblocks", userCtx)

	blocks.Post("/", func(c *fiber.Ctx) error {
		var req services.RecordActivityRequest
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		req.UserID = middleware.UserID(c)
		item, err := activityService.Record(c.UserContext(), req)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(item)
	})

	blocks.Get("/", func(c *fiber.Ctx) error {
		items, err := activityService.ListByDate(c.UserContext(), middleware.UserID(c), c.Query("date"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"timeblocks": items})
	})

	blocks.Patch("/:id", func(c *fiber.Ctx) error {
		var req struct {
			Completed bool `json:"completed"`
		}
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		item, err := activityService.SetCompleted(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Completed)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(item)
	})

	blocks.Delete("/:id", func(c *fiber.Ctx) error {
		if err := activityService.Delete(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
			return respondError(c, log, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	cfg := app.Group("/config", userCtx)

	cfg.Get("/", func(c *fiber.Ctx) error {
		planner, err := plannerService.Get(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(planner)
	})

	cfg.Put("/", func(c *fiber.Ctx) error {
		var req struct {
			StartHour int `json:"start_hour"`
			EndHour   int `json:"end_hour"`
		}
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		planner, err := plannerService.Save(c.UserContext(), middleware.UserID(c), req.StartHour, req.EndHour)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(planner)
	})
}
