// handlers/staking.go
package handlers

import (
	"lvlup-backend/logger"
	"lvlup-backend/middleware"
	"lvlup-backend/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupStakingRoutes(app *fiber.App, stakeService *services.StakeService, log *zap.Logger) {
	log = logger.OrNop(log).Named("http.staking")
	staking := app.Group("/staking", middleware.UserContextMiddleware(log))

	staking.Post("/stake", func(c *fiber.Ctx) error {
		var req services.CreateStakeRequest
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		req.UserID = middleware.UserID(c)

		session, err := stakeService.CreateStake(c.UserContext(), req)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	staking.Get("/active", func(c *fiber.Ctx) error {
		session, err := stakeService.GetActive(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"active": session})
	})

	staking.Post("/report-habit", func(c *fiber.Ctx) error {
		var req struct {
			TaskID string `json:"task_id"`
		}
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		outcome, err := stakeService.ReportHabit(c.UserContext(), middleware.UserID(c), req.TaskID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(outcome)
	})

	staking.Post("/claim", func(c *fiber.Ctx) error {
		claim, err := stakeService.GenerateClaim(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(claim)
	})

	staking.Post("/confirm-claim", func(c *fiber.Ctx) error {
		var req struct {
			ClaimTxHash string `json:"claim_tx_hash"`
		}
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		res, err := stakeService.ConfirmClaim(c.UserContext(), middleware.UserID(c), req.ClaimTxHash)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(res)
	})

	staking.Get("/history", func(c *fiber.Ctx) error {
		sessions, err := stakeService.GetHistory(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"sessions": sessions})
	})

	staking.Get("/stats", func(c *fiber.Ctx) error {
		stats, err := stakeService.GetStats(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(stats)
	})
}
