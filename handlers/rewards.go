// handlers/rewards.go
package handlers

import (
	"lvlup-backend/logger"
	"lvlup-backend/middleware"
	"lvlup-backend/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupRewardRoutes(app *fiber.App, rewardService *services.RewardService, log *zap.Logger) {
	log = logger.OrNop(log).Named("http.rewards")
	rewards := app.Group("/rewards", middleware.UserContextMiddleware(log))

	rewards.Post("/claim", func(c *fiber.Ctx) error {
		var req struct {
			TaskID      string `json:"task_id"`
			UserAddress string `json:"user_address"`
		}
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		claim, err := rewardService.ClaimTaskReward(c.UserContext(), middleware.UserID(c), req.UserAddress, req.TaskID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(claim)
	})

	rewards.Post("/confirm", func(c *fiber.Ctx) error {
		var req struct {
			TaskID          string `json:"task_id"`
			TransactionHash string `json:"transaction_hash"`
		}
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		res, err := rewardService.ConfirmRewardTx(c.UserContext(), middleware.UserID(c), req.TaskID, req.TransactionHash)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(res)
	})

	rewards.Get("/validate/:task_id", func(c *fiber.Ctx) error {
		res, err := rewardService.ValidateEligibility(c.UserContext(), middleware.UserID(c), c.Params("task_id"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(res)
	})

	rewards.Get("/history", func(c *fiber.Ctx) error {
		claims, err := rewardService.History(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"claims": claims})
	})

	rewards.Get("/stats", func(c *fiber.Ctx) error {
		stats, err := rewardService.Stats(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(stats)
	})
}
