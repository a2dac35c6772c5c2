// handlers/finance.go
package handlers

import (
	"lvlup-backend/logger"
	"lvlup-backend/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetupFinanceRoutes exposes commitment configuration and escrow settlement.
// These routes are keyed by wallet, not by gateway user.
func SetupFinanceRoutes(app *fiber.App, settlementService *services.SettlementService, log *zap.Logger) {
	log = logger.OrNop(log).Named("http.finance")
	finance := app.Group("/finance")

	finance.Put("/commitments", func(c *fiber.Ctx) error {
		var req services.ConfigureCommitmentRequest
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		cfg, err := settlementService.ConfigureCommitment(c.UserContext(), req)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(cfg)
	})

	finance.Get("/commitments/:wallet/:period", func(c *fiber.Ctx) error {
		periodID, err := periodParam(c)
		if err != nil {
			return respondError(c, log, err)
		}
		cfg, err := settlementService.GetCommitment(c.UserContext(), c.Params("wallet"), periodID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(cfg)
	})

	finance.Get("/payout/:wallet/:period", func(c *fiber.Ctx) error {
		periodID, err := periodParam(c)
		if err != nil {
			return respondError(c, log, err)
		}
		breakdown, err := settlementService.PreviewPayout(c.UserContext(), c.Params("wallet"), periodID, c.Query("deposit"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(breakdown)
	})

	finance.Post("/settlement/sign", func(c *fiber.Ctx) error {
		var req struct {
			WalletAddress string `json:"wallet_address"`
			PeriodID      int    `json:"period_id"`
			DepositAmount string `json:"deposit_amount"`
			ChainID       int64  `json:"chain_id"`
		}
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		auth, err := settlementService.SignSettlement(c.UserContext(), req.WalletAddress, req.PeriodID, req.DepositAmount, req.ChainID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(auth)
	})

	finance.Post("/settlement/confirm", func(c *fiber.Ctx) error {
		var req struct {
			WalletAddress string `json:"wallet_address"`
			PeriodID      int    `json:"period_id"`
			TxHash        string `json:"tx_hash"`
		}
		if err := parseBody(c, &req); err != nil {
			return respondError(c, log, err)
		}
		res, err := settlementService.ConfirmSettlement(c.UserContext(), req.WalletAddress, req.PeriodID, req.TxHash)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(res)
	})
}
