package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lvlup-backend/blockchain"
	"lvlup-backend/config"
	"lvlup-backend/handlers"
	"lvlup-backend/logger"
	"lvlup-backend/middleware"
	"lvlup-backend/services"
	"lvlup-backend/storage"
	"lvlup-backend/utils"
	"lvlup-backend/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlog, err := logger.New(logger.Configuration{
		LogFile:   cfg.Log.File,
		ErrorFile: cfg.Log.ErrorFile,
		Level:     cfg.Log.Level,
		Console:   cfg.Log.Console,
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck
	if envErr != nil {
		zlog.Info("no .env file found, reading environment variables directly")
	}

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// Settlement traffic must never be served without the key.
	signer, err := blockchain.NewAuthority(cfg.SignerPrivateKey, clock)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	store, err := storage.OpenPostgres(cfg.DatabaseURL, zlog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	var archive services.ReceiptArchive
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Archive(ctx, utils.R2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
		}, zlog)
		if err != nil {
			return fmt.Errorf("failed to initialize R2 client: %w", err)
		}
		archive = r2
	}

	deposit, err := cfg.DefaultDeposit()
	if err != nil {
		return err
	}
	rewardPerTask, err := cfg.RewardPerTask()
	if err != nil {
		return err
	}

	payout := services.NewPayoutCalculator(store, store, clock)
	stakeService := services.NewStakeService(store, store, signer, clock, zlog)
	settlementService := services.NewSettlementService(store, payout, signer, archive, services.SettlementConfig{
		EscrowAddress:  cfg.EscrowAddress,
		ChainID:        cfg.ChainID,
		DefaultDeposit: deposit,
		SignatureTTL:   cfg.SettlementTTL,
	}, clock, zlog)
	rewardService := services.NewRewardService(store, store, signer, archive, rewardPerTask, clock, zlog)
	arbiter := services.NewExtraLifeArbiter(store, services.CryptoCoin{}, clock, zlog)
	activityService := services.NewActivityService(store, zlog)
	plannerService := services.NewPlannerService(store)

	scheduler, err := workers.NewScheduler(store, signer, clock, workers.SchedulerConfig{
		ClaimWindow:      cfg.StakeClaimWindow,
		ExpiryInterval:   cfg.StakeExpirySweepEvery,
		SelfTestInterval: cfg.SignerSelfTestEvery,
	}, zlog)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			zlog.Warn("scheduler shutdown failed", zap.Error(err))
		}
	}()

	if cfg.ActivitySync.URL != "" {
		syncWorker := workers.NewActivitySyncWorker(
			workers.NewActivitySyncClient(cfg.ActivitySync.URL, cfg.ActivitySync.Token),
			store, cfg.ActivitySync.Interval, clock, zlog,
		)
		go syncWorker.Run(ctx)
	}

	app := fiber.New(fiber.Config{
		AppName:               "lvlup-backend",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})

	app.Use(middleware.Metrics())
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, zlog))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupSystemRoutes(app, store, signer.Address(), zlog)
	handlers.SetupStakingRoutes(app, stakeService, zlog)
	handlers.SetupFinanceRoutes(app, settlementService, zlog)
	handlers.SetupRewardRoutes(app, rewardService, zlog)
	handlers.SetupExtraLifeRoutes(app, arbiter, zlog)
	handlers.SetupTimeblockRoutes(app, activityService, plannerService, zlog)

	errc := make(chan error, 1)
	go func() {
		errc <- app.Listen(fmt.Sprintf(":%d", cfg.Port))
	}()

	zlog.Info("server running",
		zap.Int("port", cfg.Port),
		zap.String("signer", signer.Address()),
		zap.Bool("escrow_configured", cfg.EscrowAddress != ""),
		zap.Bool("r2_archive", archive != nil),
		zap.Bool("activity_sync", cfg.ActivitySync.URL != ""),
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down server")
	return app.ShutdownWithTimeout(10 * time.Second)
}
