// Package main is the entry point for the maze rewards backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"maze-rewards/internal/api"
	"maze-rewards/internal/auth"
	"maze-rewards/internal/bot"
	"maze-rewards/internal/config"
	"maze-rewards/internal/pkg/db"
	"maze-rewards/internal/pkg/lock"
	"maze-rewards/internal/repository"
	"maze-rewards/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	configPath := "config"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Log)

	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.Database.DSN()); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Repositories
	accountRepo := repository.NewAccountRepository(dbPool)
	claimRepo := repository.NewClaimRepository(dbPool)
	levelRepo := repository.NewLevelRewardRepository(dbPool)
	txRepo := repository.NewTransactionRepository(dbPool)
	payoutRepo := repository.NewPayoutRepository(dbPool)

	// Services
	ledger := service.NewLedger(dbPool, accountRepo, claimRepo, levelRepo, txRepo, cfg.Payout)
	accountService := service.NewAccountService(ledger)
	rewardService := service.NewRewardService(ledger, accountRepo, cfg.Rewards, cfg.Consumables)
	monthlyService := service.NewMonthlyService(ledger, payoutRepo, cfg.Monthly.CloseWorkers, lock.NewKeyLock())
	adminService := service.NewAdminService(ledger, monthlyService, cfg.Online.Window)

	verifier, err := auth.NewPlatformVerifier(cfg.Platform)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create identity verifier")
	}
	adminAuth := auth.NewAdminAuth(cfg.Admin)
	if cfg.Admin.PasswordHash == "" || cfg.Admin.JWTSecret == "" {
		log.Warn().Msg("Admin login disabled: admin.password_hash or admin.jwt_secret is empty")
	}

	router := api.NewRouter(api.RouterConfig{
		Verifier:       verifier,
		Accounts:       accountService,
		Rewards:        rewardService,
		Admin:          adminService,
		AdminAuth:      adminAuth,
		Health:         dbPool,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	var console *bot.Bot
	if cfg.Bot.Token != "" {
		console, err = bot.New(cfg, adminService)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create admin console")
		}
		go console.Start()
	} else {
		log.Info().Msg("Telegram admin console disabled")
	}

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	if console != nil {
		console.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

// setupLogging applies log.level and log.format.
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
