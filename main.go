package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"siwatt-backend/internal/api"
	"siwatt-backend/internal/buffer"
	"siwatt-backend/internal/config"
	"siwatt-backend/internal/eventbus"
	"siwatt-backend/internal/mqtt"
	"siwatt-backend/internal/repository"
	"siwatt-backend/internal/worker"

	"github.com/rs/zerolog"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	// 1. Config
	cfg, err := config.Load("")
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load failed")
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	logger.Info().
		Str("commit", BuildCommit).
		Str("broker", cfg.MQTTBroker).
		Str("topic", cfg.MQTTTopicWildcard).
		Str("balance_mode", cfg.BalanceDecreaseMode).
		Msg("initializing siwatt backend")

	// 2. Dependencies
	repo, err := repository.NewRepository(cfg.DatabaseURL())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer repo.Close()

	// 2a. Auto-Migration (skip with SKIP_MIGRATION=true for API-only containers)
	if os.Getenv("SKIP_MIGRATION") == "true" {
		logger.Info().Msg("database migration skipped")
	} else {
		if err := repo.Migrate("schema.sql"); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("database migration complete")
	}

	buf, err := buffer.New(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init file buffer")
	}

	bus := eventbus.New()
	defer bus.Close()

	w := worker.New(repo, buf, bus, cfg.MQTTTopicMode, cfg.BalanceDecreaseMode, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Crash recovery: drain leftover buffers before going live.
	if err := w.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("recovery pass failed")
	}

	// 4. MQTT subscription
	sub := mqtt.NewSubscriber(mqtt.Options{
		Broker:   cfg.MQTTBroker,
		Port:     cfg.MQTTPort,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		Topic:    cfg.MQTTTopicWildcard,
	}, w.HandleMessage, logger)
	if err := sub.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("mqtt connect failed")
	}
	defer sub.Close()

	// 5. Optional offline sweep ticker; deployments usually run this
	// from cron via the API endpoint instead.
	if cfg.OfflineSweepIntervalSec > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(cfg.OfflineSweepIntervalSec) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if swept, err := repo.SweepOffline(ctx); err != nil {
						logger.Error().Err(err).Msg("offline sweep failed")
					} else if swept > 0 {
						logger.Info().Int64("swept", swept).Msg("devices marked offline")
					}
				}
			}
		}()
	}

	// 6. HTTP API
	server := api.NewServer(repo, api.Config{
		JWTSecret:        cfg.JWTSecret,
		JWTExpireMinutes: cfg.JWTExpireMinutes,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
	}, bus, logger)

	logger.Info().Int("port", cfg.APIPort).Msg("api listening")
	if err := server.Run(ctx, cfg.APIPort); err != nil {
		logger.Error().Err(err).Msg("api server stopped")
	}
}
