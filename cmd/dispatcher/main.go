package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eduline/comms-gateway/internal/config"
	"github.com/eduline/comms-gateway/internal/db"
	"github.com/eduline/comms-gateway/internal/dispatch"
	"github.com/eduline/comms-gateway/internal/gateway"
	"github.com/eduline/comms-gateway/internal/models"
	"github.com/eduline/comms-gateway/internal/queue"
	"github.com/eduline/comms-gateway/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	logger.Info("starting dispatch worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	database, err := db.New(db.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.Close()

	logger.Info("connected to database")

	queueClient, err := queue.NewRedisClient(queue.RedisConfig{
		URL:       cfg.Queue.RedisURL,
		QueueName: cfg.Queue.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer queueClient.Close()

	registry := gateway.BuildRegistry(cfg.Channels, logger)
	messageRepo := repository.NewMessageRepository(database.DB)

	dispatcher := dispatch.NewDispatcher(messageRepo, registry, dispatch.Options{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		SendTimeout: cfg.Dispatch.SendTimeout,
		StaleAfter:  cfg.Dispatch.StaleAfter,
		RatePerChannel: map[models.Channel]float64{
			models.ChannelSMS:      cfg.Dispatch.RatePerSecond,
			models.ChannelWhatsApp: cfg.Dispatch.RatePerSecond,
			models.ChannelViber:    cfg.Dispatch.RatePerSecond,
			models.ChannelSMPP:     cfg.Dispatch.RatePerSecond,
		},
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sweeper picks up scheduled messages and retries the consumer missed
	go func() {
		ticker := time.NewTicker(cfg.Dispatch.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := dispatcher.Sweep(ctx, cfg.Dispatch.SweepBatch); err != nil && err != context.Canceled {
					logger.Error("sweep failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	consumerErrors := make(chan error, 1)
	go func() {
		logger.Info("starting dispatch consumer",
			slog.Int("max_attempts", cfg.Dispatch.MaxAttempts),
			slog.Int("concurrency", cfg.Dispatch.Concurrency),
		)

		handler := func(ctx context.Context, job *models.DispatchJob) error {
			return dispatcher.Dispatch(ctx, job.MessageID)
		}

		consumerErrors <- queueClient.Consume(ctx, handler, cfg.Dispatch.Concurrency)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-consumerErrors:
		if err != nil && err != context.Canceled {
			logger.Error("consumer error", slog.String("error", err.Error()))
			os.Exit(1)
		}

	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))

		cancel()

		// Give in-flight sends time to finish
		time.Sleep(5 * time.Second)

		logger.Info("worker stopped gracefully")
	}
}
