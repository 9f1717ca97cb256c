package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eduline/comms-gateway/internal/config"
	"github.com/eduline/comms-gateway/internal/db"
	"github.com/eduline/comms-gateway/internal/dispatch"
	"github.com/eduline/comms-gateway/internal/gateway"
	"github.com/eduline/comms-gateway/internal/handler"
	"github.com/eduline/comms-gateway/internal/models"
	"github.com/eduline/comms-gateway/internal/queue"
	"github.com/eduline/comms-gateway/internal/repository"
	"github.com/eduline/comms-gateway/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	logger.Info("starting gateway API server")

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

	service := dispatch.NewService(messageRepo, registry, dispatcher, queueClient, logger)
	ingestor := webhook.NewIngestor(messageRepo, registry, logger)

	messageHandler := handler.NewMessageHandler(service, logger)
	channelHandler := handler.NewChannelHandler(registry, logger)
	webhookHandler := handler.NewWebhookHandler(ingestor, logger)
	healthHandler := handler.NewHealthHandler(database.DB, queueClient, logger)

	r := chi.NewRouter()
	r.Use(handler.RecoveryMiddleware(logger))
	r.Use(handler.LoggingMiddleware(logger))

	r.Get("/health", healthHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/messages", func(r chi.Router) {
			r.Post("/send", messageHandler.Send)
			r.Post("/queue", messageHandler.Queue)
			r.Get("/", messageHandler.List)
			r.Get("/{id}/status", messageHandler.Status)
		})
		r.Route("/channels", func(r chi.Router) {
			r.Get("/", channelHandler.List)
			r.Get("/{channel}/balance", channelHandler.Balance)
			r.Get("/{channel}/test", channelHandler.TestConnection)
		})
		r.Post("/webhooks/{channel}", webhookHandler.Receive)
	})

	addr := fmt.Sprintf(":%d", cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", slog.String("addr", addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)

	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown failed", slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Info("server stopped gracefully")
	}
}
