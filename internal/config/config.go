package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Queue    QueueConfig
	API      APIConfig
	Dispatch DispatchConfig
	Channels ChannelsConfig
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// QueueConfig holds dispatch queue configuration (Redis)
type QueueConfig struct {
	RedisURL  string
	QueueName string
}

// APIConfig holds API server configuration
type APIConfig struct {
	Port int
}

// DispatchConfig holds dispatcher configuration
type DispatchConfig struct {
	Concurrency   int
	MaxAttempts   int
	SendTimeout   time.Duration
	SweepInterval time.Duration
	SweepBatch    int
	RatePerSecond float64
	StaleAfter    time.Duration
}

// SMTPConfig holds email adapter credentials
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// PushConfig holds push relay adapter settings
type PushConfig struct {
	Endpoint string
	APIKey   string
}

// ChannelsConfig holds per-channel adapter settings, resolved once at
// registry construction.
type ChannelsConfig struct {
	// MockChannels lists channels served by the mock adapter, for
	// development and staging.
	MockChannels []string
	SMTP         SMTPConfig
	Push         PushConfig
}

// Load reads configuration from the environment, with an optional .env
// file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	apiPort, err := strconv.Atoi(getEnv("API_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_PORT: %w", err)
	}

	concurrency, err := strconv.Atoi(getEnv("DISPATCH_CONCURRENCY", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_CONCURRENCY: %w", err)
	}

	maxAttempts, err := strconv.Atoi(getEnv("MAX_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_ATTEMPTS: %w", err)
	}

	sendTimeout, err := strconv.Atoi(getEnv("SEND_TIMEOUT_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEND_TIMEOUT_SECONDS: %w", err)
	}

	sweepInterval, err := strconv.Atoi(getEnv("SWEEP_INTERVAL_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL_SECONDS: %w", err)
	}

	sweepBatch, err := strconv.Atoi(getEnv("SWEEP_BATCH_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_BATCH_SIZE: %w", err)
	}

	ratePerSecond, err := strconv.ParseFloat(getEnv("SEND_RATE_PER_SECOND", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SEND_RATE_PER_SECOND: %w", err)
	}

	staleAfter, err := strconv.Atoi(getEnv("STALE_AFTER_SECONDS", "300"))
	if err != nil {
		return nil, fmt.Errorf("invalid STALE_AFTER_SECONDS: %w", err)
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "comms_gateway"),
			Password: getEnv("DB_PASSWORD", "comms_gateway"),
			DBName:   getEnv("DB_NAME", "comms_gateway"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Queue: QueueConfig{
			RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379/0"),
			QueueName: getEnv("QUEUE_NAME", "message_dispatch"),
		},
		API: APIConfig{
			Port: apiPort,
		},
		Dispatch: DispatchConfig{
			Concurrency:   concurrency,
			MaxAttempts:   maxAttempts,
			SendTimeout:   time.Duration(sendTimeout) * time.Second,
			SweepInterval: time.Duration(sweepInterval) * time.Second,
			SweepBatch:    sweepBatch,
			RatePerSecond: ratePerSecond,
			StaleAfter:    time.Duration(staleAfter) * time.Second,
		},
		Channels: ChannelsConfig{
			MockChannels: splitList(getEnv("MOCK_CHANNELS", "sms,whatsapp,viber,smpp")),
			SMTP: SMTPConfig{
				Host:     os.Getenv("SMTP_HOST"),
				Port:     smtpPort,
				Username: os.Getenv("SMTP_USERNAME"),
				Password: os.Getenv("SMTP_PASSWORD"),
				From:     os.Getenv("SMTP_FROM"),
			},
			Push: PushConfig{
				Endpoint: os.Getenv("PUSH_ENDPOINT"),
				APIKey:   os.Getenv("PUSH_API_KEY"),
			},
		},
	}, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma-separated env value
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
