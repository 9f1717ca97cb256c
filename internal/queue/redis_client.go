package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduline/comms-gateway/internal/models"
)

// redisClient implements Client using a Redis list
type redisClient struct {
	client    *redis.Client
	queueName string
	logger    *slog.Logger
}

// RedisConfig holds Redis queue configuration
type RedisConfig struct {
	URL       string
	QueueName string
}

// NewRedisClient creates a new Redis dispatch queue client
func NewRedisClient(cfg RedisConfig, logger *slog.Logger) (Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to Redis",
		slog.String("addr", opts.Addr),
		slog.String("queue", cfg.QueueName),
	)

	return &redisClient{
		client:    client,
		queueName: cfg.QueueName,
		logger:    logger,
	}, nil
}

// NewRedisClientForTesting wraps an existing Redis connection. Tests pair
// this with miniredis.
func NewRedisClientForTesting(client *redis.Client, queueName string, logger *slog.Logger) Client {
	return &redisClient{
		client:    client,
		queueName: queueName,
		logger:    logger,
	}
}

// Publish enqueues a dispatch job (LPUSH for FIFO with BRPOP)
func (c *redisClient) Publish(ctx context.Context, job *models.DispatchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch job: %w", err)
	}

	if err := c.client.LPush(ctx, c.queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}

	c.logger.Debug("dispatch job published",
		slog.Int64("message_id", job.MessageID),
		slog.String("idempotency_key", job.IdempotencyKey),
	)

	return nil
}

// Consume receives dispatch jobs and processes them with the handler
func (c *redisClient) Consume(ctx context.Context, handler JobHandler, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	c.logger.Info("starting dispatch consumer",
		slog.String("queue", c.queueName),
		slog.Int("concurrency", concurrency),
	)

	// Semaphore to limit concurrent processing
	semaphore := make(chan struct{}, concurrency)

	drain := func() {
		for i := 0; i < concurrency; i++ {
			semaphore <- struct{}{}
		}
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped by context, waiting for in-flight jobs")
			drain()
			return ctx.Err()

		default:
			result, err := c.client.BRPop(ctx, time.Second, c.queueName).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if err == context.Canceled || err == context.DeadlineExceeded {
					c.logger.Info("consumer stopped by context")
					drain()
					return err
				}
				c.logger.Error("failed to pop from queue", slog.String("error", err.Error()))
				time.Sleep(time.Second)
				continue
			}

			// BRPOP returns [queueName, value]
			if len(result) < 2 {
				c.logger.Error("unexpected BRPOP result format")
				continue
			}

			var job models.DispatchJob
			if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
				c.logger.Error("failed to unmarshal dispatch job",
					slog.String("error", err.Error()),
					slog.String("data", result[1]),
				)
				continue
			}

			semaphore <- struct{}{}

			go func(job models.DispatchJob) {
				defer func() { <-semaphore }()

				if err := handler(ctx, &job); err != nil {
					// The job is already popped; retry eligibility lives in
					// the message state, not the queue.
					c.logger.Error("handler failed to process dispatch job",
						slog.Int64("message_id", job.MessageID),
						slog.String("error", err.Error()),
					)
				}
			}(job)
		}
	}
}

// Close closes the Redis connection
func (c *redisClient) Close() error {
	c.logger.Info("closing Redis connection")
	return c.client.Close()
}

// Health checks if Redis is healthy
func (c *redisClient) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis health check failed: %w", err)
	}
	return nil
}
