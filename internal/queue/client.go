package queue

import (
	"context"

	"github.com/eduline/comms-gateway/internal/models"
)

// Client defines the interface for dispatch job queue operations
type Client interface {
	// Publish enqueues a dispatch job for the worker
	Publish(ctx context.Context, job *models.DispatchJob) error

	// Consume receives dispatch jobs and processes them with the handler.
	// concurrency controls how many jobs can be processed simultaneously.
	Consume(ctx context.Context, handler JobHandler, concurrency int) error

	// Close closes the queue connection
	Close() error

	// Health checks if the queue is healthy
	Health(ctx context.Context) error
}

// JobHandler is a function that processes a dispatch job
type JobHandler func(ctx context.Context, job *models.DispatchJob) error
