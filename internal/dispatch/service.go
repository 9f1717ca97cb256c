package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eduline/comms-gateway/internal/gateway"
	"github.com/eduline/comms-gateway/internal/models"
	"github.com/eduline/comms-gateway/internal/queue"
	"github.com/eduline/comms-gateway/internal/repository"
)

// SendRequest is a caller request to send or queue a message
type SendRequest struct {
	Recipient   string            `json:"recipient"`
	Channel     models.Channel    `json:"channel"`
	Content     string            `json:"content"`
	Options     map[string]string `json:"options,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
}

// SendResponse is the outcome of a synchronous send
type SendResponse struct {
	MessageID         int64   `json:"message_id"`
	Success           bool    `json:"success"`
	Status            string  `json:"status"`
	ProviderMessageID *string `json:"provider_message_id,omitempty"`
	Error             *string `json:"error,omitempty"`
}

// StatusResponse reports the last known delivery state from the queue,
// without a live provider round-trip.
type StatusResponse struct {
	MessageID   int64      `json:"message_id"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// Service exposes the caller-facing gateway operations: synchronous send,
// deferred queue, and status lookup. Recipients are validated against the
// resolved adapter before anything is persisted, so the queue never holds
// unsendable messages.
type Service struct {
	repo       repository.MessageRepository
	registry   *gateway.Registry
	dispatcher *Dispatcher
	jobs       queue.Client
	logger     *slog.Logger
}

// NewService creates the gateway service. jobs may be nil when no queue
// transport is configured; queued messages then wait for the sweeper.
func NewService(
	repo repository.MessageRepository,
	registry *gateway.Registry,
	dispatcher *Dispatcher,
	jobs queue.Client,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		registry:   registry,
		dispatcher: dispatcher,
		jobs:       jobs,
		logger:     logger,
	}
}

// validate resolves the channel and format-checks the recipient
func (s *Service) validate(req *SendRequest) (gateway.Gateway, error) {
	if !models.IsValidChannel(req.Channel) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownChannel, req.Channel)
	}
	if req.Content == "" {
		return nil, models.ErrInvalidInput("content must not be empty")
	}

	adapter, err := s.registry.Resolve(req.Channel)
	if err != nil {
		return nil, err
	}

	if !adapter.ValidateRecipient(req.Recipient) {
		return nil, models.ErrInvalidInput(fmt.Sprintf("invalid recipient for channel %s", req.Channel))
	}

	return adapter, nil
}

// Send performs an immediate synchronous delivery. The message is
// persisted first so the attempt is visible in the delivery queue either
// way; provider failures come back as a structured response, never a
// raised fault.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if _, err := s.validate(req); err != nil {
		return nil, err
	}

	message := &models.Message{
		Recipient: req.Recipient,
		Channel:   req.Channel,
		Content:   req.Content,
		Options:   req.Options,
		Status:    models.MessageStatusQueued,
	}

	if err := s.repo.Create(ctx, message); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, message.ID); err != nil {
		return nil, err
	}

	sent, err := s.repo.GetByID(ctx, message.ID)
	if err != nil {
		return nil, err
	}

	return &SendResponse{
		MessageID:         sent.ID,
		Success:           sent.Status == models.MessageStatusSent || sent.Status == models.MessageStatusDelivered,
		Status:            sent.Status,
		ProviderMessageID: sent.ProviderMessageID,
		Error:             sent.LastError,
	}, nil
}

// Queue persists a message for later dispatch. ScheduledAt, when set,
// keeps the message ineligible until the scheduled time.
func (s *Service) Queue(ctx context.Context, req *SendRequest) (int64, error) {
	if _, err := s.validate(req); err != nil {
		return 0, err
	}

	message := &models.Message{
		Recipient:   req.Recipient,
		Channel:     req.Channel,
		Content:     req.Content,
		Options:     req.Options,
		Status:      models.MessageStatusQueued,
		ScheduledAt: req.ScheduledAt,
	}

	if err := s.repo.Create(ctx, message); err != nil {
		return 0, err
	}

	s.logger.Info("message queued",
		slog.Int64("message_id", message.ID),
		slog.String("channel", string(req.Channel)),
		slog.String("recipient", RecipientSuffix(req.Recipient)),
	)

	// Scheduled messages wait for the sweeper; immediate ones also get a
	// dispatch job so the worker picks them up without polling delay.
	if s.jobs != nil && message.IsDue(time.Now()) {
		job := &models.DispatchJob{
			MessageID:      message.ID,
			IdempotencyKey: uuid.NewString(),
		}
		if err := s.jobs.Publish(ctx, job); err != nil {
			s.logger.Error("failed to publish dispatch job",
				slog.Int64("message_id", message.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return message.ID, nil
}

// Status returns the last known delivery state of a message
func (s *Service) Status(ctx context.Context, id int64) (*StatusResponse, error) {
	message, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return &StatusResponse{
		MessageID:   message.ID,
		Status:      message.Status,
		Attempts:    message.Attempts,
		SentAt:      message.SentAt,
		DeliveredAt: message.DeliveredAt,
		Error:       message.LastError,
	}, nil
}

// List returns messages matching the filter with pagination
func (s *Service) List(ctx context.Context, filter models.MessageFilter) ([]*models.Message, models.PaginationResult, error) {
	filter.Normalize()

	messages, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, models.PaginationResult{}, err
	}
	return messages, models.NewPaginationResult(filter.Page, filter.PageSize, total), nil
}
