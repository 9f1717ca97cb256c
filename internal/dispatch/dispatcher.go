package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/eduline/comms-gateway/internal/gateway"
	"github.com/eduline/comms-gateway/internal/models"
	"github.com/eduline/comms-gateway/internal/repository"
)

// Options configures a dispatch run. MaxAttempts and the send timeout are
// caller-supplied, not fixed by the core.
type Options struct {
	// MaxAttempts bounds how many sending passes a message may consume
	MaxAttempts int

	// SendTimeout bounds each adapter call
	SendTimeout time.Duration

	// RatePerChannel throttles sends per channel in requests/sec.
	// Channels without an entry are not throttled.
	RatePerChannel map[models.Channel]float64

	// StaleAfter is how long a message may sit in sending before the
	// sweeper assumes its worker died and returns it to queued. Must
	// comfortably exceed SendTimeout.
	StaleAfter time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 3
	}
	if out.SendTimeout <= 0 {
		out.SendTimeout = 30 * time.Second
	}
	if out.StaleAfter == 0 {
		out.StaleAfter = 5 * time.Minute
	}
	return out
}

// Dispatcher drains the delivery queue. Claiming a message is an atomic
// compare-and-set on its state; only the winning claimer calls the
// adapter, and no repository lock is held while adapter I/O is in flight.
type Dispatcher struct {
	repo     repository.MessageRepository
	registry *gateway.Registry
	opts     Options
	limiters map[models.Channel]*rate.Limiter
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with per-channel throttles
func NewDispatcher(repo repository.MessageRepository, registry *gateway.Registry, opts Options, logger *slog.Logger) *Dispatcher {
	opts = opts.withDefaults()

	limiters := make(map[models.Channel]*rate.Limiter, len(opts.RatePerChannel))
	for channel, rps := range opts.RatePerChannel {
		if rps > 0 {
			limiters[channel] = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}

	return &Dispatcher{
		repo:     repo,
		registry: registry,
		opts:     opts,
		limiters: limiters,
		logger:   logger,
	}
}

// Dispatch attempts one sending pass for the message. Messages not in
// queued state, or scheduled for the future, are left untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, id int64) error {
	message, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch message: %w", err)
	}

	if !message.IsDue(time.Now()) {
		d.logger.Debug("message not due for dispatch",
			slog.Int64("message_id", message.ID),
			slog.String("status", message.Status),
		)
		return nil
	}

	adapter, err := d.registry.Resolve(message.Channel)
	if err != nil {
		// Resolution failures are configuration problems; the message stays
		// queued so a fixed deployment can pick it up.
		d.logger.Error("failed to resolve channel",
			slog.Int64("message_id", message.ID),
			slog.String("channel", string(message.Channel)),
			slog.String("error", err.Error()),
		)
		return err
	}

	claimed, err := d.repo.ClaimForSending(ctx, message.ID)
	if err != nil {
		return fmt.Errorf("failed to claim message: %w", err)
	}
	if !claimed {
		// Another worker won the transition
		d.logger.Debug("message already claimed",
			slog.Int64("message_id", message.ID),
		)
		return nil
	}

	return d.sendClaimed(ctx, message, adapter)
}

// sendClaimed runs the throttled, timeout-bounded adapter call for a
// message already in sending state and records the outcome.
func (d *Dispatcher) sendClaimed(ctx context.Context, message *models.Message, adapter gateway.Gateway) error {
	if limiter, ok := d.limiters[message.Channel]; ok {
		if err := limiter.Wait(ctx); err != nil {
			recordErr := d.recordFailure(ctx, message, models.ErrTransport("dispatch canceled while throttled", err))
			if recordErr != nil {
				return recordErr
			}
			return err
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	result := adapter.Send(sendCtx, message.Recipient, message.Content, gateway.SendOptions(message.Options))
	cancel()

	if sendCtx.Err() == context.DeadlineExceeded && !result.Success {
		result.Err = models.ErrTransport(
			fmt.Sprintf("send timed out after %s", d.opts.SendTimeout),
			context.DeadlineExceeded,
		)
	}

	if !result.Success {
		d.logger.Warn("send attempt failed",
			slog.Int64("message_id", message.ID),
			slog.String("channel", string(message.Channel)),
			slog.String("recipient", RecipientSuffix(message.Recipient)),
			slog.Int("attempts", message.Attempts+1),
			slog.String("error", errString(result.Err)),
		)
		return d.recordFailure(ctx, message, result.Err)
	}

	sentAt := time.Now().UTC()
	if err := d.repo.MarkSent(ctx, message.ID, result.MessageID, sentAt); err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}

	d.logger.Info("message sent",
		slog.Int64("message_id", message.ID),
		slog.String("channel", string(message.Channel)),
		slog.String("recipient", RecipientSuffix(message.Recipient)),
		slog.String("provider_message_id", result.MessageID),
	)

	return nil
}

// recordFailure classifies a send failure, increments attempts, and
// requeues when the failure is retryable and attempts remain.
func (d *Dispatcher) recordFailure(ctx context.Context, message *models.Message, sendErr error) error {
	kind := models.KindOf(sendErr)
	terminal := kind == models.ErrKindProviderRejected

	if err := d.repo.MarkFailed(ctx, message.ID, errString(sendErr), terminal); err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}

	attempts := message.Attempts + 1

	if terminal {
		d.logger.Error("message undeliverable",
			slog.Int64("message_id", message.ID),
			slog.String("error", errString(sendErr)),
		)
		return nil
	}

	if !kind.IsRetryable() || attempts >= d.opts.MaxAttempts {
		d.logger.Error("message permanently failed",
			slog.Int64("message_id", message.ID),
			slog.Int("attempts", attempts),
			slog.Int("max_attempts", d.opts.MaxAttempts),
		)
		return nil
	}

	requeued, err := d.repo.Requeue(ctx, message.ID, d.opts.MaxAttempts)
	if err != nil {
		return fmt.Errorf("failed to requeue message: %w", err)
	}

	if requeued {
		d.logger.Info("message requeued for retry",
			slog.Int64("message_id", message.ID),
			slog.Int("attempts", attempts),
			slog.Int("max_attempts", d.opts.MaxAttempts),
		)
	}

	return nil
}

// Sweep dispatches every queued message whose scheduled time has passed.
// It first returns messages stranded in sending by a dead worker to the
// queue. Safe to run concurrently with the queue consumer: the claim
// decides.
func (d *Dispatcher) Sweep(ctx context.Context, batchSize int) error {
	reclaimed, err := d.repo.ReclaimStale(ctx, time.Now().Add(-d.opts.StaleAfter))
	if err != nil {
		return fmt.Errorf("failed to reclaim stale messages: %w", err)
	}
	if reclaimed > 0 {
		d.logger.Warn("reclaimed messages stranded in sending",
			slog.Int64("count", reclaimed),
			slog.Duration("stale_after", d.opts.StaleAfter),
		)
	}

	due, err := d.repo.GetDue(ctx, time.Now(), batchSize)
	if err != nil {
		return fmt.Errorf("failed to load due messages: %w", err)
	}

	for _, message := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.Dispatch(ctx, message.ID); err != nil {
			d.logger.Error("sweep dispatch failed",
				slog.Int64("message_id", message.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// RecipientSuffix returns the last 4 characters of a recipient for
// logging. Full identifiers never reach the log sink.
func RecipientSuffix(recipient string) string {
	const keep = 4
	if len(recipient) <= keep {
		return "***"
	}
	return "***" + recipient[len(recipient)-keep:]
}

func errString(err error) string {
	if err == nil {
		return "send failed"
	}
	return err.Error()
}
