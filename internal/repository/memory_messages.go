package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eduline/comms-gateway/internal/models"
)

// MemoryMessageRepository is an in-memory MessageRepository with the same
// compare-and-set semantics as the Postgres implementation. Used by tests
// and local development; state transitions hold the mutex only for the
// update itself, never across adapter calls.
type MemoryMessageRepository struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*models.Message
}

// NewMemoryMessageRepository creates an empty in-memory repository
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		nextID:   1,
		messages: make(map[int64]*models.Message),
	}
}

// Create inserts a new message
func (r *MemoryMessageRepository) Create(ctx context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	message.ID = r.nextID
	r.nextID++
	message.CreatedAt = now
	message.UpdatedAt = now

	r.messages[message.ID] = copyMessage(message)
	return nil
}

// GetByID retrieves a message by ID
func (r *MemoryMessageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.messages[id]
	if !ok {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("message with ID %d not found", id))
	}
	return copyMessage(message), nil
}

// GetByProviderMessageID retrieves a message by provider-assigned id
func (r *MemoryMessageRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, message := range r.messages {
		if message.ProviderMessageID != nil && *message.ProviderMessageID == providerMessageID {
			return copyMessage(message), nil
		}
	}
	return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("message with provider ID %q not found", providerMessageID))
}

// List retrieves messages with pagination and filtering
func (r *MemoryMessageRepository) List(ctx context.Context, filter models.MessageFilter) ([]*models.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	filter.Normalize()

	matched := []*models.Message{}
	for _, message := range r.messages {
		if filter.Channel != "" && message.Channel != filter.Channel {
			continue
		}
		if filter.Status != "" && message.Status != filter.Status {
			continue
		}
		matched = append(matched, message)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	offset := filter.Offset()
	if offset >= len(matched) {
		return []*models.Message{}, total, nil
	}

	end := offset + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]*models.Message, 0, end-offset)
	for _, message := range matched[offset:end] {
		page = append(page, copyMessage(message))
	}
	return page, total, nil
}

// ClaimForSending atomically transitions queued -> sending
func (r *MemoryMessageRepository) ClaimForSending(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.messages[id]
	if !ok || message.Status != models.MessageStatusQueued {
		return false, nil
	}

	message.Status = models.MessageStatusSending
	message.UpdatedAt = time.Now().UTC()
	return true, nil
}

// MarkSent transitions sending -> sent
func (r *MemoryMessageRepository) MarkSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.messages[id]
	if !ok {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("message with ID %d not found", id))
	}
	if message.Status != models.MessageStatusSending {
		return fmt.Errorf("%w: message %d is %s, not sending", models.ErrConflict, id, message.Status)
	}

	message.Status = models.MessageStatusSent
	message.ProviderMessageID = &providerMessageID
	message.SentAt = &sentAt
	message.LastError = nil
	message.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed transitions sending -> failed (or undeliverable) and
// increments attempts.
func (r *MemoryMessageRepository) MarkFailed(ctx context.Context, id int64, errMsg string, terminal bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.messages[id]
	if !ok {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("message with ID %d not found", id))
	}
	if message.Status != models.MessageStatusSending {
		return fmt.Errorf("%w: message %d is %s, not sending", models.ErrConflict, id, message.Status)
	}

	message.Status = models.MessageStatusFailed
	if terminal {
		message.Status = models.MessageStatusUndeliverable
	}
	message.LastError = &errMsg
	message.Attempts++
	message.UpdatedAt = time.Now().UTC()
	return nil
}

// Requeue transitions failed -> queued while attempts remain
func (r *MemoryMessageRepository) Requeue(ctx context.Context, id int64, maxAttempts int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.messages[id]
	if !ok || !message.CanRetry(maxAttempts) {
		return false, nil
	}

	message.Status = models.MessageStatusQueued
	message.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ApplyReceipt applies a delivery receipt with state-machine precedence
func (r *MemoryMessageRepository) ApplyReceipt(ctx context.Context, update models.ReceiptUpdate) (bool, error) {
	newRank := models.StatusRank(update.Status)
	if newRank < 0 {
		return false, models.ErrInvalidInput(fmt.Sprintf("unknown receipt status %q", update.Status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, message := range r.messages {
		if message.ProviderMessageID == nil || *message.ProviderMessageID != update.ProviderMessageID {
			continue
		}

		if models.StatusRank(message.Status) >= newRank {
			return false, nil
		}

		message.Status = update.Status
		if message.DeliveredAt == nil && update.DeliveredAt != nil {
			message.DeliveredAt = update.DeliveredAt
		}
		if update.Error != nil {
			message.LastError = update.Error
		}
		message.UpdatedAt = time.Now().UTC()
		return true, nil
	}

	return false, nil
}

// GetDue returns queued messages eligible for dispatch
func (r *MemoryMessageRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := []*models.Message{}
	for _, message := range r.messages {
		if message.IsDue(now) {
			due = append(due, message)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*models.Message, 0, len(due))
	for _, message := range due {
		out = append(out, copyMessage(message))
	}
	return out, nil
}

// ReclaimStale requeues messages stranded in sending since before the
// given time.
func (r *MemoryMessageRepository) ReclaimStale(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reclaimed int64
	for _, message := range r.messages {
		if message.Status != models.MessageStatusSending || message.UpdatedAt.After(before) {
			continue
		}
		message.Status = models.MessageStatusQueued
		message.UpdatedAt = time.Now().UTC()
		reclaimed++
	}
	return reclaimed, nil
}

func copyMessage(m *models.Message) *models.Message {
	clone := *m
	if m.Options != nil {
		clone.Options = make(map[string]string, len(m.Options))
		for k, v := range m.Options {
			clone.Options[k] = v
		}
	}
	return &clone
}
