package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eduline/comms-gateway/internal/models"
)

// MessageRepository defines the data access contract for the delivery
// queue. Any store with compare-and-set semantics can satisfy it; the
// dispatch loop and webhook ingestion both depend on the conditional
// transitions being atomic.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error)
	List(ctx context.Context, filter models.MessageFilter) ([]*models.Message, int64, error)

	// ClaimForSending atomically transitions queued -> sending. Exactly one
	// of N concurrent claimers wins; the rest observe false.
	ClaimForSending(ctx context.Context, id int64) (bool, error)

	// MarkSent transitions sending -> sent and records the provider id
	MarkSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error

	// MarkFailed transitions sending -> failed (or undeliverable when
	// terminal) and increments the attempt counter.
	MarkFailed(ctx context.Context, id int64, errMsg string, terminal bool) error

	// Requeue transitions failed -> queued only while attempts remain
	Requeue(ctx context.Context, id int64, maxAttempts int) (bool, error)

	// ApplyReceipt applies a normalized delivery receipt. Status only moves
	// forward in state-machine precedence and an existing delivered_at is
	// never erased, so duplicate and out-of-order receipts are no-ops.
	ApplyReceipt(ctx context.Context, update models.ReceiptUpdate) (bool, error)

	// GetDue returns queued messages whose scheduled time has passed
	GetDue(ctx context.Context, now time.Time, limit int) ([]*models.Message, error)

	// ReclaimStale returns messages stranded in sending (worker crash,
	// shutdown grace expired) to queued, for those untouched since before.
	// Returns how many were reclaimed.
	ReclaimStale(ctx context.Context, before time.Time) (int64, error)
}

// messageRepository implements MessageRepository using PostgreSQL
type messageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `id, recipient, channel, content, options, status, provider_message_id, attempts, last_error, scheduled_at, sent_at, delivered_at, created_at, updated_at`

// statusRankSQL mirrors models.StatusRank for conditional updates
const statusRankSQL = `CASE status
		WHEN 'pending' THEN 0
		WHEN 'queued' THEN 1
		WHEN 'sending' THEN 2
		WHEN 'sent' THEN 3
		WHEN 'failed' THEN 4
		WHEN 'delivered' THEN 5
		WHEN 'undeliverable' THEN 5
		ELSE -1
	END`

// Create inserts a new message into the delivery queue
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	options, err := marshalOptions(message.Options)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (recipient, channel, content, options, status, attempts, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowContext(
		ctx,
		query,
		message.Recipient,
		message.Channel,
		message.Content,
		options,
		message.Status,
		message.Attempts,
		message.ScheduledAt,
	).Scan(&message.ID, &message.CreatedAt, &message.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// GetByID retrieves a message by ID
func (r *messageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("message with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return message, nil
}

// GetByProviderMessageID retrieves a message by the id the provider assigned
func (r *messageRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE provider_message_id = $1`

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, providerMessageID))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("message with provider ID %q not found", providerMessageID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by provider ID: %w", err)
	}

	return message, nil
}

// List retrieves messages with pagination and filtering
func (r *messageRepository) List(ctx context.Context, filter models.MessageFilter) ([]*models.Message, int64, error) {
	filter.Normalize()

	query := `SELECT ` + messageColumns + ` FROM messages WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM messages WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.Channel != "" {
		query += fmt.Sprintf(" AND channel = $%d", argPos)
		countQuery += fmt.Sprintf(" AND channel = $%d", argPos)
		args = append(args, filter.Channel)
		argPos++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		countQuery += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}

	var totalCount int64
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	offset := filter.Offset()
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.PageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, totalCount, nil
}

// ClaimForSending atomically transitions queued -> sending
func (r *messageRepository) ClaimForSending(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE messages
		SET status = 'sending', updated_at = NOW()
		WHERE id = $1 AND status = 'queued'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim message for sending: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// MarkSent transitions sending -> sent and records the provider message id
func (r *messageRepository) MarkSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error {
	query := `
		UPDATE messages
		SET status = 'sent', provider_message_id = $2, sent_at = $3, last_error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'`

	result, err := r.db.ExecContext(ctx, query, id, providerMessageID, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// The caller just claimed the message, so the row exists; losing the
		// guard means something else moved it out of sending.
		return fmt.Errorf("%w: message %d not in sending state", models.ErrConflict, id)
	}

	return nil
}

// MarkFailed transitions sending -> failed (or undeliverable when terminal)
// and increments the attempt counter.
func (r *messageRepository) MarkFailed(ctx context.Context, id int64, errMsg string, terminal bool) error {
	status := models.MessageStatusFailed
	if terminal {
		status = models.MessageStatusUndeliverable
	}

	query := `
		UPDATE messages
		SET status = $2, last_error = $3, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'`

	result, err := r.db.ExecContext(ctx, query, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: message %d not in sending state", models.ErrConflict, id)
	}

	return nil
}

// Requeue transitions failed -> queued while attempts remain
func (r *messageRepository) Requeue(ctx context.Context, id int64, maxAttempts int) (bool, error) {
	query := `
		UPDATE messages
		SET status = 'queued', updated_at = NOW()
		WHERE id = $1 AND status = 'failed' AND attempts < $2`

	result, err := r.db.ExecContext(ctx, query, id, maxAttempts)
	if err != nil {
		return false, fmt.Errorf("failed to requeue message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// ApplyReceipt applies a delivery receipt. The conditional update enforces
// state-machine precedence, so a stale sent-only receipt can never
// overwrite delivered and duplicates are no-ops.
func (r *messageRepository) ApplyReceipt(ctx context.Context, update models.ReceiptUpdate) (bool, error) {
	newRank := models.StatusRank(update.Status)
	if newRank < 0 {
		return false, models.ErrInvalidInput(fmt.Sprintf("unknown receipt status %q", update.Status))
	}

	query := `
		UPDATE messages
		SET status = $2,
		    delivered_at = COALESCE(delivered_at, $3),
		    last_error = COALESCE($4, last_error),
		    updated_at = NOW()
		WHERE provider_message_id = $1 AND ` + statusRankSQL + ` < $5`

	result, err := r.db.ExecContext(ctx, query, update.ProviderMessageID, update.Status, update.DeliveredAt, update.Error, newRank)
	if err != nil {
		return false, fmt.Errorf("failed to apply receipt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// GetDue returns queued messages eligible for dispatch at the given time
func (r *messageRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE status = 'queued' AND (scheduled_at IS NULL OR scheduled_at <= $1)
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due message: %w", err)
		}
		messages = append(messages, message)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due messages: %w", err)
	}

	return messages, nil
}

// ReclaimStale requeues messages stranded in sending since before the
// given time. The age bound keeps it from racing an in-flight send.
func (r *messageRepository) ReclaimStale(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE messages
		SET status = 'queued', updated_at = NOW()
		WHERE status = 'sending' AND updated_at <= $1`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale messages: %w", err)
	}

	reclaimed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return reclaimed, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	message := &models.Message{}
	var options []byte

	err := row.Scan(
		&message.ID,
		&message.Recipient,
		&message.Channel,
		&message.Content,
		&options,
		&message.Status,
		&message.ProviderMessageID,
		&message.Attempts,
		&message.LastError,
		&message.ScheduledAt,
		&message.SentAt,
		&message.DeliveredAt,
		&message.CreatedAt,
		&message.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(options) > 0 {
		if err := json.Unmarshal(options, &message.Options); err != nil {
			return nil, fmt.Errorf("failed to decode message options: %w", err)
		}
	}

	return message, nil
}

func marshalOptions(options map[string]string) ([]byte, error) {
	if len(options) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message options: %w", err)
	}
	return data, nil
}
