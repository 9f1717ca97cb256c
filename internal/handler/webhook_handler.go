package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eduline/comms-gateway/internal/models"
	"github.com/eduline/comms-gateway/internal/webhook"
)

// maxWebhookBody bounds inbound callback payload size
const maxWebhookBody = 1 << 20

// WebhookHandler accepts provider callbacks. The payload shape is opaque
// here; the channel's adapter classifies it.
type WebhookHandler struct {
	ingestor *webhook.Ingestor
	logger   *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(ingestor *webhook.Ingestor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor: ingestor,
		logger:   logger,
	}
}

// Receive handles POST /webhooks/{channel}
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	channel := models.Channel(chi.URLParam(r, "channel"))

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, models.ErrKindValidation, "failed to read payload")
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), channel, payload)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	// Always 200 for processable requests so providers stop retrying;
	// unmatched and unknown events are reflected in the body.
	respondJSON(w, http.StatusOK, result)
}
