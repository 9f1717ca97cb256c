package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eduline/comms-gateway/internal/dispatch"
	"github.com/eduline/comms-gateway/internal/models"
)

// MessageHandler handles message HTTP requests
type MessageHandler struct {
	service *dispatch.Service
	logger  *slog.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(service *dispatch.Service, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  logger,
	}
}

// Send handles POST /messages/send
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req dispatch.SendRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrKindValidation, "invalid JSON body")
		return
	}

	resp, err := h.service.Send(r.Context(), &req)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Queue handles POST /messages/queue
func (h *MessageHandler) Queue(w http.ResponseWriter, r *http.Request) {
	var req dispatch.SendRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrKindValidation, "invalid JSON body")
		return
	}

	id, err := h.service.Queue(r.Context(), &req)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"message_id": id})
}

// Status handles GET /messages/{id}/status
func (h *MessageHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, models.ErrKindValidation, "invalid message ID")
		return
	}

	resp, err := h.service.Status(r.Context(), id)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// ListResponse wraps a message page with pagination metadata
type ListResponse struct {
	Messages   []*models.Message       `json:"messages"`
	Pagination models.PaginationResult `json:"pagination"`
}

// List handles GET /messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))

	filter := models.MessageFilter{
		Channel:  models.Channel(query.Get("channel")),
		Status:   query.Get("status"),
		Page:     page,
		PageSize: pageSize,
	}

	messages, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, ListResponse{Messages: messages, Pagination: pagination})
}
