package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eduline/comms-gateway/internal/gateway"
	"github.com/eduline/comms-gateway/internal/models"
)

// handleError maps service errors to HTTP responses
func handleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var configErr *gateway.ChannelConfigError
	if errors.As(err, &configErr) {
		respondError(w, http.StatusServiceUnavailable, models.ErrKindConfig, configErr.Error())
		return
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		respondError(w, mapErrorKindToHTTPStatus(appErr.Kind), appErr.Kind, appErr.Message)
		return
	}

	switch {
	case errors.Is(err, models.ErrUnknownChannel):
		respondError(w, http.StatusNotFound, "UNKNOWN_CHANNEL", err.Error())

	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, models.ErrKindNotFound, err.Error())

	default:
		// Log internal errors but don't expose details to the client
		logger.Error("internal server error",
			slog.String("error", err.Error()),
		)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	}
}

// mapErrorKindToHTTPStatus maps failure classifications to HTTP status codes
func mapErrorKindToHTTPStatus(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindValidation:
		return http.StatusBadRequest
	case models.ErrKindNotFound:
		return http.StatusNotFound
	case models.ErrKindCapability:
		return http.StatusUnprocessableEntity
	case models.ErrKindConfig:
		return http.StatusServiceUnavailable
	case models.ErrKindProviderRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
