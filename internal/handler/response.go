package handler

import (
	"encoding/json"
	"net/http"

	"github.com/eduline/comms-gateway/internal/models"
)

// ErrorResponse is the JSON envelope every failed request carries. Code is
// the failure classification, so API clients can branch on it the same way
// the dispatcher branches on error kinds internally.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the classification code and a human-readable message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondJSON writes data as a JSON response with the given status
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// respondError writes the error envelope for a classified failure
func respondError(w http.ResponseWriter, status int, code models.ErrorKind, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    string(code),
			Message: message,
		},
	})
}
