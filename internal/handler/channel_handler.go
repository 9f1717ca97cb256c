package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eduline/comms-gateway/internal/gateway"
	"github.com/eduline/comms-gateway/internal/models"
)

// ChannelHandler exposes channel discovery and capability passthroughs
type ChannelHandler struct {
	registry *gateway.Registry
	logger   *slog.Logger
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(registry *gateway.Registry, logger *slog.Logger) *ChannelHandler {
	return &ChannelHandler{
		registry: registry,
		logger:   logger,
	}
}

// List handles GET /channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"channels": h.registry.List()})
}

// Balance handles GET /channels/{channel}/balance. Channels without the
// balance capability get a distinct capability error, never a zero
// balance.
func (h *ChannelHandler) Balance(w http.ResponseWriter, r *http.Request) {
	channel := models.Channel(chi.URLParam(r, "channel"))

	adapter, err := h.registry.Resolve(channel)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	checker, ok := adapter.(gateway.BalanceChecker)
	if !ok {
		handleError(w, models.ErrCapability(fmt.Sprintf("channel %s does not support balance queries", channel)), h.logger)
		return
	}

	balance, err := checker.Balance(r.Context())
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, balance)
}

// TestConnection handles GET /channels/{channel}/test. Health diagnostics
// only; never part of the send path.
func (h *ChannelHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	channel := models.Channel(chi.URLParam(r, "channel"))

	adapter, err := h.registry.Resolve(channel)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	ok := adapter.TestConnection(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"channel":   channel,
		"adapter":   adapter.Name(),
		"reachable": ok,
	})
}
