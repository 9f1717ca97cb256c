package gateway

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/eduline/comms-gateway/internal/models"
)

// ChannelConfigError reports that an adapter for a known channel failed to
// construct, typically from missing credentials. Distinct from an unknown
// channel so callers can tell misconfiguration from a bad channel name.
type ChannelConfigError struct {
	Channel models.Channel
	Err     error
}

func (e *ChannelConfigError) Error() string {
	return fmt.Sprintf("channel %q is not usable: %v", e.Channel, e.Err)
}

func (e *ChannelConfigError) Unwrap() error {
	return e.Err
}

// ChannelInfo describes one registered channel for discovery endpoints
type ChannelInfo struct {
	Channel      models.Channel `json:"channel"`
	Name         string         `json:"name"`
	Capabilities []string       `json:"capabilities"`
	Configured   bool           `json:"configured"`
}

// Registry maps each channel to exactly one configured adapter instance.
// Adapters are resolved from configuration once at construction; there is
// no hot-reload and no capability caching beyond the adapter's own fixed
// set.
type Registry struct {
	adapters map[models.Channel]Gateway
	failures map[models.Channel]error
	logger   *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		adapters: make(map[models.Channel]Gateway),
		failures: make(map[models.Channel]error),
		logger:   logger,
	}
}

// Register installs an adapter for its channel type. A second registration
// for the same channel replaces the first; one adapter per channel is a
// deliberate simplification, load-balancing belongs to deployment config.
func (r *Registry) Register(g Gateway) {
	r.adapters[g.Type()] = g
	delete(r.failures, g.Type())

	r.logger.Info("gateway registered",
		slog.String("channel", string(g.Type())),
		slog.String("adapter", g.Name()),
		slog.Any("capabilities", g.Capabilities().Names()),
	)
}

// RegisterFailure records that the adapter for a channel could not be
// constructed. Resolving the channel later surfaces the stored error.
func (r *Registry) RegisterFailure(channel models.Channel, err error) {
	r.failures[channel] = err

	r.logger.Error("gateway construction failed",
		slog.String("channel", string(channel)),
		slog.String("error", err.Error()),
	)
}

// Resolve returns the adapter for a channel. Unknown channels and
// construction failures produce distinguishable errors.
func (r *Registry) Resolve(channel models.Channel) (Gateway, error) {
	if g, ok := r.adapters[channel]; ok {
		return g, nil
	}
	if err, ok := r.failures[channel]; ok {
		return nil, &ChannelConfigError{Channel: channel, Err: err}
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownChannel, channel)
}

// List returns discovery info for every known channel, sorted by channel
// name for stable output.
func (r *Registry) List() []ChannelInfo {
	infos := make([]ChannelInfo, 0, len(r.adapters)+len(r.failures))
	for _, g := range r.adapters {
		infos = append(infos, ChannelInfo{
			Channel:      g.Type(),
			Name:         g.Name(),
			Capabilities: g.Capabilities().Names(),
			Configured:   true,
		})
	}
	for channel := range r.failures {
		infos = append(infos, ChannelInfo{Channel: channel, Configured: false})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Channel < infos[j].Channel
	})
	return infos
}
