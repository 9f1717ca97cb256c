package models

import "sort"

// Capability names an optional adapter behavior
type Capability string

// The closed set of optional capabilities an adapter may support
const (
	CapabilityMedia       Capability = "media"
	CapabilityTemplates   Capability = "templates"
	CapabilityInteractive Capability = "interactive"
	CapabilityBalance     Capability = "balance"
	CapabilityWebhooks    Capability = "webhooks"
)

// CapabilitySet is the fixed set of capabilities an adapter supports,
// discovered once at construction and never changed mid-session.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the capability is in the set
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Names returns the capability names in sorted order
func (s CapabilitySet) Names() []string {
	names := make([]string, 0, len(s))
	for c := range s {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two sets contain exactly the same capabilities
func (s CapabilitySet) Equal(other CapabilitySet) bool {
	if len(s) != len(other) {
		return false
	}
	for c := range s {
		if !other.Has(c) {
			return false
		}
	}
	return true
}

// Balance is the result of a provider balance query
type Balance struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
	Credits  *int64  `json:"credits,omitempty"`
}

// WebhookEventUnknown marks a webhook payload the adapter could not classify
const WebhookEventUnknown = "unknown"

// WebhookEvent is a provider callback payload classified by the adapter.
// Unknown shapes carry the raw payload in Data under "raw".
type WebhookEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}
