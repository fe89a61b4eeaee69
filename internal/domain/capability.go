package domain

import "time"

// CapabilityStatus is the availability of one tool capability.
type CapabilityStatus string

const (
	CapabilityEnabled  CapabilityStatus = "enabled"
	CapabilityDisabled CapabilityStatus = "disabled"
	CapabilityDegraded CapabilityStatus = "degraded"
)

// CapabilityEntry describes the availability of a single tool.
type CapabilityEntry struct {
	Status       CapabilityStatus `json:"status"`
	Fallback     string           `json:"fallback,omitempty"`
	RolloutNotes string           `json:"rollout_notes,omitempty"`
}

// CapabilityProfile is the capability manifest advertised to clients.
type CapabilityProfile struct {
	ProfileID    string                     `json:"profile_id"`
	LastUpdated  time.Time                  `json:"last_updated"`
	Capabilities map[string]CapabilityEntry `json:"capabilities"`
}
