package domain

import "time"

// InvocationStatus is the status of a tool invocation record.
type InvocationStatus string

const (
	RecordPending   InvocationStatus = "pending"
	RecordSucceeded InvocationStatus = "succeeded"
	RecordFailed    InvocationStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s InvocationStatus) Terminal() bool {
	return s == RecordSucceeded || s == RecordFailed
}

// ToolInvocationRecord is one entry in a session's telemetry ledger. A record
// starts pending and transitions exactly once to a terminal status.
type ToolInvocationRecord struct {
	RecordID      string            `json:"record_id"`
	SessionID     string            `json:"session_id"`
	ToolID        string            `json:"tool_id"`
	Provider      string            `json:"provider,omitempty"`
	Status        InvocationStatus  `json:"status"`
	Parameters    map[string]any    `json:"parameters,omitempty"`
	RequestedAt   time.Time         `json:"requested_at"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
	ResultSummary string            `json:"result_summary,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
