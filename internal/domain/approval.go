package domain

import "time"

// ApprovalState is the state of a pending action.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
	ApprovalExpired  ApprovalState = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s ApprovalState) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalExpired
}

// ApprovalDecision is a human decision on a pending action.
type ApprovalDecision string

const (
	DecisionApprove ApprovalDecision = "approve"
	DecisionReject  ApprovalDecision = "reject"
)

// PendingAction is a deferred, approval-gated tool effect. Once the state is
// terminal the action is immutable.
type PendingAction struct {
	ActionID     string            `json:"action_id"`
	SessionID    string            `json:"session_id"`
	ToolID       string            `json:"tool_id"`
	InvocationID string            `json:"invocation_id,omitempty"`
	State        ApprovalState     `json:"state"`
	DiffPreview  string            `json:"diff_preview,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	ResolvedAt   *time.Time        `json:"resolved_at,omitempty"`
}
