package domain

import "encoding/json"

// CapabilityKind categorizes what a tool is allowed to do.
type CapabilityKind string

const (
	CapabilityRead    CapabilityKind = "read"
	CapabilitySearch  CapabilityKind = "search"
	CapabilityExecute CapabilityKind = "execute"
	CapabilityWrite   CapabilityKind = "write"
)

// ToolDescriptor describes a registered tool. Descriptors are loaded at
// configuration time and immutable per session.
type ToolDescriptor struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Capability       CapabilityKind  `json:"capability"`
	RequiresApproval bool            `json:"requires_approval"`
	AllowedProviders []string        `json:"allowed_providers,omitempty"` // empty means all
	InputSchema      json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema     json.RawMessage `json:"output_schema,omitempty"`
}

// AllowsProvider reports whether the descriptor is callable for a provider.
func (d *ToolDescriptor) AllowsProvider(provider string) bool {
	if len(d.AllowedProviders) == 0 {
		return true
	}
	for _, p := range d.AllowedProviders {
		if p == provider {
			return true
		}
	}
	return false
}

// ExecuteToolRequest is the input to a tool invocation.
type ExecuteToolRequest struct {
	SessionID  string         `json:"session_id"`
	Provider   string         `json:"provider"`
	ToolID     string         `json:"tool_id"`
	RepoPath   string         `json:"repo_path"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Invocation status values on an ExecuteToolResponse.
const (
	InvocationSucceeded = "succeeded"
	InvocationFailed    = "failed"
	InvocationPending   = "pending"
)

// ExecuteToolResponse is the outcome of a tool invocation. Status is
// "succeeded" or "failed" for immediately executed tools and "pending" when
// the effect is deferred behind an approval.
type ExecuteToolResponse struct {
	Status    string                `json:"status"`
	Result    map[string]any        `json:"result,omitempty"`
	Error     *Error                `json:"error,omitempty"`
	Telemetry *ToolInvocationRecord `json:"telemetry,omitempty"`
	Pending   *PendingAction        `json:"pending,omitempty"`
}
