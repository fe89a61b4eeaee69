package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/contextkit/orchestrator/internal/domain"
)

// ExecuteToolRequest is the payload for a tool invocation.
type ExecuteToolRequest struct {
	ToolID     string         `json:"tool_id"`
	Provider   string         `json:"provider"`
	RepoPath   string         `json:"repo_path,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ExecuteTool handles tool invocation for a session. Failures are returned
// as a structured response body, not a transport error; only a bad payload
// is a 4xx here.
func (h *Handler) ExecuteTool(c echo.Context) error {
	sessionID := c.Param("session_id")
	var req ExecuteToolRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ToolID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "tool_id is required"})
	}

	repoPath := req.RepoPath
	if repoPath == "" {
		repoPath = h.repoPath
	}

	resp := h.tools.ExecuteTool(c.Request().Context(), domain.ExecuteToolRequest{
		SessionID:  sessionID,
		Provider:   req.Provider,
		ToolID:     req.ToolID,
		RepoPath:   repoPath,
		Parameters: req.Parameters,
	})

	status := http.StatusOK
	if resp.Status == domain.InvocationPending {
		status = http.StatusAccepted
	}
	return c.JSON(status, resp)
}
