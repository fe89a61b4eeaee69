package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/contextkit/orchestrator/internal/assistant"
	"github.com/contextkit/orchestrator/internal/domain"
)

// CreateSessionRequest is the payload for opening a session.
type CreateSessionRequest struct {
	UserID       string                `json:"user_id"`
	Provider     domain.ProviderConfig `json:"provider"`
	SystemPrompt string                `json:"system_prompt,omitempty"`
	APIKey       string                `json:"api_key,omitempty"`
}

// CreateSession opens a new assistant session.
func (h *Handler) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	view, err := h.assistant.CreateSession(c.Request().Context(), assistant.CreateSessionParams{
		UserID:       req.UserID,
		Provider:     req.Provider,
		SystemPrompt: req.SystemPrompt,
		APIKey:       req.APIKey,
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

// GetSession returns a session with its conversation timeline.
func (h *Handler) GetSession(c echo.Context) error {
	sessionID := c.Param("session_id")

	view, err := h.assistant.GetSession(c.Request().Context(), sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	if view == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, view)
}

// CloseSession deletes a session.
func (h *Handler) CloseSession(c echo.Context) error {
	if err := h.assistant.CloseSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// PostMessageRequest is one user message.
type PostMessageRequest struct {
	Content  string                `json:"content"`
	Intent   string                `json:"intent,omitempty"`
	Mode     string                `json:"mode,omitempty"`
	Provider domain.ProviderConfig `json:"provider,omitempty"`
	APIKey   string                `json:"api_key,omitempty"`
}

// PostMessage appends a user turn and returns the timeline including the
// assistant's reply.
func (h *Handler) PostMessage(c echo.Context) error {
	sessionID := c.Param("session_id")
	var req PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	view, err := h.assistant.SendMessage(c.Request().Context(), sessionID, assistant.SendMessageParams{
		Content:  req.Content,
		Intent:   req.Intent,
		Mode:     req.Mode,
		Provider: req.Provider,
		APIKey:   req.APIKey,
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// CancelReply terminates an in-flight provider call for the session.
func (h *Handler) CancelReply(c echo.Context) error {
	sessionID := c.Param("session_id")
	if !h.assistant.CancelReply(sessionID) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no reply in flight"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

// GetTelemetry returns the session's invocation ledger in append order.
func (h *Handler) GetTelemetry(c echo.Context) error {
	records := h.assistant.Telemetry(c.Request().Context(), c.Param("session_id"))
	return c.JSON(http.StatusOK, map[string]any{"records": records, "total": len(records)})
}

// GetCapabilities reports the tool capability profile.
func (h *Handler) GetCapabilities(c echo.Context) error {
	return c.JSON(http.StatusOK, h.assistant.Capabilities())
}
