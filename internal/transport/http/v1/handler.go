// Package v1 provides the HTTP handlers for the orchestrator API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/contextkit/orchestrator/internal/approval"
	"github.com/contextkit/orchestrator/internal/assistant"
	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/orchestrator"
	"github.com/contextkit/orchestrator/internal/pipeline"
)

// Handler handles HTTP requests.
type Handler struct {
	assistant *assistant.Service
	tools     *orchestrator.Orchestrator
	approvals *approval.Store
	pipelines *pipeline.Orchestrator
	repoPath  string
}

// NewHandler creates a new handler. repoPath is the default context
// repository used when a request does not name one.
func NewHandler(svc *assistant.Service, tools *orchestrator.Orchestrator, approvals *approval.Store, pipelines *pipeline.Orchestrator, repoPath string) *Handler {
	return &Handler{
		assistant: svc,
		tools:     tools,
		approvals: approvals,
		pipelines: pipelines,
		repoPath:  repoPath,
	}
}

// RegisterRoutes registers external routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session API
	e.POST("/v1/assistant/sessions", h.CreateSession)
	e.GET("/v1/assistant/sessions/:session_id", h.GetSession)
	e.DELETE("/v1/assistant/sessions/:session_id", h.CloseSession)
	e.POST("/v1/assistant/sessions/:session_id/messages", h.PostMessage)
	e.POST("/v1/assistant/sessions/:session_id/cancel", h.CancelReply)
	e.GET("/v1/assistant/sessions/:session_id/telemetry", h.GetTelemetry)
	e.POST("/v1/assistant/sessions/:session_id/tools/execute", h.ExecuteTool)
	e.GET("/v1/assistant/sessions/:session_id/approvals", h.ListSessionApprovals)
	e.GET("/v1/assistant/capabilities", h.GetCapabilities)

	// Approval API
	e.GET("/v1/approvals/:action_id", h.GetApproval)
	e.POST("/v1/approvals/:action_id/decide", h.DecideApproval)

	// Pipeline API
	e.POST("/v1/pipelines/batch", h.RunBatch)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorJSON maps a classified error onto an HTTP status with a stable
// machine code in the body.
func errorJSON(c echo.Context, err error) error {
	derr := domain.Classify(err)
	status := http.StatusInternalServerError
	switch derr.Code {
	case domain.ErrCodeValidation:
		status = http.StatusBadRequest
	case domain.ErrCodeToolNotFound:
		status = http.StatusNotFound
	case domain.ErrCodeToolDisabled:
		status = http.StatusForbidden
	case domain.ErrCodeState:
		status = http.StatusConflict
	case domain.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}
	return c.JSON(status, map[string]any{
		"code":      string(derr.Code),
		"error":     derr.Message,
		"retryable": derr.Retryable(),
	})
}
