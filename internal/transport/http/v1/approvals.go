package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/contextkit/orchestrator/internal/domain"
)

// GetApproval returns one pending action, applying lazy expiry.
func (h *Handler) GetApproval(c echo.Context) error {
	action, err := h.approvals.Get(c.Request().Context(), c.Param("action_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	if action == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "approval not found"})
	}
	return c.JSON(http.StatusOK, action)
}

// ListSessionApprovals returns all actions for a session.
func (h *Handler) ListSessionApprovals(c echo.Context) error {
	actions, err := h.approvals.ListForSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"approvals": actions, "total": len(actions)})
}

// DecideApprovalRequest carries an approve or reject decision.
type DecideApprovalRequest struct {
	Decision domain.ApprovalDecision `json:"decision"`
	Notes    string                  `json:"notes,omitempty"`
}

// DecideApproval resolves a pending action. Approval runs the deferred
// effect; the response carries the resolved action, the effect result, and
// the finished telemetry record.
func (h *Handler) DecideApproval(c echo.Context) error {
	actionID := c.Param("action_id")
	var req DecideApprovalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	outcome, err := h.tools.ResolveAction(c.Request().Context(), actionID, req.Decision, req.Notes)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, outcome)
}
