package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/contextkit/orchestrator/internal/domain"
)

// RunBatchRequest submits a batch of entities for pipeline processing.
type RunBatchRequest struct {
	RepoPath string               `json:"repo_path,omitempty"`
	Entities []domain.BatchEntity `json:"entities"`
}

// RunBatch runs the four-stage pipeline over a batch and returns the full
// report.
func (h *Handler) RunBatch(c echo.Context) error {
	var req RunBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	repoPath := req.RepoPath
	if repoPath == "" {
		repoPath = h.repoPath
	}

	report, err := h.pipelines.RunBatch(c.Request().Context(), repoPath, req.Entities)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
