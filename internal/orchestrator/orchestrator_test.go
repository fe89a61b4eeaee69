package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextkit/orchestrator/internal/approval"
	"github.com/contextkit/orchestrator/internal/diff"
	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/observability"
	"github.com/contextkit/orchestrator/internal/pipeline"
	"github.com/contextkit/orchestrator/internal/store"
	"github.com/contextkit/orchestrator/internal/telemetry"
	"github.com/contextkit/orchestrator/internal/tools"
	"github.com/contextkit/orchestrator/policy"
	"github.com/contextkit/orchestrator/tests/helpers"
)

type stubRunner struct {
	calls  int
	result *pipeline.RunResult
	err    error
	wait   chan struct{}
}

func (s *stubRunner) Run(ctx context.Context, _ pipeline.RunRequest) (*pipeline.RunResult, error) {
	s.calls++
	if s.wait != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.wait:
		}
	}
	return s.result, s.err
}

type testEnv struct {
	orchestrator *Orchestrator
	telemetry    *telemetry.Writer
	approvals    *approval.Store
	runner       *stubRunner
	db           *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := observability.NewLogger("error", false)
	db := helpers.NewTestSQLiteStore(t)

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)
	registry, err := tools.NewRegistry(tools.Builtin())
	require.NoError(t, err)

	writer := telemetry.NewWriter(db, logger)
	approvals := approval.NewStore(db, logger, time.Minute)
	runner := &stubRunner{result: &pipeline.RunResult{Status: domain.StageSucceeded, DurationMs: 12}}

	return &testEnv{
		orchestrator: New(registry, engine, writer, approvals, runner, diff.UnifiedPreviewer{}, logger),
		telemetry:    writer,
		approvals:    approvals,
		runner:       runner,
		db:           db,
	}
}

func TestExecuteToolUnknownTool(t *testing.T) {
	env := newTestEnv(t)

	resp := env.orchestrator.ExecuteTool(context.Background(), domain.ExecuteToolRequest{
		SessionID: "s1",
		ToolID:    "nope.missing",
	})
	assert.Equal(t, domain.InvocationFailed, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.ErrCodeToolNotFound, resp.Error.Code)
	// Nothing was started, so nothing was recorded.
	assert.Empty(t, env.telemetry.GetRecordsForSession(context.Background(), "s1"))
}

func TestExecuteToolInvalidParameters(t *testing.T) {
	env := newTestEnv(t)

	resp := env.orchestrator.ExecuteTool(context.Background(), domain.ExecuteToolRequest{
		SessionID:  "s1",
		ToolID:     "context.read",
		Parameters: map[string]any{"entity_type": "feature"}, // entity_id missing
	})
	assert.Equal(t, domain.InvocationFailed, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.ErrCodeValidation, resp.Error.Code)
}

func TestExecuteToolReadSucceeds(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	repo := t.TempDir()
	dir := filepath.Join(repo, "contexts", "feature")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "FEAT-1.yaml"), []byte("id: FEAT-1\ntitle: Login\n"), 0644))

	resp := env.orchestrator.ExecuteTool(ctx, domain.ExecuteToolRequest{
		SessionID:  "s1",
		Provider:   domain.ProviderOllama,
		ToolID:     "context.read",
		RepoPath:   repo,
		Parameters: map[string]any{"entity_type": "feature", "entity_id": "FEAT-1"},
	})
	assert.Equal(t, domain.InvocationSucceeded, resp.Status)
	require.NotNil(t, resp.Telemetry)
	assert.Equal(t, domain.RecordSucceeded, resp.Telemetry.Status)
	assert.Equal(t, repo, resp.Telemetry.Metadata["repo_path"])
	data, ok := resp.Result["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Login", data["title"])
}

func TestExecuteToolPipelineRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	resp := env.orchestrator.ExecuteTool(ctx, domain.ExecuteToolRequest{
		SessionID:  "s1",
		ToolID:     "pipeline.run",
		RepoPath:   t.TempDir(),
		Parameters: map[string]any{"pipeline": "validate", "args": map[string]any{"force": true}},
	})
	assert.Equal(t, domain.InvocationSucceeded, resp.Status)
	assert.Equal(t, "succeeded", resp.Result["status"])
	assert.Equal(t, 1, env.runner.calls)

	// Exactly one record, completed exactly once.
	records := env.telemetry.GetRecordsForSession(ctx, "s1")
	require.Len(t, records, 1)
	assert.Equal(t, domain.RecordSucceeded, records[0].Status)
	require.NotNil(t, records[0].FinishedAt)
}

func TestExecuteToolWriteRequiresApproval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	repo := t.TempDir()

	resp := env.orchestrator.ExecuteTool(ctx, domain.ExecuteToolRequest{
		SessionID: "s1",
		ToolID:    "context.write",
		RepoPath:  repo,
		Parameters: map[string]any{
			"entity_type": "feature",
			"entity_id":   "FEAT-9",
			"content":     "id: FEAT-9\ntitle: New feature\n",
		},
	})
	assert.Equal(t, domain.InvocationPending, resp.Status)
	require.NotNil(t, resp.Pending)
	assert.Equal(t, domain.ApprovalPending, resp.Pending.State)
	assert.NotEmpty(t, resp.Pending.DiffPreview)

	// No effect yet.
	_, err := os.Stat(filepath.Join(repo, "contexts", "feature", "FEAT-9.yaml"))
	assert.True(t, os.IsNotExist(err))

	// The telemetry record stays pending until resolution.
	records := env.telemetry.GetRecordsForSession(ctx, "s1")
	require.Len(t, records, 1)
	assert.Equal(t, domain.RecordPending, records[0].Status)
}

func TestResolveActionApproveRunsEffect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	repo := t.TempDir()

	resp := env.orchestrator.ExecuteTool(ctx, domain.ExecuteToolRequest{
		SessionID: "s1",
		ToolID:    "context.write",
		RepoPath:  repo,
		Parameters: map[string]any{
			"entity_type": "feature",
			"entity_id":   "FEAT-9",
			"content":     "id: FEAT-9\ntitle: New feature\n",
		},
	})
	require.Equal(t, domain.InvocationPending, resp.Status)

	outcome, err := env.orchestrator.ResolveAction(ctx, resp.Pending.ActionID, domain.DecisionApprove, "ship it")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, outcome.Action.State)
	require.NotNil(t, outcome.Telemetry)
	assert.Equal(t, domain.RecordSucceeded, outcome.Telemetry.Status)

	written, err := os.ReadFile(filepath.Join(repo, "contexts", "feature", "FEAT-9.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "New feature")

	// The outcome is folded into the stored action metadata.
	action, err := env.approvals.Get(ctx, resp.Pending.ActionID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", action.Metadata["outcome"])
}

func TestResolveActionRejectSkipsEffect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	repo := t.TempDir()

	resp := env.orchestrator.ExecuteTool(ctx, domain.ExecuteToolRequest{
		SessionID: "s1",
		ToolID:    "context.write",
		RepoPath:  repo,
		Parameters: map[string]any{
			"entity_type": "feature",
			"entity_id":   "FEAT-9",
			"content":     "id: FEAT-9\n",
		},
	})
	require.Equal(t, domain.InvocationPending, resp.Status)

	outcome, err := env.orchestrator.ResolveAction(ctx, resp.Pending.ActionID, domain.DecisionReject, "not now")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalRejected, outcome.Action.State)
	assert.Equal(t, domain.RecordFailed, outcome.Telemetry.Status)

	_, err = os.Stat(filepath.Join(repo, "contexts", "feature", "FEAT-9.yaml"))
	assert.True(t, os.IsNotExist(err))

	// Re-deciding a terminal action is a state error.
	_, err = env.orchestrator.ResolveAction(ctx, resp.Pending.ActionID, domain.DecisionApprove, "")
	require.Error(t, err)
	derr := domain.Classify(err)
	assert.Equal(t, domain.ErrCodeState, derr.Code)
}

func TestExecuteToolHandlerFailureKeepsClassification(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	resp := env.orchestrator.ExecuteTool(ctx, domain.ExecuteToolRequest{
		SessionID:  "s1",
		Provider:   domain.ProviderOllama,
		ToolID:     "context.read",
		RepoPath:   t.TempDir(),
		Parameters: map[string]any{"entity_type": "feature", "entity_id": "FEAT-404"},
	})
	assert.Equal(t, domain.InvocationFailed, resp.Status)
	require.NotNil(t, resp.Error)
	// The handler's own failure surfaces, never a fabricated cancellation.
	assert.Equal(t, domain.ErrCodeUnknown, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "entity not found")
	assert.NotContains(t, resp.Error.Message, "cancelled")

	records := env.telemetry.GetRecordsForSession(ctx, "s1")
	require.Len(t, records, 1)
	assert.Equal(t, domain.RecordFailed, records[0].Status)
	assert.Equal(t, string(domain.ErrCodeUnknown), records[0].Metadata["error_code"])
}

func TestResolveActionAfterRestartFailsRecord(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	repo := t.TempDir()

	resp := env.orchestrator.ExecuteTool(ctx, domain.ExecuteToolRequest{
		SessionID: "s1",
		ToolID:    "context.write",
		RepoPath:  repo,
		Parameters: map[string]any{
			"entity_type": "feature",
			"entity_id":   "FEAT-9",
			"content":     "id: FEAT-9\n",
		},
	})
	require.Equal(t, domain.InvocationPending, resp.Status)

	// A new process over the same storage: the deferred effect closure is
	// gone but the approval and the pending record are durable.
	logger := observability.NewLogger("error", false)
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)
	registry, err := tools.NewRegistry(tools.Builtin())
	require.NoError(t, err)
	restarted := New(registry, engine, telemetry.NewWriter(env.db, logger),
		approval.NewStore(env.db, logger, time.Minute), env.runner, diff.UnifiedPreviewer{}, logger)

	outcome, err := restarted.ResolveAction(ctx, resp.Pending.ActionID, domain.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, outcome.Action.State)
	require.NotNil(t, outcome.Telemetry)
	assert.Equal(t, domain.RecordFailed, outcome.Telemetry.Status)
	assert.Contains(t, outcome.Telemetry.ResultSummary, "effect unavailable after restart")

	// The staged write never ran.
	_, err = os.Stat(filepath.Join(repo, "contexts", "feature", "FEAT-9.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestCancelInFlightInvocation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.runner.wait = make(chan struct{}) // never closed; only cancellation unblocks
	repo := t.TempDir()

	done := make(chan *domain.ExecuteToolResponse, 1)
	go func() {
		done <- env.orchestrator.ExecuteTool(ctx, domain.ExecuteToolRequest{
			SessionID:  "s1",
			ToolID:     "pipeline.run",
			RepoPath:   repo,
			Parameters: map[string]any{"pipeline": "generate"},
		})
	}()

	// The pending record lands before the handler runs, so its id is
	// observable while the call is in flight.
	var recordID string
	require.Eventually(t, func() bool {
		records := env.telemetry.GetRecordsForSession(ctx, "s1")
		if len(records) != 1 {
			return false
		}
		recordID = records[0].RecordID
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, env.orchestrator.Cancel(recordID))
	resp := <-done
	assert.Equal(t, domain.InvocationFailed, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.ErrCodeState, resp.Error.Code)

	records := env.telemetry.GetRecordsForSession(ctx, "s1")
	require.Len(t, records, 1)
	assert.Equal(t, domain.RecordFailed, records[0].Status)

	// Nothing left to cancel.
	assert.False(t, env.orchestrator.Cancel(recordID))
}

func TestExpireActionsFailsTelemetry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	resp := env.orchestrator.ExecuteTool(ctx, domain.ExecuteToolRequest{
		SessionID: "s1",
		ToolID:    "repo.commit",
		RepoPath:  t.TempDir(),
		Parameters: map[string]any{
			"message": "add FEAT-9",
		},
	})
	require.Equal(t, domain.InvocationPending, resp.Status)

	expired := *resp.Pending
	expired.State = domain.ApprovalExpired
	env.orchestrator.ExpireActions(ctx, []domain.PendingAction{expired})

	records := env.telemetry.GetRecordsForSession(ctx, "s1")
	require.Len(t, records, 1)
	assert.Equal(t, domain.RecordFailed, records[0].Status)
	assert.Contains(t, records[0].ResultSummary, "approval window elapsed")
}
