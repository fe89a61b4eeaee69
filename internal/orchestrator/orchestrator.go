// Package orchestrator dispatches tool invocations: registry lookup, schema
// validation, policy gating, approval deferral, and telemetry bookkeeping.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/contextkit/orchestrator/internal/approval"
	"github.com/contextkit/orchestrator/internal/diff"
	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/observability"
	"github.com/contextkit/orchestrator/internal/pipeline"
	"github.com/contextkit/orchestrator/internal/telemetry"
	"github.com/contextkit/orchestrator/internal/tools"
	"github.com/contextkit/orchestrator/policy"
)

// handler executes one tool's effect and returns a structured result plus a
// short human summary.
type handler func(ctx context.Context, req domain.ExecuteToolRequest) (map[string]any, string, error)

// deferredEffect is an approved action's pending side effect.
type deferredEffect func(ctx context.Context) (result map[string]any, summary string, err error)

// ResolveOutcome is what resolving a pending action produced.
type ResolveOutcome struct {
	Action    *domain.PendingAction
	Result    map[string]any
	Telemetry *domain.ToolInvocationRecord
}

// Orchestrator is the central tool dispatcher. It never propagates an
// unhandled failure past its boundary: every outcome is a structured
// response plus a telemetry record.
type Orchestrator struct {
	registry  *tools.Registry
	policy    *policy.Engine
	telemetry *telemetry.Writer
	approvals *approval.Store
	runner    pipeline.Runner
	previewer diff.Previewer
	logger    *slog.Logger

	handlers map[string]handler
	cancels  *CancelRegistry

	mu      sync.Mutex
	effects map[string]deferredEffect // actionID -> deferred effect
}

// New wires the dispatcher. The dispatch table is resolved once here, keyed
// by tool id.
func New(registry *tools.Registry, engine *policy.Engine, writer *telemetry.Writer, approvals *approval.Store, runner pipeline.Runner, previewer diff.Previewer, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		policy:    engine,
		telemetry: writer,
		approvals: approvals,
		runner:    runner,
		previewer: previewer,
		logger:    logger,
		cancels:   NewCancelRegistry(),
		effects:   make(map[string]deferredEffect),
	}
	o.handlers = o.buildHandlers()
	return o
}

// ExecuteTool runs one invocation end to end. Approval-required tools return
// a pending response without executing the effect; their telemetry record
// stays pending until the action is resolved.
func (o *Orchestrator) ExecuteTool(ctx context.Context, req domain.ExecuteToolRequest) *domain.ExecuteToolResponse {
	tool, derr := o.registry.Resolve(req.ToolID, req.Provider)
	if derr != nil {
		return failResponse(derr)
	}
	if derr := o.registry.ValidateParameters(req.ToolID, req.Parameters); derr != nil {
		return failResponse(derr)
	}

	// The pending record lands before any side effect so the attempt is
	// observable even when the handler fails.
	record, err := o.telemetry.StartInvocation(ctx, telemetry.StartParams{
		SessionID:  req.SessionID,
		ToolID:     req.ToolID,
		Provider:   req.Provider,
		Parameters: req.Parameters,
	})
	if err != nil {
		return failResponse(domain.Classify(err))
	}

	decision, err := o.policy.Evaluate(ctx, map[string]any{
		"tool_id":           tool.ID,
		"capability":        string(tool.Capability),
		"requires_approval": tool.RequiresApproval,
		"provider":          req.Provider,
		"parameters":        req.Parameters,
	})
	if err != nil {
		return o.fail(ctx, record.RecordID, req, domain.WrapError(domain.ErrCodeUnknown, "policy evaluation failed", err))
	}

	switch decision {
	case policy.DecisionBlock:
		return o.fail(ctx, record.RecordID, req,
			domain.NewErrorf(domain.ErrCodeToolDisabled, "tool %q blocked by policy", tool.ID))

	case policy.DecisionRequireApproval:
		return o.deferForApproval(ctx, tool, req, record)

	default:
		callCtx, release := o.cancels.Track(ctx, record.RecordID)
		result, summary, err := o.dispatch(callCtx, tool.ID, req)
		// Snapshot before release, which cancels callCtx unconditionally.
		cancelled := callCtx.Err() == context.Canceled && ctx.Err() == nil
		release()
		if err != nil {
			derr := domain.Classify(err)
			if cancelled {
				derr = domain.NewErrorf(domain.ErrCodeState, "tool %q invocation cancelled", tool.ID)
			}
			return o.fail(ctx, record.RecordID, req, derr)
		}
		finished, err := o.telemetry.CompleteInvocation(ctx, req.SessionID, record.RecordID, telemetry.Completion{
			Status:        domain.RecordSucceeded,
			ResultSummary: summary,
			Metadata:      map[string]string{"repo_path": req.RepoPath},
		})
		if err != nil {
			return failResponse(domain.Classify(err))
		}
		return &domain.ExecuteToolResponse{
			Status:    domain.InvocationSucceeded,
			Result:    result,
			Telemetry: finished,
		}
	}
}

// deferForApproval creates the pending action and parks the effect until a decision
// arrives.
func (o *Orchestrator) deferForApproval(ctx context.Context, tool *domain.ToolDescriptor, req domain.ExecuteToolRequest, record *domain.ToolInvocationRecord) *domain.ExecuteToolResponse {
	preview := o.buildPreview(tool, req)
	action, err := o.approvals.Create(ctx, approval.CreateParams{
		SessionID:    req.SessionID,
		ToolID:       tool.ID,
		InvocationID: record.RecordID,
		DiffPreview:  preview,
		Metadata:     map[string]string{"repo_path": req.RepoPath},
	})
	if err != nil {
		return o.fail(ctx, record.RecordID, req, domain.Classify(err))
	}

	o.mu.Lock()
	o.effects[action.ActionID] = func(effectCtx context.Context) (map[string]any, string, error) {
		return o.dispatch(effectCtx, tool.ID, req)
	}
	o.mu.Unlock()

	o.logger.Info("tool execution deferred for approval",
		observability.FieldSessionID, req.SessionID,
		observability.FieldToolID, tool.ID,
		observability.FieldActionID, action.ActionID)
	return &domain.ExecuteToolResponse{
		Status:    domain.InvocationPending,
		Telemetry: record,
		Pending:   action,
	}
}

// ResolveAction applies an approve or reject decision. Approval runs the
// deferred effect; its outcome is folded into the action metadata and the
// original telemetry record.
func (o *Orchestrator) ResolveAction(ctx context.Context, actionID string, decision domain.ApprovalDecision, notes string) (*ResolveOutcome, error) {
	action, err := o.approvals.Resolve(ctx, actionID, decision, notes)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	effect, hasEffect := o.effects[actionID]
	delete(o.effects, actionID)
	o.mu.Unlock()

	outcome := &ResolveOutcome{Action: action}

	if action.State == domain.ApprovalRejected {
		outcome.Telemetry = o.completeResolved(ctx, action, domain.RecordFailed, "rejected by user", "rejected")
		return outcome, nil
	}

	if !hasEffect {
		// The process restarted since the action was created; the closure
		// holding the request is gone.
		outcome.Telemetry = o.completeResolved(ctx, action, domain.RecordFailed, "approved but effect unavailable after restart", "failed")
		return outcome, nil
	}

	result, summary, err := o.runEffect(ctx, effect)
	if err != nil {
		classified := domain.Classify(err)
		outcome.Telemetry = o.completeResolved(ctx, action, domain.RecordFailed, classified.Message, "failed")
		return outcome, nil
	}

	outcome.Result = result
	outcome.Telemetry = o.completeResolved(ctx, action, domain.RecordSucceeded, summary, "succeeded")
	return outcome, nil
}

// Cancel terminates an in-flight tool invocation by its telemetry record id.
// Returns false when no such invocation is running.
func (o *Orchestrator) Cancel(recordID string) bool {
	return o.cancels.Cancel(recordID)
}

// ExpireActions fails the telemetry records of actions the sweeper expired.
func (o *Orchestrator) ExpireActions(ctx context.Context, expired []domain.PendingAction) {
	for i := range expired {
		o.mu.Lock()
		delete(o.effects, expired[i].ActionID)
		o.mu.Unlock()
		o.completeResolved(ctx, &expired[i], domain.RecordFailed, "approval window elapsed", "expired")
	}
}

// dispatch runs the tool handler with panic recovery.
func (o *Orchestrator) dispatch(ctx context.Context, toolID string, req domain.ExecuteToolRequest) (result map[string]any, summary string, err error) {
	h, ok := o.handlers[toolID]
	if !ok {
		return nil, "", domain.NewErrorf(domain.ErrCodeToolNotFound, "no handler registered for tool %q", toolID)
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("tool handler panicked",
				observability.FieldToolID, toolID, "panic", fmt.Sprint(r))
			err = domain.NewErrorf(domain.ErrCodeUnknown, "tool %q handler panicked: %v", toolID, r)
		}
	}()
	return h(ctx, req)
}

func (o *Orchestrator) runEffect(ctx context.Context, effect deferredEffect) (result map[string]any, summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewErrorf(domain.ErrCodeUnknown, "deferred effect panicked: %v", r)
		}
	}()
	return effect(ctx)
}

// completeResolved finishes the action's telemetry record and mirrors the
// outcome into the action metadata. Best effort: a bookkeeping failure is
// logged, not propagated.
func (o *Orchestrator) completeResolved(ctx context.Context, action *domain.PendingAction, status domain.InvocationStatus, summary, outcome string) *domain.ToolInvocationRecord {
	if err := o.approvals.UpdateMetadata(ctx, action.ActionID, map[string]string{"outcome": outcome, "outcome_summary": summary}); err != nil {
		o.logger.Warn("failed to record action outcome",
			observability.FieldActionID, action.ActionID, "error", err)
	}
	record, err := o.telemetry.CompleteInvocation(ctx, action.SessionID, action.InvocationID, telemetry.Completion{
		Status:        status,
		ResultSummary: summary,
	})
	if err != nil {
		o.logger.Warn("failed to complete telemetry for resolved action",
			observability.FieldActionID, action.ActionID,
			observability.FieldRecordID, action.InvocationID, "error", err)
		return nil
	}
	return record
}

func (o *Orchestrator) fail(ctx context.Context, recordID string, req domain.ExecuteToolRequest, derr *domain.Error) *domain.ExecuteToolResponse {
	finished, err := o.telemetry.CompleteInvocation(ctx, req.SessionID, recordID, telemetry.Completion{
		Status:        domain.RecordFailed,
		ResultSummary: derr.Message,
		Metadata:      map[string]string{"repo_path": req.RepoPath, "error_code": string(derr.Code)},
	})
	if err != nil {
		o.logger.Warn("failed to complete telemetry record",
			observability.FieldRecordID, recordID, "error", err)
	}
	o.logger.Warn("tool execution failed",
		observability.FieldSessionID, req.SessionID,
		observability.FieldToolID, req.ToolID,
		observability.FieldErrorCode, string(derr.Code))
	return &domain.ExecuteToolResponse{
		Status:    domain.InvocationFailed,
		Error:     derr,
		Telemetry: finished,
	}
}

func failResponse(derr *domain.Error) *domain.ExecuteToolResponse {
	return &domain.ExecuteToolResponse{Status: domain.InvocationFailed, Error: derr}
}
