// Package approval manages the lifecycle of gated tool actions awaiting a
// human decision.
package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/observability"
	"github.com/contextkit/orchestrator/internal/store"
)

// DefaultTTL is how long a pending action stays decidable.
const DefaultTTL = 15 * time.Minute

const sweepBatchSize = 100

// CreateParams describes the action being deferred for approval.
type CreateParams struct {
	SessionID    string
	ToolID       string
	InvocationID string
	DiffPreview  string
	Metadata     map[string]string
}

// Store persists pending actions and enforces their state machine:
// pending -> approved | rejected | expired, each transition exactly once.
type Store struct {
	store  store.Store
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates an approval store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(st store.Store, logger *slog.Logger, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{store: st, logger: logger, ttl: ttl, now: time.Now}
}

// Create registers a new pending action with an expiry deadline.
func (s *Store) Create(ctx context.Context, params CreateParams) (*domain.PendingAction, error) {
	now := s.now().UTC()
	action := domain.PendingAction{
		ActionID:     "act-" + shortuuid.New(),
		SessionID:    params.SessionID,
		ToolID:       params.ToolID,
		InvocationID: params.InvocationID,
		State:        domain.ApprovalPending,
		DiffPreview:  params.DiffPreview,
		Metadata:     params.Metadata,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.store.CreatePendingAction(ctx, &action); err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to persist pending action", err)
	}
	return &action, nil
}

// Get returns the action, expiring it lazily when its deadline has passed.
// Returns nil when no such action exists.
func (s *Store) Get(ctx context.Context, actionID string) (*domain.PendingAction, error) {
	action, err := s.store.GetPendingAction(ctx, actionID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to load pending action", err)
	}
	if action == nil {
		return nil, nil
	}
	if action.State == domain.ApprovalPending && s.now().UTC().After(action.ExpiresAt) {
		return s.expire(ctx, action)
	}
	return action, nil
}

// ListForSession returns the session's actions, applying lazy expiry to any
// pending action whose deadline has passed.
func (s *Store) ListForSession(ctx context.Context, sessionID string) ([]domain.PendingAction, error) {
	actions, err := s.store.ListPendingActions(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to list pending actions", err)
	}
	now := s.now().UTC()
	for i := range actions {
		if actions[i].State == domain.ApprovalPending && now.After(actions[i].ExpiresAt) {
			expired, err := s.expire(ctx, &actions[i])
			if err != nil {
				return nil, err
			}
			actions[i] = *expired
		}
	}
	return actions, nil
}

// Resolve applies an approve or reject decision. A terminal action cannot be
// re-decided: the stored state is left unchanged and a state error is
// returned.
func (s *Store) Resolve(ctx context.Context, actionID string, decision domain.ApprovalDecision, notes string) (*domain.PendingAction, error) {
	var target domain.ApprovalState
	switch decision {
	case domain.DecisionApprove:
		target = domain.ApprovalApproved
	case domain.DecisionReject:
		target = domain.ApprovalRejected
	default:
		return nil, domain.NewErrorf(domain.ErrCodeValidation, "unknown approval decision %q", decision)
	}

	action, err := s.Get(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return nil, domain.NewErrorf(domain.ErrCodeValidation, "pending action %q not found", actionID)
	}
	if action.State.Terminal() {
		return nil, domain.NewErrorf(domain.ErrCodeState, "pending action %q is already %s", actionID, action.State)
	}

	now := s.now().UTC()
	updated, err := s.store.ResolvePendingAction(ctx, actionID, target, notes, now)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to resolve pending action", err)
	}
	if !updated {
		// Lost the race to a concurrent decision or the sweeper.
		current, err := s.store.GetPendingAction(ctx, actionID)
		if err != nil || current == nil {
			return nil, domain.NewErrorf(domain.ErrCodeState, "pending action %q is no longer pending", actionID)
		}
		return nil, domain.NewErrorf(domain.ErrCodeState, "pending action %q is already %s", actionID, current.State)
	}

	action.State = target
	action.Notes = notes
	action.ResolvedAt = &now
	return action, nil
}

// UpdateMetadata merges extra metadata onto a stored action, used to record
// the outcome of a deferred effect after the decision is applied.
func (s *Store) UpdateMetadata(ctx context.Context, actionID string, metadata map[string]string) error {
	action, err := s.store.GetPendingAction(ctx, actionID)
	if err != nil {
		return domain.WrapError(domain.ErrCodeUnknown, "failed to load pending action", err)
	}
	if action == nil {
		return domain.NewErrorf(domain.ErrCodeValidation, "pending action %q not found", actionID)
	}
	merged := make(map[string]string, len(action.Metadata)+len(metadata))
	for k, v := range action.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	if err := s.store.UpdatePendingActionMetadata(ctx, actionID, merged); err != nil {
		return domain.WrapError(domain.ErrCodeUnknown, "failed to update pending action metadata", err)
	}
	return nil
}

// Sweep expires pending actions past their deadline. Returns the expired
// actions so the caller can fail their telemetry records.
func (s *Store) Sweep(ctx context.Context) ([]domain.PendingAction, error) {
	now := s.now().UTC()
	stale, err := s.store.ListExpiredPendingActions(ctx, now, sweepBatchSize)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to list expired pending actions", err)
	}

	var expired []domain.PendingAction
	for i := range stale {
		action, err := s.expire(ctx, &stale[i])
		if err != nil {
			s.logger.Warn("failed to expire pending action",
				observability.FieldActionID, stale[i].ActionID, "error", err)
			continue
		}
		if action.State == domain.ApprovalExpired {
			expired = append(expired, *action)
		}
	}
	return expired, nil
}

// RunExpirySweeper runs Sweep on the given interval until ctx is cancelled.
// onExpired, when non-nil, is invoked with each batch of newly expired
// actions.
func (s *Store) RunExpirySweeper(ctx context.Context, interval time.Duration, onExpired func(context.Context, []domain.PendingAction)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			expired, err := s.Sweep(sweepCtx)
			if err != nil {
				s.logger.Warn("pending action sweep failed", "error", err)
			} else if len(expired) > 0 && onExpired != nil {
				onExpired(sweepCtx, expired)
			}
			cancel()
		}
	}
}

func (s *Store) expire(ctx context.Context, action *domain.PendingAction) (*domain.PendingAction, error) {
	now := s.now().UTC()
	updated, err := s.store.ResolvePendingAction(ctx, action.ActionID, domain.ApprovalExpired, "approval window elapsed", now)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to expire pending action", err)
	}
	if !updated {
		// Someone else resolved it first; return the stored truth.
		current, err := s.store.GetPendingAction(ctx, action.ActionID)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to reload pending action", err)
		}
		if current == nil {
			return action, nil
		}
		return current, nil
	}

	expired := *action
	expired.State = domain.ApprovalExpired
	expired.Notes = "approval window elapsed"
	expired.ResolvedAt = &now
	return &expired, nil
}
