// Package assistant manages assistant sessions: lifecycle, turn sequencing,
// and provider round trips.
package assistant

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/contextkit/orchestrator/internal/approval"
	"github.com/contextkit/orchestrator/internal/conversation"
	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/observability"
	"github.com/contextkit/orchestrator/internal/orchestrator"
	"github.com/contextkit/orchestrator/internal/provider"
	"github.com/contextkit/orchestrator/internal/store"
	"github.com/contextkit/orchestrator/internal/telemetry"
	"github.com/contextkit/orchestrator/internal/tools"
)

// ClientFactory builds a provider client for a session's backend config.
type ClientFactory func(cfg domain.ProviderConfig, apiKey string) (provider.Client, error)

// CreateSessionParams configures a new session.
type CreateSessionParams struct {
	UserID       string
	Provider     domain.ProviderConfig
	SystemPrompt string
	APIKey       string
}

// SessionView is a session together with its conversation timeline.
type SessionView struct {
	Session *domain.AssistantSession `json:"session"`
	Turns   []domain.Turn            `json:"turns"`
}

// Service owns assistant sessions. One sequential control flow per session
// request; cross-session coordination is the caller's responsibility.
type Service struct {
	store        store.Store
	conversation *conversation.Manager
	registry     *tools.Registry
	telemetry    *telemetry.Writer
	approvals    *approval.Store
	cancels      *orchestrator.CancelRegistry
	newClient    ClientFactory
	logger       *slog.Logger
	now          func() time.Time
}

// NewService wires the session service. A nil factory uses the default
// provider constructors.
func NewService(st store.Store, registry *tools.Registry, writer *telemetry.Writer, approvals *approval.Store, factory ClientFactory, logger *slog.Logger) *Service {
	if factory == nil {
		factory = provider.New
	}
	return &Service{
		store:        st,
		conversation: conversation.NewManager(),
		registry:     registry,
		telemetry:    writer,
		approvals:    approvals,
		cancels:      orchestrator.NewCancelRegistry(),
		newClient:    factory,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateSession opens a session, seeds its system turn, and persists both.
func (s *Service) CreateSession(ctx context.Context, params CreateSessionParams) (*SessionView, error) {
	prompt := params.SystemPrompt
	if prompt == "" {
		prompt = domain.DefaultSystemPrompt
	}

	now := s.now().UTC()
	session := &domain.AssistantSession{
		SessionID:    "sess-" + uuid.NewString(),
		UserID:       params.UserID,
		ProviderID:   params.Provider.Provider,
		SystemPrompt: prompt,
		ActiveTools:  s.activeToolIDs(params.Provider.Provider),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to create session", err)
	}

	timeline := s.conversation.InitialiseConversation(conversation.Config{
		SystemPrompt: prompt,
		Provider:     params.Provider.Provider,
	})
	if err := s.store.AppendTurn(ctx, session.SessionID, 0, &timeline[0]); err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to persist system turn", err)
	}

	s.logger.Info("session created",
		observability.FieldSessionID, session.SessionID,
		observability.FieldProvider, session.ProviderID)
	return &SessionView{Session: session, Turns: timeline}, nil
}

// GetSession returns a session and its full timeline, or nil when absent.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to load session", err)
	}
	if session == nil {
		return nil, nil
	}
	turns, err := s.store.GetTurns(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to load turns", err)
	}
	actions, err := s.approvals.ListForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.PendingApprovals = session.PendingApprovals[:0]
	for _, action := range actions {
		if action.State == domain.ApprovalPending {
			session.PendingApprovals = append(session.PendingApprovals, action.ActionID)
		}
	}
	return &SessionView{Session: session, Turns: turns}, nil
}

// CloseSession deletes a session and its turns.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return domain.WrapError(domain.ErrCodeUnknown, "failed to delete session", err)
	}
	return nil
}

// SendMessageParams is one user message plus its provider round-trip config.
type SendMessageParams struct {
	Content  string
	Intent   string
	Mode     string
	Provider domain.ProviderConfig
	APIKey   string
}

// SendMessage appends the user turn, completes against the session's
// provider, normalizes the reply, and appends the assistant turn. The
// provider call is cancellable by session id.
func (s *Service) SendMessage(ctx context.Context, sessionID string, params SendMessageParams) (*SessionView, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to load session", err)
	}
	if session == nil {
		return nil, domain.NewErrorf(domain.ErrCodeValidation, "session %q not found", sessionID)
	}

	timeline, err := s.store.GetTurns(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to load turns", err)
	}

	timeline, err = s.conversation.AppendUserTurn(timeline, params.Content, conversation.UserTurnMetadata{
		Intent: params.Intent,
		Mode:   params.Mode,
	})
	if err != nil {
		return nil, err
	}
	userIdx := len(timeline) - 1

	providerCfg := params.Provider
	if providerCfg.Provider == "" {
		providerCfg.Provider = session.ProviderID
	}
	client, err := s.newClient(providerCfg, params.APIKey)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, "failed to build provider client", err)
	}

	callCtx, release := s.cancels.Track(ctx, sessionID)
	reply, err := client.Complete(callCtx, session.SystemPrompt, timeline)
	// Snapshot before release, which cancels callCtx unconditionally.
	cancelled := callCtx.Err() == context.Canceled && ctx.Err() == nil
	release()
	if err != nil {
		if cancelled {
			return nil, domain.NewError(domain.ErrCodeState, "provider call cancelled")
		}
		return nil, domain.WrapError(domain.ErrCodeUnknown, "provider call failed", err)
	}

	canonical, err := conversation.Normalize(reply)
	if err != nil {
		return nil, err
	}
	timeline, err = s.conversation.AppendAssistantResponse(timeline, canonical)
	if err != nil {
		return nil, err
	}

	// Both turns persist only after the round trip succeeds, so a provider
	// failure leaves the stored timeline unchanged and the session usable.
	if err := s.store.AppendTurn(ctx, sessionID, userIdx, &timeline[userIdx]); err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to persist user turn", err)
	}
	if err := s.store.AppendTurn(ctx, sessionID, userIdx+1, &timeline[userIdx+1]); err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnknown, "failed to persist assistant turn", err)
	}
	if err := s.store.TouchSession(ctx, sessionID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to touch session", observability.FieldSessionID, sessionID, "error", err)
	}

	session.UpdatedAt = s.now().UTC()
	return &SessionView{Session: session, Turns: timeline}, nil
}

// CancelReply terminates an in-flight provider call for the session.
func (s *Service) CancelReply(sessionID string) bool {
	return s.cancels.Cancel(sessionID)
}

// Telemetry returns the session's invocation ledger in append order.
func (s *Service) Telemetry(ctx context.Context, sessionID string) []domain.ToolInvocationRecord {
	return s.telemetry.GetRecordsForSession(ctx, sessionID)
}

// Capabilities reports the tool capability profile exposed to clients.
func (s *Service) Capabilities() domain.CapabilityProfile {
	return s.registry.CapabilityProfile()
}

func (s *Service) activeToolIDs(providerID string) []string {
	var ids []string
	for _, descriptor := range s.registry.Descriptors() {
		if descriptor.AllowsProvider(providerID) {
			ids = append(ids, descriptor.ID)
		}
	}
	return ids
}
