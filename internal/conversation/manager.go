// Package conversation builds and extends the ordered turn timeline of an
// assistant session and normalizes provider replies into canonical turns.
package conversation

import (
	"time"

	"github.com/contextkit/orchestrator/internal/domain"
)

// Config is the input to InitialiseConversation.
type Config struct {
	SystemPrompt string
	Provider     string
}

// UserTurnMetadata is the caller-supplied metadata for a user turn.
type UserTurnMetadata struct {
	Intent      string
	Mode        string
	Attachments []string
}

// Manager appends turns to a timeline, enforcing role alternation. Timelines
// themselves are immutable value slices; every append returns a new one.
type Manager struct {
	now func() time.Time
}

// NewManager creates a Manager using the wall clock.
func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// NewManagerWithClock creates a Manager with an injected clock.
func NewManagerWithClock(now func() time.Time) *Manager {
	return &Manager{now: now}
}

// InitialiseConversation starts a timeline with the system turn.
func (m *Manager) InitialiseConversation(cfg Config) []domain.Turn {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = domain.DefaultSystemPrompt
	}
	return []domain.Turn{{
		Role:    domain.RoleSystem,
		Content: prompt,
		Metadata: domain.TurnMetadata{
			Provider:  cfg.Provider,
			Timestamp: m.now().UTC(),
		},
	}}
}

// AppendUserTurn appends a user turn. It fails with a state error when the
// previous non-system turn was also a user turn.
func (m *Manager) AppendUserTurn(timeline []domain.Turn, content string, meta UserTurnMetadata) ([]domain.Turn, error) {
	if err := checkRoleOrder(timeline, domain.RoleUser); err != nil {
		return nil, err
	}
	turn := domain.Turn{
		Role:    domain.RoleUser,
		Content: content,
		Metadata: domain.TurnMetadata{
			Intent:      meta.Intent,
			Mode:        meta.Mode,
			Attachments: meta.Attachments,
			Timestamp:   m.now().UTC(),
		},
	}
	return appendTurn(timeline, turn), nil
}

// AppendAssistantResponse appends the canonical assistant turn derived from
// a normalized provider reply. Two backends producing semantically equal
// replies yield turns identical except for the provider discriminator.
func (m *Manager) AppendAssistantResponse(timeline []domain.Turn, reply domain.AssistantReply) ([]domain.Turn, error) {
	if err := checkRoleOrder(timeline, domain.RoleAssistant); err != nil {
		return nil, err
	}
	turn := domain.Turn{
		Role:    domain.RoleAssistant,
		Content: reply.Content,
		Metadata: domain.TurnMetadata{
			Provider:     reply.Provider,
			FinishReason: reply.FinishReason,
			References:   reply.References,
			Usage:        reply.Usage,
			Timestamp:    m.now().UTC(),
		},
	}
	return appendTurn(timeline, turn), nil
}

// checkRoleOrder enforces the system, user, assistant, user, ... sequence:
// no two consecutive turns share a non-system role.
func checkRoleOrder(timeline []domain.Turn, next domain.Role) error {
	last := lastNonSystemRole(timeline)
	switch next {
	case domain.RoleUser:
		if last == domain.RoleUser {
			return domain.NewError(domain.ErrCodeState, "cannot append user turn: previous turn is already a user turn")
		}
	case domain.RoleAssistant:
		if last != domain.RoleUser {
			return domain.NewError(domain.ErrCodeState, "cannot append assistant turn: no user turn to respond to")
		}
	default:
		return domain.NewErrorf(domain.ErrCodeState, "cannot append turn with role %q", next)
	}
	return nil
}

func lastNonSystemRole(timeline []domain.Turn) domain.Role {
	for i := len(timeline) - 1; i >= 0; i-- {
		if timeline[i].Role != domain.RoleSystem {
			return timeline[i].Role
		}
	}
	return ""
}

// appendTurn copies the timeline so callers holding the old slice never see
// the new turn.
func appendTurn(timeline []domain.Turn, turn domain.Turn) []domain.Turn {
	out := make([]domain.Turn, len(timeline), len(timeline)+1)
	copy(out, timeline)
	return append(out, turn)
}
