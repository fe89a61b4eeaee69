// Package store provides durable persistence for the orchestrator.
package store

import (
	"context"
	"time"

	"github.com/contextkit/orchestrator/internal/domain"
)

// Store is the persistence contract. Lookups return nil (not an error) when
// the row does not exist.
type Store interface {
	CreateSession(ctx context.Context, session *domain.AssistantSession) error
	GetSession(ctx context.Context, sessionID string) (*domain.AssistantSession, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error

	AppendTurn(ctx context.Context, sessionID string, seq int, turn *domain.Turn) error
	GetTurns(ctx context.Context, sessionID string) ([]domain.Turn, error)

	CreatePendingAction(ctx context.Context, action *domain.PendingAction) error
	GetPendingAction(ctx context.Context, actionID string) (*domain.PendingAction, error)
	ListPendingActions(ctx context.Context, sessionID string) ([]domain.PendingAction, error)
	// ResolvePendingAction transitions an action out of the pending state.
	// It returns false when the action was already terminal.
	ResolvePendingAction(ctx context.Context, actionID string, state domain.ApprovalState, notes string, at time.Time) (bool, error)
	UpdatePendingActionMetadata(ctx context.Context, actionID string, metadata map[string]string) error
	ListExpiredPendingActions(ctx context.Context, now time.Time, limit int) ([]domain.PendingAction, error)

	// GetTelemetryLedger returns the raw ledger document for a session, or
	// nil when no ledger exists yet.
	GetTelemetryLedger(ctx context.Context, sessionID string) ([]byte, error)
	// SaveTelemetryLedger replaces the ledger document for a session.
	SaveTelemetryLedger(ctx context.Context, sessionID string, records []byte) error

	Close() error
}
