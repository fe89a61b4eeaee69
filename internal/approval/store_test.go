package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/observability"
	"github.com/contextkit/orchestrator/tests/helpers"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	return NewStore(helpers.NewTestSQLiteStore(t), observability.NewLogger("error", false), ttl)
}

func TestCreateAndResolveApprove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Minute)

	action, err := s.Create(ctx, CreateParams{
		SessionID:    "s1",
		ToolID:       "context.write",
		InvocationID: "inv-1",
		DiffPreview:  "--- a\n+++ b",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalPending, action.State)
	assert.Equal(t, action.CreatedAt.Add(time.Minute), action.ExpiresAt)

	resolved, err := s.Resolve(ctx, action.ActionID, domain.DecisionApprove, "looks good")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, resolved.State)
	assert.Equal(t, "looks good", resolved.Notes)
	require.NotNil(t, resolved.ResolvedAt)
}

func TestResolveTerminalActionFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Minute)

	action, err := s.Create(ctx, CreateParams{SessionID: "s1", ToolID: "repo.commit", InvocationID: "inv-1"})
	require.NoError(t, err)

	_, err = s.Resolve(ctx, action.ActionID, domain.DecisionReject, "no")
	require.NoError(t, err)

	_, err = s.Resolve(ctx, action.ActionID, domain.DecisionApprove, "changed my mind")
	require.Error(t, err)
	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, domain.ErrCodeState, derr.Code)

	// The stored state is unchanged by the failed resolve.
	got, err := s.Get(ctx, action.ActionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalRejected, got.State)
	assert.Equal(t, "no", got.Notes)
}

func TestResolveUnknownActionFails(t *testing.T) {
	s := newTestStore(t, time.Minute)
	_, err := s.Resolve(context.Background(), "act-missing", domain.DecisionApprove, "")
	require.Error(t, err)
}

func TestLazyExpiryOnGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Minute)

	action, err := s.Create(ctx, CreateParams{SessionID: "s1", ToolID: "context.write", InvocationID: "inv-1"})
	require.NoError(t, err)

	s.now = func() time.Time { return action.ExpiresAt.Add(time.Second) }

	got, err := s.Get(ctx, action.ActionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalExpired, got.State)

	// An expired action cannot be resolved.
	_, err = s.Resolve(ctx, action.ActionID, domain.DecisionApprove, "")
	require.Error(t, err)
	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, domain.ErrCodeState, derr.Code)
}

func TestSweepExpiresOverdueActions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Minute)

	overdue, err := s.Create(ctx, CreateParams{SessionID: "s1", ToolID: "context.write", InvocationID: "inv-1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateParams{SessionID: "s1", ToolID: "repo.commit", InvocationID: "inv-2"})
	require.NoError(t, err)

	// Jump the clock past both deadlines.
	s.now = func() time.Time { return overdue.ExpiresAt.Add(2 * time.Minute) }

	expired, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 2)

	for _, action := range expired {
		assert.Equal(t, domain.ApprovalExpired, action.State)
	}
}

func TestListForSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, time.Minute)

	_, err := s.Create(ctx, CreateParams{SessionID: "s1", ToolID: "context.write", InvocationID: "inv-1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateParams{SessionID: "s2", ToolID: "context.write", InvocationID: "inv-2"})
	require.NoError(t, err)

	actions, err := s.ListForSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "inv-1", actions[0].InvocationID)
}
