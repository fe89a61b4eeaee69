package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyDecisions(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input map[string]any
		want  string
	}{
		{
			name:  "read tool allowed",
			input: map[string]any{"tool_id": "context.read", "capability": "read", "requires_approval": false},
			want:  DecisionAllow,
		},
		{
			name:  "approval flag defers",
			input: map[string]any{"tool_id": "context.write", "capability": "write", "requires_approval": true},
			want:  DecisionRequireApproval,
		},
		{
			name:  "write without approval flag is blocked",
			input: map[string]any{"tool_id": "context.write", "capability": "write", "requires_approval": false},
			want:  DecisionBlock,
		},
		{
			name:  "execute tool allowed",
			input: map[string]any{"tool_id": "pipeline.run", "capability": "execute", "requires_approval": false},
			want:  DecisionAllow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package broken\ndecision :=")
	require.Error(t, err)
}
